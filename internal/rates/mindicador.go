package rates

import (
	"context"
	"net/http"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// DefaultMindicadorURL serves the official CLP/USD observed rate.
const DefaultMindicadorURL = "https://mindicador.cl/api/dolar"

// Mindicador fetches the official Chilean peso rate.
type Mindicador struct {
	url    string
	client *http.Client
}

// NewMindicador creates the CLP rate source.
func NewMindicador(url string) *Mindicador {
	if url == "" {
		url = DefaultMindicadorURL
	}
	return &Mindicador{url: url, client: HTTPClient}
}

// Name returns the source name.
func (m *Mindicador) Name() string { return "mindicador" }

// Fetch returns the CLP rate from the latest entry of the indicator
// series, falling back to the hardcoded default on any failure.
func (m *Mindicador) Fetch(ctx context.Context) (map[currency.Code]float64, error) {
	var rate float64
	err := withRetries(ctx, func() error {
		v, ferr := fetchField(ctx, m.client, m.url, "serie.0.valor")
		if ferr != nil {
			return ferr
		}
		rate = v
		return nil
	})
	if err != nil {
		return map[currency.Code]float64{currency.CLP: currency.DefaultRates().Rate(currency.CLP)}, err
	}
	return map[currency.Code]float64{currency.CLP: rate}, nil
}
