package rates

import (
	"context"
	"net/http"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// DefaultBluelyticsURL serves the Argentine parallel ("blue") market rate.
const DefaultBluelyticsURL = "https://api.bluelytics.com.ar/v2/latest"

// Bluelytics fetches the ARS blue-market sell rate.
type Bluelytics struct {
	url    string
	client *http.Client
}

// NewBluelytics creates the ARS blue rate source.
func NewBluelytics(url string) *Bluelytics {
	if url == "" {
		url = DefaultBluelyticsURL
	}
	return &Bluelytics{url: url, client: HTTPClient}
}

// Name returns the source name.
func (b *Bluelytics) Name() string { return "bluelytics" }

// Fetch returns the ARS rate, falling back to the hardcoded default on
// any failure.
func (b *Bluelytics) Fetch(ctx context.Context) (map[currency.Code]float64, error) {
	var rate float64
	err := withRetries(ctx, func() error {
		v, ferr := fetchField(ctx, b.client, b.url, "blue.value_sell")
		if ferr != nil {
			return ferr
		}
		rate = v
		return nil
	})
	if err != nil {
		return map[currency.Code]float64{currency.ARS: currency.DefaultRates().Rate(currency.ARS)}, err
	}
	return map[currency.Code]float64{currency.ARS: rate}, nil
}
