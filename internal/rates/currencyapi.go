package rates

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// DefaultCurrencyAPIBase is the date-versioned currency basket CDN. The
// full URL is <base><yyyy-mm-dd>/v1/currencies/<code>.json.
const DefaultCurrencyAPIBase = "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@"

// Basket fetches the BRL, GBP and EUR rates from the currency-basket API.
// The three move together: a failed or partial response falls back to
// defaults for the whole basket.
type Basket struct {
	base   string
	client *http.Client
	now    func() time.Time
}

// NewBasket creates the brl/gbp/eur basket source.
func NewBasket(base string) *Basket {
	if base == "" {
		base = DefaultCurrencyAPIBase
	}
	return &Basket{base: base, client: HTTPClient, now: time.Now}
}

// Name returns the source name.
func (b *Basket) Name() string { return "currency-basket" }

// Fetch returns the basket rates keyed by the current ISO date.
func (b *Basket) Fetch(ctx context.Context) (map[currency.Code]float64, error) {
	url := fmt.Sprintf("%s%s/v1/currencies/usd.json", b.base, b.now().Format("2006-01-02"))

	out := map[currency.Code]float64{}
	err := withRetries(ctx, func() error {
		body, ferr := fetchBody(ctx, b.client, url)
		if ferr != nil {
			return ferr
		}
		for _, code := range []currency.Code{currency.BRL, currency.GBP, currency.EUR} {
			v := gjson.GetBytes(body, "usd."+string(code))
			if !v.Exists() || v.Type != gjson.Number || v.Float() <= 0 {
				return fmt.Errorf("%w: usd.%s", ErrBadField, code)
			}
			out[code] = v.Float()
		}
		return nil
	})
	if err != nil {
		defaults := currency.DefaultRates()
		return map[currency.Code]float64{
			currency.BRL: defaults.Rate(currency.BRL),
			currency.GBP: defaults.Rate(currency.GBP),
			currency.EUR: defaults.Rate(currency.EUR),
		}, err
	}
	return out, nil
}

// Bitcoin fetches the BTC rate from the same API family. The upstream
// reports USD per BTC; the snapshot stores BTC per USD, so the value is
// inverted.
type Bitcoin struct {
	base   string
	client *http.Client
	now    func() time.Time
}

// NewBitcoin creates the BTC rate source.
func NewBitcoin(base string) *Bitcoin {
	if base == "" {
		base = DefaultCurrencyAPIBase
	}
	return &Bitcoin{base: base, client: HTTPClient, now: time.Now}
}

// Name returns the source name.
func (b *Bitcoin) Name() string { return "bitcoin" }

// Fetch returns the inverted BTC rate, falling back to the hardcoded
// default on any failure.
func (b *Bitcoin) Fetch(ctx context.Context) (map[currency.Code]float64, error) {
	url := fmt.Sprintf("%s%s/v1/currencies/btc.json", b.base, b.now().Format("2006-01-02"))

	var rate float64
	err := withRetries(ctx, func() error {
		usdPerBTC, ferr := fetchField(ctx, b.client, url, "btc.usd")
		if ferr != nil {
			return ferr
		}
		rate = 1 / usdPerBTC
		return nil
	})
	if err != nil {
		return map[currency.Code]float64{currency.BTC: currency.DefaultRates().Rate(currency.BTC)}, err
	}
	return map[currency.Code]float64{currency.BTC: rate}, nil
}
