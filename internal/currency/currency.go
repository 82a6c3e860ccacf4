// Package currency defines the closed set of supported currencies, their
// display metadata, and the rate snapshot type shared by the rate pipeline
// and the conversion engine. All rates are expressed relative to USD.
package currency

import "time"

// Code identifies a supported currency.
type Code string

// Supported currencies. USD is the base currency: its rate is always 1.
const (
	ARS Code = "ars"
	CLP Code = "clp"
	USD Code = "usd"
	BRL Code = "brl"
	GBP Code = "gbp"
	EUR Code = "eur"
	BTC Code = "btc"
)

// Base is the currency every rate is expressed against.
const Base = USD

// All lists the supported currencies in display order.
var All = []Code{CLP, USD, ARS, BRL, GBP, EUR, BTC}

// Valid reports whether c is one of the supported currency codes.
func Valid(c Code) bool {
	switch c {
	case ARS, CLP, USD, BRL, GBP, EUR, BTC:
		return true
	}
	return false
}

// Info holds static display metadata for a currency.
type Info struct {
	Code    Code   `json:"code"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Country string `json:"country"`
	Flag    string `json:"flag"`
}

// Currencies maps each supported code to its display metadata.
var Currencies = map[Code]Info{
	ARS: {Code: ARS, Name: "Argentine Peso", Symbol: "ARS", Country: "Argentina", Flag: "https://cdn.ipregistry.co/flags/emojitwo/ar.svg"},
	CLP: {Code: CLP, Name: "Chilean Peso", Symbol: "CLP", Country: "Chile", Flag: "https://cdn.ipregistry.co/flags/emojitwo/cl.svg"},
	USD: {Code: USD, Name: "US Dollar", Symbol: "US$", Country: "United States", Flag: "https://cdn.ipregistry.co/flags/emojitwo/us.svg"},
	BRL: {Code: BRL, Name: "Brazilian Real", Symbol: "R$", Country: "Brazil", Flag: "https://cdn.ipregistry.co/flags/emojitwo/br.svg"},
	GBP: {Code: GBP, Name: "British Pound", Symbol: "£", Country: "United Kingdom", Flag: "https://cdn.ipregistry.co/flags/emojitwo/gb.svg"},
	EUR: {Code: EUR, Name: "Euro", Symbol: "€", Country: "European Union", Flag: "https://emojigraph.org/media/joypixels/flag-european-union_1f1ea-1f1fa.png"},
	BTC: {Code: BTC, Name: "Bitcoin", Symbol: "₿", Country: "Global", Flag: "https://upload.wikimedia.org/wikipedia/commons/4/46/Bitcoin.svg"},
}

// Snapshot is one coherent set of exchange rates captured at a point in
// time. Snapshots are immutable: a refresh cycle builds a new one rather
// than updating the old.
type Snapshot struct {
	Rates     map[Code]float64 `json:"rates"`
	Timestamp time.Time        `json:"timestamp"`
}

// Rate returns the rate for c relative to USD. Unknown or missing codes
// report 1 so a stray lookup degrades to a no-op conversion instead of a
// zeroed amount.
func (s Snapshot) Rate(c Code) float64 {
	if r, ok := s.Rates[c]; ok {
		return r
	}
	return 1
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	rates := make(map[Code]float64, len(s.Rates))
	for k, v := range s.Rates {
		rates[k] = v
	}
	return Snapshot{Rates: rates, Timestamp: s.Timestamp}
}

// defaultRatesEpoch marks default snapshots as visibly stale.
var defaultRatesEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultRates returns the hardcoded fallback rates used when every source
// and cache is unavailable. ARS carries the parallel ("blue") rate.
func DefaultRates() Snapshot {
	return Snapshot{
		Rates: map[Code]float64{
			ARS: 1200,
			CLP: 900,
			USD: 1,
			BRL: 5.5,
			GBP: 0.8,
			EUR: 0.92,
			BTC: 0.0000085, // ~$118K per BTC
		},
		Timestamp: defaultRatesEpoch,
	}
}

// DefaultRatesNow returns the default rates stamped with the current time,
// for aggregation-failure fallbacks where the caller needs a fresh-looking
// snapshot.
func DefaultRatesNow() Snapshot {
	s := DefaultRates()
	s.Timestamp = time.Now()
	return s
}
