package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// marketFields maps the prompt's market field names to currency codes.
var marketFields = map[string]currency.Code{
	"chile":     currency.CLP,
	"argentina": currency.ARS,
	"usa":       currency.USD,
	"brazil":    currency.BRL,
	"uk":        currency.GBP,
	"eu":        currency.EUR,
}

// ParseResponse extracts a Result from the model's answer. The answer may
// wrap the JSON object in markers or prose; the parser takes everything
// from the first '{' to the last '}'. Product, a confidence in (0,100]
// and a source are mandatory; prices are kept only when positive, URLs
// only when they look like URLs.
func ParseResponse(content string, now time.Time) (Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Result{}, errors.New("search: empty model response")
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, errors.New("search: no JSON object in response")
	}
	js := content[start : end+1]
	if !gjson.Valid(js) {
		return Result{}, errors.New("search: malformed JSON in response")
	}

	product := gjson.Get(js, "product")
	if product.Type != gjson.String || product.Str == "" {
		return Result{}, errors.New("search: missing product name")
	}
	conf := gjson.Get(js, "confidence")
	if conf.Type != gjson.Number || conf.Float() <= 0 || conf.Float() > 100 {
		return Result{}, fmt.Errorf("search: invalid confidence %q", conf.Raw)
	}
	source := gjson.Get(js, "source")
	if source.Type != gjson.String || source.Str == "" {
		return Result{}, errors.New("search: missing source")
	}

	prices := map[currency.Code]float64{}
	for field, code := range marketFields {
		if v := gjson.Get(js, field); v.Type == gjson.Number && v.Float() > 0 {
			prices[code] = v.Float()
		}
	}

	var urls map[currency.Code]string
	for field, code := range marketFields {
		u := gjson.Get(js, "urls."+field)
		if u.Type == gjson.String && strings.HasPrefix(u.Str, "http") {
			if urls == nil {
				urls = map[currency.Code]string{}
			}
			urls[code] = u.Str
		}
	}

	return Result{
		Product:    product.Str,
		Prices:     prices,
		URLs:       urls,
		Confidence: conf.Float(),
		Source:     source.Str,
		Timestamp:  now,
	}, nil
}
