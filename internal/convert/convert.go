// Package convert implements the pure currency conversion math plus the
// locale-aware amount parsing and formatting used by the CLI. Amounts are
// rendered in es-AR style: "." groups thousands, "," marks decimals.
package convert

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// Convert converts amount from one currency to another through the USD
// base. A zero source rate yields zero rather than dividing by it.
func Convert(amount float64, from, to currency.Code, snap currency.Snapshot) float64 {
	if from == to {
		return amount
	}
	fromRate := snap.Rate(from)
	if fromRate == 0 {
		return 0
	}
	return (amount / fromRate) * snap.Rate(to)
}

// symbolPattern matches every currency symbol or token a user might type
// or paste alongside a number. Longer tokens come before their prefixes.
var symbolPattern = regexp.MustCompile(`(?i)(CLP|US\$|\$|€|EUR|£|GBP|R\$|BRL|ARS|₿|Bitcoin|BTC)`)

// ParseAmount parses a free-form user-entered amount in es-AR notation.
// Currency symbols are stripped, "." thousands separators removed, and a
// decimal comma converted to a point. Unparseable input yields 0, never
// an error.
func ParseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	// Placeholder values like "<0,01" are not amounts.
	if strings.Contains(s, "<") {
		return 0
	}

	s = symbolPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var printer = message.NewPrinter(language.MustParse("es-AR"))

// Decimals returns the number of fraction digits a currency is rendered
// with. Bitcoin uses 8; everything else 2.
func Decimals(code currency.Code) int {
	if code == currency.BTC {
		return 8
	}
	return 2
}

// FormatAmount renders v for display in the given currency. Bitcoin is a
// plain 8-digit decimal without a symbol; other currencies carry their
// symbol and 2 fraction digits.
func FormatAmount(v float64, code currency.Code) string {
	digits := Decimals(code)
	n := printer.Sprint(number.Decimal(v,
		number.MinFractionDigits(digits),
		number.MaxFractionDigits(digits),
	))
	if code == currency.BTC {
		return n
	}
	info, ok := currency.Currencies[code]
	if !ok {
		return n
	}
	return info.Symbol + " " + n
}
