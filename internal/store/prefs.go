package store

import "github.com/bluecoinverse/coinverse/internal/currency"

// Preference keys.
const (
	keyTheme      = "theme"
	keyLanguage   = "language"
	keyCurrencies = "selectedCurrencies"
)

// defaultTriple is the converter's initial currency selection.
var defaultTriple = []currency.Code{currency.CLP, currency.USD, currency.ARS}

// Theme returns the persisted theme preference, or fallback when unset.
func (s *Store) Theme(fallback string) string {
	var v string
	if s.GetJSON(keyTheme, &v) && v != "" {
		return v
	}
	return fallback
}

// SetTheme persists the theme preference.
func (s *Store) SetTheme(v string) { _ = s.PutJSON(keyTheme, v) }

// Language returns the persisted language preference, or fallback when unset.
func (s *Store) Language(fallback string) string {
	var v string
	if s.GetJSON(keyLanguage, &v) && v != "" {
		return v
	}
	return fallback
}

// SetLanguage persists the language preference.
func (s *Store) SetLanguage(v string) { _ = s.PutJSON(keyLanguage, v) }

// SelectedCurrencies returns the persisted converter triple. A stored
// selection is honored only when it is exactly three valid codes;
// anything else falls back to the default triple.
func (s *Store) SelectedCurrencies() []currency.Code {
	var codes []currency.Code
	if !s.GetJSON(keyCurrencies, &codes) {
		return append([]currency.Code(nil), defaultTriple...)
	}
	valid := codes[:0]
	for _, c := range codes {
		if currency.Valid(c) {
			valid = append(valid, c)
		}
	}
	if len(valid) != 3 {
		return append([]currency.Code(nil), defaultTriple...)
	}
	return valid
}

// SetSelectedCurrencies persists the converter triple.
func (s *Store) SetSelectedCurrencies(codes []currency.Code) {
	_ = s.PutJSON(keyCurrencies, codes)
}
