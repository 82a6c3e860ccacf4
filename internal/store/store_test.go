package store

import (
	"path/filepath"
	"testing"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTemp(t)
	if err := s.Put("k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok := s.Get("k")
	if !ok || string(v) != "v" {
		t.Fatalf("get = %q, %v, want v, true", v, ok)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	if _, ok := s.Get("nope"); ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestDelete(t *testing.T) {
	s := openTemp(t)
	_ = s.Put("a", []byte("1"))
	_ = s.Put("b", []byte("2"))
	if err := s.Delete("a", "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("key a survived delete")
	}
}

func TestGetJSONCorruptEntry(t *testing.T) {
	s := openTemp(t)
	_ = s.Put("bad", []byte("{not json"))
	var out map[string]int
	if s.GetJSON("bad", &out) {
		t.Fatal("corrupt entry should read as absent")
	}
}

func TestNilStoreIsInert(t *testing.T) {
	var s *Store
	if _, ok := s.Get("k"); ok {
		t.Fatal("nil store returned a value")
	}
	if err := s.Put("k", []byte("v")); err != nil {
		t.Fatalf("nil store put: %v", err)
	}
}

func TestSelectedCurrenciesFallback(t *testing.T) {
	s := openTemp(t)

	got := s.SelectedCurrencies()
	if len(got) != 3 || got[0] != currency.CLP || got[1] != currency.USD || got[2] != currency.ARS {
		t.Fatalf("default triple = %v", got)
	}

	// Persisted invalid selection falls back too.
	_ = s.PutJSON("selectedCurrencies", []currency.Code{"usdt", currency.EUR})
	got = s.SelectedCurrencies()
	if len(got) != 3 || got[0] != currency.CLP {
		t.Fatalf("invalid stored triple not replaced: %v", got)
	}

	s.SetSelectedCurrencies([]currency.Code{currency.EUR, currency.GBP, currency.BTC})
	got = s.SelectedCurrencies()
	if got[0] != currency.EUR || got[2] != currency.BTC {
		t.Fatalf("stored triple = %v", got)
	}
}
