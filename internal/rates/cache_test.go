package rates

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bluecoinverse/coinverse/internal/currency"
	"github.com/bluecoinverse/coinverse/internal/store"
)

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheWriteRead(t *testing.T) {
	c := NewCache(tempStore(t))
	snap := currency.DefaultRatesNow()
	snap.Rates[currency.ARS] = 1350

	c.Write(snap)
	got := c.Read(false)
	if got == nil {
		t.Fatal("expected fresh snapshot")
	}
	if got.Rate(currency.ARS) != 1350 {
		t.Fatalf("ars = %v, want 1350", got.Rate(currency.ARS))
	}
}

func TestCacheExpiredRead(t *testing.T) {
	c := NewCache(tempStore(t))
	c.Write(currency.DefaultRatesNow())

	// Move the clock past the freshness window.
	c.now = func() time.Time { return time.Now().Add(FreshFor + time.Minute) }

	if got := c.Read(false); got != nil {
		t.Fatal("expired snapshot returned without allowExpired")
	}
	if got := c.Read(true); got == nil {
		t.Fatal("expired snapshot not returned with allowExpired")
	}
}

func TestCacheMissingReturnsNil(t *testing.T) {
	c := NewCache(tempStore(t))
	if got := c.Read(true); got != nil {
		t.Fatalf("empty cache returned %+v", got)
	}
	if c.HasAnyData() {
		t.Fatal("empty cache reports data")
	}
}

func TestCacheCorruptedSnapshot(t *testing.T) {
	st := tempStore(t)
	_ = st.Put(keySnapshot, []byte("{corrupt"))
	c := NewCache(st)
	if got := c.Read(true); got != nil {
		t.Fatalf("corrupted snapshot returned %+v", got)
	}
}

func TestCacheLegacyFields(t *testing.T) {
	st := tempStore(t)
	ts := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	_ = st.Put(keyLegacyBlue, []byte("1250"))
	_ = st.Put(keyLegacyCLP, []byte("925.5"))
	_ = st.Put(keyLegacyTime, []byte(ts.Format(time.RFC3339)))

	c := NewCache(st)
	got := c.Read(true)
	if got == nil {
		t.Fatal("legacy fields not composed into a snapshot")
	}
	if got.Rate(currency.ARS) != 1250 || got.Rate(currency.CLP) != 925.5 {
		t.Fatalf("legacy rates = ars %v, clp %v", got.Rate(currency.ARS), got.Rate(currency.CLP))
	}
	if got.Rate(currency.EUR) != currency.DefaultRates().Rate(currency.EUR) {
		t.Fatal("legacy snapshot should fill basket currencies with defaults")
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if !c.HasAnyData() {
		t.Fatal("legacy fields should count as data")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(tempStore(t))
	c.Write(currency.DefaultRatesNow())
	c.Clear()
	if c.HasAnyData() {
		t.Fatal("data survived Clear")
	}
}
