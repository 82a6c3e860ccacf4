package rates

import (
	"strconv"
	"time"

	"github.com/bluecoinverse/coinverse/internal/currency"
	"github.com/bluecoinverse/coinverse/internal/store"
)

// Storage keys. The flat blueRate/clpRate/lastUpdate trio is the format
// written by early releases; it is still written and read so downgrades
// keep working.
const (
	keySnapshot   = "exchangeRates"
	keyExpiry     = "ratesExpiry"
	keyLegacyBlue = "blueRate"
	keyLegacyCLP  = "clpRate"
	keyLegacyTime = "lastUpdate"
)

// FreshFor is how long a written snapshot counts as fresh.
const FreshFor = 5 * time.Minute

// Cache persists the last known snapshot with an expiry instant.
// Persistence is best-effort: write failures are swallowed and corrupted
// entries read as absent.
type Cache struct {
	store *store.Store
	now   func() time.Time
}

// NewCache creates a rate cache over the given store.
func NewCache(s *store.Store) *Cache {
	return &Cache{store: s, now: time.Now}
}

// Read returns the persisted snapshot if present and unexpired, or if
// allowExpired is set. Entries without an expiry (written before expiry
// tracking existed) are returned as-is.
func (c *Cache) Read(allowExpired bool) *currency.Snapshot {
	var snap currency.Snapshot
	if c.store.GetJSON(keySnapshot, &snap) && len(snap.Rates) > 0 {
		raw, hasExpiry := c.store.Get(keyExpiry)
		if !hasExpiry {
			return &snap
		}
		expiry, err := strconv.ParseInt(string(raw), 10, 64)
		if err == nil && (c.now().UnixMilli() < expiry || allowExpired) {
			return &snap
		}
		if err != nil && allowExpired {
			return &snap
		}
		return nil
	}
	return c.readLegacy()
}

// readLegacy composes a snapshot from the flat rate fields, filling the
// basket currencies with defaults.
func (c *Cache) readLegacy() *currency.Snapshot {
	blueRaw, okBlue := c.store.Get(keyLegacyBlue)
	clpRaw, okCLP := c.store.Get(keyLegacyCLP)
	tsRaw, okTS := c.store.Get(keyLegacyTime)
	if !okBlue || !okCLP || !okTS {
		return nil
	}
	blue, err1 := strconv.ParseFloat(string(blueRaw), 64)
	clp, err2 := strconv.ParseFloat(string(clpRaw), 64)
	ts, err3 := time.Parse(time.RFC3339, string(tsRaw))
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	snap := currency.DefaultRates()
	snap.Rates[currency.ARS] = blue
	snap.Rates[currency.CLP] = clp
	snap.Timestamp = ts
	return &snap
}

// Write persists the snapshot wholesale with expiry = now + FreshFor,
// plus the legacy flat fields. Failures are swallowed.
func (c *Cache) Write(snap currency.Snapshot) {
	_ = c.store.PutJSON(keySnapshot, snap)
	expiry := c.now().Add(FreshFor).UnixMilli()
	_ = c.store.Put(keyExpiry, []byte(strconv.FormatInt(expiry, 10)))

	_ = c.store.Put(keyLegacyBlue, []byte(strconv.FormatFloat(snap.Rate(currency.ARS), 'f', -1, 64)))
	_ = c.store.Put(keyLegacyCLP, []byte(strconv.FormatFloat(snap.Rate(currency.CLP), 'f', -1, 64)))
	_ = c.store.Put(keyLegacyTime, []byte(snap.Timestamp.Format(time.RFC3339)))
}

// HasAnyData reports whether any snapshot exists regardless of freshness.
// The error path uses it to decide between expired cache and hardcoded
// defaults.
func (c *Cache) HasAnyData() bool {
	if _, ok := c.store.Get(keySnapshot); ok {
		return true
	}
	_, okBlue := c.store.Get(keyLegacyBlue)
	_, okCLP := c.store.Get(keyLegacyCLP)
	return okBlue && okCLP
}

// Clear removes every rate key.
func (c *Cache) Clear() {
	_ = c.store.Delete(keySnapshot, keyExpiry, keyLegacyBlue, keyLegacyCLP, keyLegacyTime)
}
