package search

import (
	"strings"
	"sync"
	"time"
)

// Result cache sizing. Entries evict in insertion order once the cache
// is full, matching the behavior users already rely on.
const (
	CacheTTL  = 5 * time.Minute
	CacheSize = 50
)

// resultCache is a small in-memory cache of recent search results keyed
// by lowercased query. Expired entries stay readable for the offline
// path.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]Result
	order   []string
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newResultCache(ttl time.Duration, max int) *resultCache {
	return &resultCache{
		entries: make(map[string]Result),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// Get returns the cached result for query. A stale entry is returned
// only when allowExpired is set.
func (c *resultCache) Get(query string, allowExpired bool) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.entries[strings.ToLower(query)]
	if !ok {
		return Result{}, false
	}
	if !allowExpired && c.now().Sub(result.Timestamp) >= c.ttl {
		return Result{}, false
	}
	return result, true
}

// Put stores result under query, evicting the oldest entry when full.
func (c *resultCache) Put(query string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(query)
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = result

	if len(c.entries) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
