package rates

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bluecoinverse/coinverse/internal/currency"
	"github.com/bluecoinverse/coinverse/internal/store"
)

// CycleTimeout bounds a whole refresh cycle. It is deliberately shorter
// than the sum of per-source worst cases: a hung source is abandoned at
// the deadline and contributes its default rate instead of starving the
// cycle.
const CycleTimeout = 10 * time.Second

// Auto-refresh and retry-on-failure timings.
const (
	AutoRefreshEvery = 5 * time.Minute
	RetryBaseDelay   = time.Second
	MaxRetries       = 3
)

// ErrRefreshFailed is returned when no source produced live data during a
// refresh cycle. The snapshot returned alongside it is still usable
// (cached or default rates); this is a soft failure.
var ErrRefreshFailed = errors.New("rates: refresh produced no live data")

// Options tunes the aggregator. Zero values take the package defaults.
type Options struct {
	FreshFor       time.Duration
	CycleTimeout   time.Duration
	RetryBaseDelay time.Duration
}

// Service aggregates the rate sources into coherent snapshots, persists
// them, and broadcasts them on a feed. At most one refresh cycle runs at
// a time: concurrent callers observe the in-flight result instead of
// triggering duplicate upstream traffic.
type Service struct {
	sources  []Source
	cache    *Cache
	feed     *Feed
	inflight atomic.Bool
	opts     Options
	log      *slog.Logger
}

// NewService creates the aggregator with the standard four sources.
func NewService(st *store.Store, log *slog.Logger) *Service {
	return NewServiceWith(st, log, Options{},
		NewBluelytics(""),
		NewMindicador(""),
		NewBasket(""),
		NewBitcoin(""),
	)
}

// NewServiceWith creates the aggregator with explicit sources, used by
// tests and custom configurations.
func NewServiceWith(st *store.Store, log *slog.Logger, opts Options, sources ...Source) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.FreshFor <= 0 {
		opts.FreshFor = FreshFor
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = CycleTimeout
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = RetryBaseDelay
	}
	return &Service{
		sources: sources,
		cache:   NewCache(st),
		feed:    NewFeed(),
		opts:    opts,
		log:     log,
	}
}

// Feed returns the snapshot broadcast feed for subscribers.
func (s *Service) Feed() *Feed { return s.feed }

// Cache returns the persisted rate cache.
func (s *Service) Cache() *Cache { return s.cache }

// Current returns the last known snapshot without touching the network:
// the last broadcast value, else the persisted cache (expired allowed),
// else the hardcoded defaults.
func (s *Service) Current() currency.Snapshot {
	if snap, ok := s.feed.Current(); ok {
		return snap
	}
	if cached := s.cache.Read(true); cached != nil {
		return *cached
	}
	return currency.DefaultRates()
}

// Rates returns a snapshot without blocking on the network when cached
// data exists. A cached snapshot is published and returned immediately;
// if it is older than the freshness window exactly one background refresh
// is started. With no cache at all the refresh is run synchronously.
func (s *Service) Rates(ctx context.Context) (currency.Snapshot, error) {
	if s.inflight.Load() {
		return s.Current(), nil
	}

	if cached := s.cache.Read(true); cached != nil {
		s.feed.Publish(*cached)
		// Claim the in-flight flag before spawning so rapid callers
		// cannot pile up duplicate background cycles.
		if time.Since(cached.Timestamp) > s.opts.FreshFor && s.inflight.CompareAndSwap(false, true) {
			bctx := context.WithoutCancel(ctx)
			go func() {
				defer s.inflight.Store(false)
				if _, err := s.runCycle(bctx); err != nil {
					s.log.Warn("background rate refresh failed", "error", err)
				}
			}()
		}
		return *cached, nil
	}

	return s.refresh(ctx)
}

// ForceRefresh clears the in-flight flag unconditionally and runs a fresh
// cycle, bypassing the freshness check. Used for explicit user refresh.
func (s *Service) ForceRefresh(ctx context.Context) (currency.Snapshot, error) {
	s.inflight.Store(false)
	return s.refresh(ctx)
}

// refresh runs one aggregation cycle. If another cycle is already in
// flight the current snapshot is returned instead.
func (s *Service) refresh(ctx context.Context) (currency.Snapshot, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return s.Current(), nil
	}
	// The flag must clear on every path or refreshes stop forever.
	defer s.inflight.Store(false)
	return s.runCycle(ctx)
}

// runCycle fans out to all sources and merges the results into one
// snapshot. The caller holds the in-flight flag.
func (s *Service) runCycle(ctx context.Context) (currency.Snapshot, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	type sourceResult struct {
		rates map[currency.Code]float64
		err   error
		name  string
	}
	results := make([]sourceResult, len(s.sources))

	g, gctx := errgroup.WithContext(cctx)
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			rates, err := src.Fetch(gctx)
			results[i] = sourceResult{rates: rates, err: err, name: src.Name()}
			return nil
		})
	}
	_ = g.Wait() // sources degrade internally and never error the group

	snap := currency.Snapshot{
		Rates:     map[currency.Code]float64{currency.Base: 1},
		Timestamp: time.Now(),
	}
	live := 0
	for _, r := range results {
		for code, rate := range r.rates {
			snap.Rates[code] = rate
		}
		if r.err != nil {
			s.log.Warn("rate source degraded to default", "source", r.name, "error", r.err)
		} else {
			live++
		}
	}

	if live == 0 {
		// Total failure: publish defaults so callers are never stuck,
		// but do not poison the cache with them.
		fallback := currency.DefaultRatesNow()
		s.feed.Publish(fallback)
		return fallback, ErrRefreshFailed
	}

	s.cache.Write(snap)
	s.feed.Publish(snap)
	s.log.Debug("rates refreshed", "live_sources", live, "total_sources", len(s.sources))
	return snap, nil
}

// AutoRefresh periodically refreshes rates until ctx is cancelled. A
// failed refresh is retried with exponential backoff (base delay × n²,
// MaxRetries attempts); after exhausting retries it falls back to the
// expired cache when one exists, or the hardcoded defaults, and the retry
// counter restarts at zero for the next interval.
func (s *Service) AutoRefresh(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = AutoRefreshEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshWithRetry(ctx)
		}
	}
}

func (s *Service) refreshWithRetry(ctx context.Context) {
	for retry := 0; ; {
		_, err := s.refresh(ctx)
		if err == nil {
			return
		}
		retry++
		if retry >= MaxRetries {
			if s.cache.HasAnyData() {
				if cached := s.cache.Read(true); cached != nil {
					s.feed.Publish(*cached)
				}
				s.log.Warn("rate refresh gave up, using stale cache")
			} else {
				s.feed.Publish(currency.DefaultRatesNow())
				s.log.Warn("rate refresh gave up, using default rates")
			}
			return
		}
		delay := s.opts.RetryBaseDelay * time.Duration(retry*retry)
		s.log.Info("rate refresh failed, retrying", "attempt", retry, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}
