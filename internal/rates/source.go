// Package rates implements the exchange-rate pipeline: one adapter per
// upstream API, an aggregator that fans the adapters out into coherent
// snapshots, a persisted cache for offline fallback, and a feed that
// broadcasts each new snapshot to subscribers.
package rates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// Source fetches one or more rates relative to USD. Fetch never returns
// an unusable map: on failure it reports the source's hardcoded defaults
// together with the error that caused the fallback, so the aggregator can
// distinguish live data from degraded data without special-casing.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[currency.Code]float64, error)
}

// Reference timings for individual source calls.
const (
	// SourceTimeout bounds a single upstream request.
	SourceTimeout = 8 * time.Second
	// SourceRetries is the number of extra attempts after the first.
	SourceRetries = 2
	// retryDelay is the fixed pause between attempts.
	retryDelay = 500 * time.Millisecond
)

// ErrBadField is returned when an expected numeric field is absent or
// non-numeric in an upstream response. Treated like any fetch failure.
var ErrBadField = errors.New("rates: expected field missing or not numeric")

// DefaultUserAgent is sent on upstream requests; some of the public rate
// APIs reject the Go default.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// HTTPClient is the shared client for rate sources. The overall deadline
// comes from per-call contexts, not the client.
var HTTPClient = &http.Client{Timeout: 30 * time.Second}

// fetchBody performs a GET bounded by SourceTimeout and returns the
// response body.
func fetchBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, SourceTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: HTTP %d: %s", url, resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// fetchField GETs url and extracts a single numeric field by gjson path.
// A missing or non-positive field is a parse failure.
func fetchField(ctx context.Context, client *http.Client, url, path string) (float64, error) {
	body, err := fetchBody(ctx, client, url)
	if err != nil {
		return 0, err
	}
	v := gjson.GetBytes(body, path)
	if !v.Exists() || v.Type != gjson.Number || v.Float() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrBadField, path)
	}
	return v.Float(), nil
}

// withRetries runs fn up to 1+SourceRetries times, pausing retryDelay
// between attempts. It gives up early once ctx is done.
func withRetries(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= SourceRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
