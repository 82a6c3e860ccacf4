// Package search implements the AI-assisted product price comparison: a
// client that asks a chat-completion model for per-market prices, a
// strict parser for the model's JSON answer, a short-lived result cache,
// and persisted search history with favorites.
package search

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/bluecoinverse/coinverse/internal/currency"
	"github.com/bluecoinverse/coinverse/internal/llm"
	"github.com/bluecoinverse/coinverse/internal/store"
)

// Reference limits and timings for a search request.
const (
	MaxQueryLen    = 200
	Temperature    = 0.2
	MaxTokens      = 800
	RequestTimeout = 60 * time.Second
	// HistoryFreshFor is how long a history entry's result is served
	// without a fresh search.
	HistoryFreshFor = time.Hour
)

// Validation and offline errors. Everything else (network, auth, parse)
// degrades into a zero-confidence Result instead of failing outward.
var (
	ErrEmptyQuery    = errors.New("search: empty query")
	ErrQueryTooLong  = errors.New("search: query too long")
	ErrNoOfflineData = errors.New("search: offline and no cached result available")
)

// Result is one price comparison across markets. Prices are sparse: a
// market the model could not price is simply absent. Confidence at or
// below zero marks a degraded result that must never be cached or
// persisted.
type Result struct {
	Product    string                    `json:"product"`
	Prices     map[currency.Code]float64 `json:"prices"`
	URLs       map[currency.Code]string  `json:"urls,omitempty"`
	Confidence float64                   `json:"confidence"`
	Source     string                    `json:"source"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// Degraded reports whether the result carries no usable price data.
func (r Result) Degraded() bool { return r.Confidence <= 0 }

// Chatter is the slice of the llm client the search needs.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error)
}

// Options tunes the search client. Zero values take the package
// defaults.
type Options struct {
	MaxQueryLen  int
	CacheTTL     time.Duration
	CacheSize    int
	MaxHistory   int
	MaxFavorites int
	Temperature  float64
	MaxTokens    int
}

func (o *Options) fillDefaults() {
	if o.MaxQueryLen <= 0 {
		o.MaxQueryLen = MaxQueryLen
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = CacheTTL
	}
	if o.CacheSize <= 0 {
		o.CacheSize = CacheSize
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = MaxHistory
	}
	if o.MaxFavorites <= 0 {
		o.MaxFavorites = MaxFavorites
	}
	if o.Temperature <= 0 {
		o.Temperature = Temperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = MaxTokens
	}
}

// Client runs product searches against a chat-completion model.
type Client struct {
	llm     Chatter
	cache   *resultCache
	history *History
	online  func(context.Context) bool
	now     func() time.Time
	opts    Options
	log     *slog.Logger
}

// Option configures the search client.
type Option func(*Client)

// WithOnlineProbe replaces the connectivity check that gates the online
// search path.
func WithOnlineProbe(fn func(context.Context) bool) Option {
	return func(c *Client) { c.online = fn }
}

// NewClient creates a search client persisting history to st. The
// connectivity probe targets the chatter's base URL when it exposes one.
func NewClient(chatter Chatter, st *store.Store, log *slog.Logger, opts Options, extra ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	opts.fillDefaults()
	c := &Client{
		llm:     chatter,
		cache:   newResultCache(opts.CacheTTL, opts.CacheSize),
		history: NewHistoryWith(st, opts.MaxHistory, opts.MaxFavorites),
		online:  dialProbe(defaultProbeAddr),
		now:     time.Now,
		opts:    opts,
		log:     log,
	}
	if b, ok := chatter.(interface{ BaseURL() string }); ok {
		if addr := probeAddr(b.BaseURL()); addr != "" {
			c.online = dialProbe(addr)
		}
	}
	for _, opt := range extra {
		opt(c)
	}
	return c
}

// History returns the persisted search history and favorites.
func (c *Client) History() *History { return c.history }

// Search runs one product search. Validation failures and the offline
// no-data case return an error; upstream failures return a degraded
// Result (empty prices, confidence zero, human-readable category in
// Source) with a nil error, so the caller always has something to show.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if len(query) > c.opts.MaxQueryLen {
		return Result{}, ErrQueryTooLong
	}

	if !c.online(ctx) {
		return c.offlineResult(query)
	}

	if cached, ok := c.cache.Get(query, false); ok {
		return cached, nil
	}

	messages := []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(buildPrompt(query, c.now())),
	}
	cctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	// Single attempt: a generative request is too slow to retry blindly.
	resp, err := c.llm.Chat(cctx, messages, &llm.ChatOptions{
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		c.log.Warn("product search request failed", "query", query, "error", err)
		return c.errorResult(query, err, errors.Is(cctx.Err(), context.DeadlineExceeded)), nil
	}

	result, err := ParseResponse(resp.Content, c.now())
	if err != nil {
		c.log.Warn("unparseable search response", "query", query, "error", err)
		return c.errorResult(query, err, false), nil
	}

	if result.Degraded() {
		return result, nil
	}
	c.cache.Put(query, result)
	c.history.Save(query, result)
	return result, nil
}

// SearchFromHistory re-serves a history entry's result when it is still
// fresh, and runs a new search for its query otherwise.
func (c *Client) SearchFromHistory(ctx context.Context, entry HistoryEntry) (Result, error) {
	if c.now().Sub(entry.Result.Timestamp) < HistoryFreshFor {
		return entry.Result, nil
	}
	return c.Search(ctx, entry.Query)
}

// offlineResult serves a search without the network: expired cache
// entries are acceptable, then an exact history match.
func (c *Client) offlineResult(query string) (Result, error) {
	if cached, ok := c.cache.Get(query, true); ok {
		return cached, nil
	}
	if entry, ok := c.history.Find(query); ok {
		return entry.Result, nil
	}
	return Result{}, ErrNoOfflineData
}

// errorResult categorizes an upstream failure into a degraded Result.
// The Source strings are user-facing and stay in Spanish like the rest
// of the search surface.
func (c *Client) errorResult(query string, err error, timedOut bool) Result {
	source := "Error de conexión"
	switch {
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		source = "Tiempo de espera agotado"
	case errors.Is(err, llm.ErrNoAPIKey):
		source = "Error de autenticación"
	case errors.Is(err, llm.ErrServerError):
		source = "Servicio no disponible"
	}
	return Result{
		Product:    "Error buscando: " + query,
		Prices:     map[currency.Code]float64{},
		Confidence: 0,
		Source:     source,
		Timestamp:  c.now(),
	}
}

// defaultProbeAddr is dialed when the chatter does not expose its base
// URL.
const defaultProbeAddr = "api.deepseek.com:443"

// probeAddr derives a host:port dial target from an API base URL, so the
// connectivity probe tests the endpoint actually in use.
func probeAddr(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "http" {
		return u.Host + ":80"
	}
	return u.Host + ":443"
}

// dialProbe returns a connectivity check that TCP-dials addr.
func dialProbe(addr string) func(context.Context) bool {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: 3 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
