package search

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluecoinverse/coinverse/internal/currency"
	"github.com/bluecoinverse/coinverse/internal/llm"
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

// stubChatter returns a fixed completion or error and records the last
// request options.
type stubChatter struct {
	content  string
	err      error
	calls    atomic.Int64
	lastOpts *llm.ChatOptions
}

func (s *stubChatter) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
	s.calls.Add(1)
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.Response{Content: s.content}, nil
}

var alwaysOnline = WithOnlineProbe(func(context.Context) bool { return true })

func testClient(t *testing.T, chatter Chatter) *Client {
	t.Helper()
	return NewClient(chatter, tempStore(t), nil, Options{}, alwaysOnline)
}

const widgetAnswer = `<JSON>{"product":"Widget","chile":1000,"usa":1.5,"confidence":90,"source":"test"}</JSON>`

func TestSearchValidation(t *testing.T) {
	chatter := &stubChatter{content: widgetAnswer}
	c := testClient(t, chatter)

	if _, err := c.Search(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("blank query err = %v", err)
	}
	if _, err := c.Search(context.Background(), strings.Repeat("x", 201)); !errors.Is(err, ErrQueryTooLong) {
		t.Fatalf("long query err = %v", err)
	}
	if chatter.calls.Load() != 0 {
		t.Fatal("validation failures must not reach the model")
	}
}

func TestSearchSuccessCachesAndPersists(t *testing.T) {
	chatter := &stubChatter{content: widgetAnswer}
	c := testClient(t, chatter)

	result, err := c.Search(context.Background(), "Widget Pro")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Product != "Widget" || result.Degraded() {
		t.Fatalf("result = %+v", result)
	}

	// A repeat hits the fresh cache, not the model.
	if _, err := c.Search(context.Background(), "widget pro"); err != nil {
		t.Fatalf("cached search: %v", err)
	}
	if chatter.calls.Load() != 1 {
		t.Fatalf("model calls = %d, want 1", chatter.calls.Load())
	}

	entries := c.History().Entries()
	if len(entries) != 1 || entries[0].Query != "Widget Pro" {
		t.Fatalf("history = %+v", entries)
	}
	if entries[0].ID == "" {
		t.Fatal("history entry without id")
	}
}

func TestSearchUpstreamFailureDegrades(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		source string
	}{
		{"auth", llm.ErrNoAPIKey, "Error de autenticación"},
		{"server", llm.ErrServerError, "Servicio no disponible"},
		{"transport", llm.ErrProviderDown, "Error de conexión"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, &stubChatter{err: tc.err})

			result, err := c.Search(context.Background(), "Widget")
			if err != nil {
				t.Fatalf("upstream failure must not error outward: %v", err)
			}
			if !result.Degraded() {
				t.Fatal("failure result not degraded")
			}
			if result.Source != tc.source {
				t.Fatalf("source = %q, want %q", result.Source, tc.source)
			}
			if result.Product != "Error buscando: Widget" {
				t.Fatalf("product = %q", result.Product)
			}
			if len(c.History().Entries()) != 0 {
				t.Fatal("degraded result persisted to history")
			}
		})
	}
}

func TestSearchUnparseableAnswerDegrades(t *testing.T) {
	c := testClient(t, &stubChatter{content: "no tengo datos de precios"})

	result, err := c.Search(context.Background(), "Widget")
	if err != nil {
		t.Fatalf("parse failure must not error outward: %v", err)
	}
	if !result.Degraded() {
		t.Fatal("unparseable answer not degraded")
	}
	if _, ok := c.cache.Get("Widget", true); ok {
		t.Fatal("degraded result was cached")
	}
}

func TestSearchDegradedAnswerNotCached(t *testing.T) {
	// Valid JSON shape but confidence missing: the parser rejects it and
	// nothing is persisted.
	c := testClient(t, &stubChatter{content: `{"product":"Widget","chile":1000,"source":"s"}`})

	result, err := c.Search(context.Background(), "Widget")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !result.Degraded() {
		t.Fatal("missing confidence must degrade")
	}
	if len(c.History().Entries()) != 0 {
		t.Fatal("degraded result persisted")
	}
}

func TestSearchOfflineServesExpiredCache(t *testing.T) {
	chatter := &stubChatter{content: widgetAnswer}
	st := tempStore(t)
	c := NewClient(chatter, st, nil, Options{}, alwaysOnline)

	if _, err := c.Search(context.Background(), "Widget"); err != nil {
		t.Fatalf("seed search: %v", err)
	}

	// Let the cache entry expire, then go offline.
	c.cache.now = func() time.Time { return time.Now().Add(CacheTTL + time.Minute) }
	c.online = func(context.Context) bool { return false }

	result, err := c.Search(context.Background(), "widget")
	if err != nil {
		t.Fatalf("offline search: %v", err)
	}
	if result.Product != "Widget" {
		t.Fatalf("offline result = %+v", result)
	}
	if chatter.calls.Load() != 1 {
		t.Fatal("offline search reached the model")
	}
}

func TestSearchOfflineFallsBackToHistory(t *testing.T) {
	st := tempStore(t)
	c := NewClient(&stubChatter{}, st, nil, Options{}, WithOnlineProbe(func(context.Context) bool { return false }))

	saved := Result{
		Product:    "Widget",
		Prices:     map[currency.Code]float64{currency.USD: 10},
		Confidence: 80,
		Source:     "test",
		Timestamp:  time.Now().Add(-24 * time.Hour),
	}
	c.history.Save("Widget Pro", saved)

	result, err := c.Search(context.Background(), "WIDGET PRO")
	if err != nil {
		t.Fatalf("offline history search: %v", err)
	}
	if result.Product != "Widget" {
		t.Fatalf("result = %+v", result)
	}
}

func TestSearchOfflineNoData(t *testing.T) {
	c := NewClient(&stubChatter{}, tempStore(t), nil, Options{}, WithOnlineProbe(func(context.Context) bool { return false }))

	if _, err := c.Search(context.Background(), "Widget"); !errors.Is(err, ErrNoOfflineData) {
		t.Fatalf("err = %v, want ErrNoOfflineData", err)
	}
}

func TestSearchFromHistoryFreshness(t *testing.T) {
	chatter := &stubChatter{content: widgetAnswer}
	c := testClient(t, chatter)

	fresh := HistoryEntry{
		Query:  "Widget",
		Result: Result{Product: "Widget viejo", Confidence: 80, Timestamp: time.Now().Add(-30 * time.Minute)},
	}
	result, err := c.SearchFromHistory(context.Background(), fresh)
	if err != nil {
		t.Fatalf("fresh history: %v", err)
	}
	if result.Product != "Widget viejo" || chatter.calls.Load() != 0 {
		t.Fatal("fresh history entry should be served directly")
	}

	stale := fresh
	stale.Result.Timestamp = time.Now().Add(-2 * time.Hour)
	result, err = c.SearchFromHistory(context.Background(), stale)
	if err != nil {
		t.Fatalf("stale history: %v", err)
	}
	if result.Product != "Widget" || chatter.calls.Load() != 1 {
		t.Fatal("stale history entry should trigger a fresh search")
	}
}

func TestSearchHonorsConfiguredOptions(t *testing.T) {
	chatter := &stubChatter{content: widgetAnswer}
	c := NewClient(chatter, tempStore(t), nil,
		Options{MaxQueryLen: 10, Temperature: 0.7, MaxTokens: 123}, alwaysOnline)

	if _, err := c.Search(context.Background(), strings.Repeat("x", 11)); !errors.Is(err, ErrQueryTooLong) {
		t.Fatalf("11-char query with a 10-char limit: err = %v", err)
	}

	if _, err := c.Search(context.Background(), "Widget"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if chatter.lastOpts == nil {
		t.Fatal("no request options sent")
	}
	if chatter.lastOpts.Temperature != 0.7 || chatter.lastOpts.MaxTokens != 123 {
		t.Fatalf("request opts = %+v, want configured temperature and token cap", chatter.lastOpts)
	}
}

func TestSearchCancelledContextIsNotTimeout(t *testing.T) {
	c := testClient(t, &stubChatter{content: widgetAnswer})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.Search(ctx, "Widget")
	if err != nil {
		t.Fatalf("cancelled search must degrade, not error: %v", err)
	}
	if result.Source != "Error de conexión" {
		t.Fatalf("source = %q, cancellation reported as timeout", result.Source)
	}
}

func TestSearchDeadlineReportsTimeout(t *testing.T) {
	c := testClient(t, &stubChatter{err: context.DeadlineExceeded})

	result, err := c.Search(context.Background(), "Widget")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Source != "Tiempo de espera agotado" {
		t.Fatalf("source = %q, want timeout category", result.Source)
	}
}

func TestProbeAddr(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://api.deepseek.com/v1", "api.deepseek.com:443"},
		{"http://127.0.0.1:8080/v1", "127.0.0.1:8080"},
		{"http://proxy.local/v1", "proxy.local:80"},
		{"://bad", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := probeAddr(tc.rawURL); got != tc.want {
			t.Errorf("probeAddr(%q) = %q, want %q", tc.rawURL, got, tc.want)
		}
	}
}

func TestDefaultProbeTargetsChatterBaseURL(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	chatter, err := llm.NewClient("key", llm.WithBaseURL("http://"+ln.Addr().String()+"/v1"))
	if err != nil {
		t.Fatalf("llm client: %v", err)
	}
	c := NewClient(chatter, tempStore(t), nil, Options{})

	if !c.online(context.Background()) {
		t.Fatal("probe did not reach the configured endpoint")
	}
}

func TestCacheEvictsInsertionOrder(t *testing.T) {
	cache := newResultCache(CacheTTL, 2)
	mk := func(name string) Result {
		return Result{Product: name, Confidence: 80, Timestamp: time.Now()}
	}
	cache.Put("a", mk("A"))
	cache.Put("b", mk("B"))
	cache.Put("a", mk("A2")) // update, not a new slot
	cache.Put("c", mk("C"))  // evicts "a", the oldest insertion

	if _, ok := cache.Get("a", true); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, ok := cache.Get("b", true); !ok {
		t.Fatal("newer entry evicted")
	}
	if _, ok := cache.Get("c", true); !ok {
		t.Fatal("latest entry missing")
	}
}
