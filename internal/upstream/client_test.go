package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"heatsight/internal/cache"
	"heatsight/internal/config"
	"heatsight/pkg/logger"
)

func TestBuildURL_CollapsesDuplicatedAPISegmentAndSortsParams(t *testing.T) {
	c := &Client{baseURL: "http://localhost:8000/api"}

	got := c.buildURL("/api/external/hot", map[string]string{"b": "2", "a": "1"})
	want := "http://localhost:8000/api/external/hot?a=1&b=2"
	if got != want {
		t.Fatalf("buildURL = %q, want %q", got, want)
	}
}

func TestBuildURL_NoParams(t *testing.T) {
	c := &Client{baseURL: "http://localhost:8000/api"}
	got := c.buildURL("external/sources", nil)
	want := "http://localhost:8000/api/external/sources"
	if got != want {
		t.Fatalf("buildURL = %q, want %q", got, want)
	}
}

func TestCacheKey_SortsParamsDeterministically(t *testing.T) {
	a := cacheKey("hot_news", map[string]string{"hot_limit": "10", "category_limit": "5"})
	b := cacheKey("hot_news", map[string]string{"category_limit": "5", "hot_limit": "10"})
	if a != b {
		t.Fatalf("cacheKey should be order-independent: %q != %q", a, b)
	}
	want := "heatlink:hot_news:category_limit=5:hot_limit=10"
	if a != want {
		t.Fatalf("cacheKey = %q, want %q", a, want)
	}
}

func TestExtractItems_PrefersNewsThenItemsThenSources(t *testing.T) {
	if got := ExtractItems(map[string]any{"news": []any{"n1"}, "items": []any{"i1"}}); len(got) != 1 || got[0] != "n1" {
		t.Fatalf("ExtractItems should prefer news, got %v", got)
	}
	if got := ExtractItems(map[string]any{"items": []any{"i1"}}); len(got) != 1 || got[0] != "i1" {
		t.Fatalf("ExtractItems should fall back to items, got %v", got)
	}
	if got := ExtractItems(map[string]any{"sources": []any{"s1"}}); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("ExtractItems should fall back to sources, got %v", got)
	}
	if got := ExtractItems(map[string]any{"other": "x"}); got != nil {
		t.Fatalf("ExtractItems with no known key should return nil, got %v", got)
	}
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := &config.Config{
		HeatlinkAPIURL:     srv.URL,
		HeatlinkAPITimeout: 2 * time.Second,
		RetryMaxAttempts:   2,
		RetryBaseBackoff:   time.Millisecond,
		RetryMaxBackoff:    4 * time.Millisecond,
		TTL:                config.TTLConfig{Sources: time.Minute},
	}
	return New(cfg, cache.Connect(context.Background(), "", logger.NewLogger()), logger.NewLogger())
}

func TestGet_CachesSuccessfulResponse(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sources": [{"id": "weibo"}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	ctx := context.Background()

	first, err := c.Get(ctx, "external/sources", GetOptions{Cache: true, CacheKeyPrefix: "sources", TTL: time.Minute})
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	second, err := c.Get(ctx, "external/sources", GetOptions{Cache: true, CacheKeyPrefix: "sources", TTL: time.Minute})
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the second Get to be served from cache, upstream was called %d times", calls)
	}
	if len(ExtractItems(first)) != len(ExtractItems(second)) {
		t.Fatalf("cached payload mismatch: %v vs %v", first, second)
	}
}

func TestGet_RetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Get(context.Background(), "external/unified", GetOptions{}); err != nil {
		t.Fatalf("Get should succeed after one retry, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestGet_4xxFailsWithoutRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Get(context.Background(), "external/missing", GetOptions{}); err == nil {
		t.Fatalf("expected an error for a 404 response")
	}
	if attempts != 1 {
		t.Fatalf("4xx responses should not be retried, got %d attempts", attempts)
	}
}

func TestGet_BareArrayWrappedUnderItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": "1"}, {"id": "2"}]`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	payload, err := c.Get(context.Background(), "external/search", GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(ExtractItems(payload)) != 2 {
		t.Fatalf("expected a bare array to be wrapped under items, got %v", payload)
	}
}
