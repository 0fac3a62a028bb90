package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"heatsight/internal/cache"
	"heatsight/internal/config"
	"heatsight/internal/models"
	"heatsight/internal/upstream"
	"heatsight/pkg/logger"
)

const trendingCacheKey = "heatsight:heatscore:keywords"

func TestQueryInt_DefaultsOnMissingInvalidOrEmpty(t *testing.T) {
	cases := []struct {
		name string
		q    map[string][]string
		key  string
		def  int
		want int
	}{
		{"missing key", map[string][]string{}, "limit", 50, 50},
		{"empty value", map[string][]string{"limit": {""}}, "limit", 50, 50},
		{"invalid value", map[string][]string{"limit": {"abc"}}, "limit", 50, 50},
		{"valid value", map[string][]string{"limit": {"10"}}, "limit", 50, 10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := queryInt(c.q, c.key, c.def); got != c.want {
				t.Fatalf("queryInt(%v, %q, %d) = %d, want %d", c.q, c.key, c.def, got, c.want)
			}
		})
	}
}

func TestHealth_RespondsOKWithTimestamp(t *testing.T) {
	h := &Handlers{log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Health status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v, want ok", body["status"])
	}
	if _, ok := body["timestamp"]; !ok {
		t.Fatalf("expected a timestamp field in the response")
	}
}

func TestKeywords_FiltersByMinHeatAndLimit(t *testing.T) {
	c := cache.Connect(context.Background(), "", logger.NewLogger())
	entries := []models.TrendingEntry{
		{Keyword: "ai", Heat: 90},
		{Keyword: "election", Heat: 40},
		{Keyword: "weather", Heat: 10},
	}
	if err := cache.SetJSON(context.Background(), c, trendingCacheKey, entries, time.Hour); err != nil {
		t.Fatalf("seeding trending cache failed: %v", err)
	}

	h := &Handlers{cache: c, log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/heat-score/keywords?min_heat=20&limit=5", nil)
	rec := httptest.NewRecorder()
	h.Keywords(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Keywords status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body struct {
		Keywords []models.TrendingEntry `json:"keywords"`
		Total    int                    `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body.Total != 2 {
		t.Fatalf("total = %d, want 2 (min_heat=20 should drop weather)", body.Total)
	}
	for _, e := range body.Keywords {
		if e.Heat < 20 {
			t.Fatalf("Keywords leaked an entry below min_heat: %+v", e)
		}
	}
}

func TestKeywords_EmptyWhenCacheUnpopulated(t *testing.T) {
	c := cache.Connect(context.Background(), "", logger.NewLogger())
	h := &Handlers{cache: c, log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/heat-score/keywords", nil)
	rec := httptest.NewRecorder()
	h.Keywords(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Keywords status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body.Total != 0 {
		t.Fatalf("total = %d, want 0 for an unpopulated cache", body.Total)
	}
}

func TestDecodeAndValidate_RejectsEmptyNewsIDs(t *testing.T) {
	h := &Handlers{validate: validator.New(), log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodPost, "/heat-score/scores", jsonBody(t, map[string]any{"news_ids": []string{}}))
	rec := httptest.NewRecorder()

	var dst newsIDsRequest
	ok := h.decodeAndValidate(rec, req, &dst)
	if ok {
		t.Fatalf("expected validation to reject an empty news_ids list")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDecodeAndValidate_AcceptsWellFormedBody(t *testing.T) {
	h := &Handlers{validate: validator.New(), log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodPost, "/heat-score/scores", jsonBody(t, map[string]any{"news_ids": []string{"n1", "n2"}}))
	rec := httptest.NewRecorder()

	var dst newsIDsRequest
	if !h.decodeAndValidate(rec, req, &dst) {
		t.Fatalf("expected validation to accept a well-formed body, got status %d body %s", rec.Code, rec.Body.String())
	}
	if len(dst.NewsIDs) != 2 {
		t.Fatalf("decoded NewsIDs = %v, want 2 entries", dst.NewsIDs)
	}
}

func testUpstreamClient(t *testing.T, srv *httptest.Server) *upstream.Client {
	t.Helper()
	cfg := &config.Config{
		HeatlinkAPIURL:     srv.URL,
		HeatlinkAPITimeout: 2 * time.Second,
		RetryMaxAttempts:   0,
		RetryBaseBackoff:   time.Millisecond,
		RetryMaxBackoff:    2 * time.Millisecond,
	}
	return upstream.New(cfg, cache.Connect(context.Background(), "", logger.NewLogger()), logger.NewLogger())
}

func TestGetHot_ProxiesUpstreamPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hot": [{"news_id": "n1"}]}`))
	}))
	defer srv.Close()

	h := &Handlers{client: testUpstreamClient(t, srv), log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/external/hot?hot_limit=10", nil)
	rec := httptest.NewRecorder()
	h.GetHot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GetHot status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if _, ok := body["hot"]; !ok {
		t.Fatalf("expected the upstream payload to be proxied verbatim, got %v", body)
	}
}

func TestSources_SurfacesUpstreamBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer srv.Close()

	h := &Handlers{client: testUpstreamClient(t, srv), log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/external/sources", nil)
	rec := httptest.NewRecorder()
	h.Sources(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Sources status = %d, want %d (upstream bad status surfaced as 502)", rec.Code, http.StatusBadGateway)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if _, ok := body["detail"]; !ok {
		t.Fatalf("expected a {detail} error envelope, got %v", body)
	}
}

func TestSource_RejectsMissingSourceID(t *testing.T) {
	h := &Handlers{log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/external/source/", nil)
	rec := httptest.NewRecorder()
	h.Source(rec, req, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Source status = %d, want %d for an empty source_id", rec.Code, http.StatusBadRequest)
	}
}

func TestSearch_ForwardsQueryAndPagingParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	h := &Handlers{client: testUpstreamClient(t, srv), log: logger.NewLogger()}

	req := httptest.NewRequest(http.MethodGet, "/external/search?query=election&page=2&page_size=10", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Search status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotQuery != "election" {
		t.Fatalf("upstream received query = %q, want %q", gotQuery, "election")
	}
}

func TestFlattenQuery_TakesFirstValuePerKey(t *testing.T) {
	got := flattenQuery(map[string][]string{"page": {"1", "2"}, "sort_by": {"heat"}})
	if got["page"] != "1" {
		t.Fatalf("page = %q, want %q", got["page"], "1")
	}
	if got["sort_by"] != "heat" {
		t.Fatalf("sort_by = %q, want %q", got["sort_by"], "heat")
	}
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return bytes.NewReader(b)
}
