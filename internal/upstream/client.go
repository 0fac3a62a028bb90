// Package upstream is the Upstream Client (spec §4.A): a cached, retrying,
// redirect-following HTTP client for the upstream news-feed API. Grounded
// on the teacher's internal/services/api_client.go generic-GET-executor,
// circuit-breaker, and per-kind-TTL-cache pattern, with the circuit breaker
// upgraded to github.com/sony/gobreaker/v2 and retry timing throttled
// through golang.org/x/time/rate.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"heatsight/internal/cache"
	"heatsight/internal/config"
	apperrors "heatsight/pkg/errors"
	"heatsight/pkg/logger"
)

// GetOptions configures a single cached GET per spec §4.A.
type GetOptions struct {
	Params        map[string]string
	Cache         bool
	CacheKeyPrefix string
	TTL           time.Duration
	ForceRefresh  bool
}

// Client is the shared, singleton upstream HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	cfg        *config.Config
	log        *logger.Logger
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	limiter    *rate.Limiter
}

// New constructs the upstream client. httpClient follows redirects via the
// standard library default (net/http follows up to 10 redirects already).
func New(cfg *config.Config, c cache.Cache, log *logger.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "heatlink-upstream",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.HeatlinkAPIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.HeatlinkAPITimeout},
		cache:      c,
		cfg:        cfg,
		log:        log,
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
		limiter:    rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
	}
}

// buildURL composes the request URL, collapsing any accidental duplicated
// "/api/" segments as spec §4.A requires.
func (c *Client) buildURL(endpoint string, params map[string]string) string {
	path := strings.TrimLeft(endpoint, "/")
	full := c.baseURL + "/" + path
	full = strings.ReplaceAll(full, "/api/api/", "/api/")

	if len(params) == 0 {
		return full
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(full)
	sb.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}

// cacheKey composes "heatlink:" + prefix + ":" + sorted(k=v) joined by ":".
func cacheKey(prefix string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+2)
	parts = append(parts, "heatlink", prefix)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return strings.Join(parts, ":")
}

// Get performs the generic cached-GET contract from spec §4.A.
func (c *Client) Get(ctx context.Context, endpoint string, opts GetOptions) (map[string]any, error) {
	var key string
	if opts.Cache {
		prefix := opts.CacheKeyPrefix
		if prefix == "" {
			prefix = endpoint
		}
		key = cacheKey(prefix, opts.Params)

		if !opts.ForceRefresh {
			var cached map[string]any
			found, err := cache.GetJSON(ctx, c.cache, key, &cached)
			if err == nil && found {
				return cached, nil
			}
		}
	}

	body, err := c.getWithRetry(ctx, endpoint, opts.Params)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Upstream may return a bare array; wrap it under "items" so callers
		// see a uniform shape (spec §9's dynamic-typing-at-ingress note).
		var arr []any
		if arrErr := json.Unmarshal(body, &arr); arrErr == nil {
			decoded = map[string]any{"items": arr}
		} else {
			return nil, apperrors.NewUpstreamMalformed("decode upstream response failed", err)
		}
	}

	if opts.Cache {
		ttl := opts.TTL
		if ttl == 0 {
			ttl = time.Hour
		}
		_ = cache.SetJSON(ctx, c.cache, key, decoded, ttl)
	}

	return decoded, nil
}

// getWithRetry retries transport failures and 5xx responses up to
// cfg.RetryMaxAttempts times with exponential backoff capped at
// cfg.RetryMaxBackoff (spec: 1s -> 2s -> 4s, capped at 10s).
func (c *Client) getWithRetry(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	url := c.buildURL(endpoint, params)
	backoff := c.cfg.RetryBaseBackoff

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, apperrors.NewUpstreamUnavailable("rate limiter wait failed", err)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, apperrors.NewUpstreamUnavailable("context cancelled during retry backoff", ctx.Err())
			}
			backoff *= 2
			if backoff > c.cfg.RetryMaxBackoff {
				backoff = c.cfg.RetryMaxBackoff
			}
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			req, rErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if rErr != nil {
				return nil, rErr
			}
			return c.httpClient.Do(req)
		})
		if err != nil {
			lastErr = err
			c.log.Warn("upstream request failed, will retry", "endpoint", endpoint, "attempt", attempt, "error", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = apperrors.NewUpstreamBadStatus("upstream server error", resp.StatusCode, nil)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, apperrors.NewUpstreamBadStatus("upstream client error", resp.StatusCode, nil)
		}

		return body, nil
	}

	return nil, apperrors.NewUpstreamUnavailable("upstream unavailable after retries", lastErr)
}

// Convenience endpoints, each forwarding Get with the correct prefix/TTL.

func (c *Client) GetHot(ctx context.Context, hotLimit, recommendedLimit, categoryLimit int) (map[string]any, error) {
	params := map[string]string{
		"hot_limit":         strconv.Itoa(hotLimit),
		"recommended_limit": strconv.Itoa(recommendedLimit),
		"category_limit":    strconv.Itoa(categoryLimit),
	}
	return c.Get(ctx, "external/hot", GetOptions{Params: params, Cache: true, CacheKeyPrefix: "hot_news", TTL: c.cfg.TTL.HotNews})
}

func (c *Client) GetSources(ctx context.Context, forceRefresh bool) (map[string]any, error) {
	return c.Get(ctx, "external/sources", GetOptions{Cache: true, CacheKeyPrefix: "sources", TTL: c.cfg.TTL.Sources, ForceRefresh: forceRefresh})
}

func (c *Client) GetSource(ctx context.Context, sourceID string, forceRefresh bool) (map[string]any, error) {
	endpoint := fmt.Sprintf("external/source/%s", sourceID)
	return c.Get(ctx, endpoint, GetOptions{Cache: true, CacheKeyPrefix: "source_detail", TTL: c.cfg.TTL.SourceDetail, ForceRefresh: forceRefresh})
}

func (c *Client) GetUnified(ctx context.Context, params map[string]string) (map[string]any, error) {
	return c.Get(ctx, "external/unified", GetOptions{Params: params, Cache: true, CacheKeyPrefix: "unified_news", TTL: c.cfg.TTL.UnifiedNews})
}

func (c *Client) Search(ctx context.Context, query string, page, pageSize int) (map[string]any, error) {
	params := map[string]string{
		"query":     query,
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	}
	return c.Get(ctx, "external/search", GetOptions{Params: params, Cache: true, CacheKeyPrefix: "search", TTL: c.cfg.TTL.Search})
}

func (c *Client) GetSourceTypes(ctx context.Context) (map[string]any, error) {
	return c.Get(ctx, "external/source-types", GetOptions{Cache: true, CacheKeyPrefix: "source_types", TTL: c.cfg.TTL.SourceTypes})
}

func (c *Client) GetStats(ctx context.Context) (map[string]any, error) {
	return c.Get(ctx, "external/stats", GetOptions{Cache: true, CacheKeyPrefix: "sources_stats", TTL: c.cfg.TTL.SourcesStats})
}

// ExtractItems locates the item list under the first present of "news",
// "items", or "sources" (spec §4.G / §9), returning nil when none is a list.
// A bare-array response has already been wrapped under "items" by Get.
func ExtractItems(payload map[string]any) []any {
	if news, ok := payload["news"].([]any); ok {
		return news
	}
	if items, ok := payload["items"].([]any); ok {
		return items
	}
	if items, ok := payload["sources"].([]any); ok {
		return items
	}
	return nil
}
