// Package cache implements the engine's two-tier cache layer (spec §4.B): a
// uniform key/value interface over Redis with a transparent in-process
// fallback when Redis is unreachable. Grounded on the teacher's
// internal/services/cache_service.go shape (stats, JSON-encode-composite
// values), generalized away from its India/IST-business-hour TTL logic.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "heatsight/pkg/errors"
	"heatsight/pkg/logger"
)

// Cache is the uniform interface used by every other component. It never
// exposes whether the backend is Redis or the in-process fallback.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	DBSize(ctx context.Context) (int64, error)
	Disconnect() error
}

// GetJSON decodes a cached value into dst, reporting whether the key existed.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, apperrors.NewUpstreamMalformed("cache value decode failed", err)
	}
	return true, nil
}

// SetJSON encodes value as JSON and stores it with ttl.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(raw), ttl)
}

// redisCache is the primary Redis-backed implementation.
type redisCache struct {
	client *redis.Client
	log    *logger.Logger
}

func (r *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *redisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}

func (r *redisCache) DBSize(ctx context.Context) (int64, error) {
	return r.client.DBSize(ctx).Result()
}

func (r *redisCache) Disconnect() error {
	return r.client.Close()
}

// entry is one in-process cache slot, with its own expiry.
type entry struct {
	value     string
	expiresAt time.Time
}

// inProcessCache is the fallback used when Redis cannot be reached at
// connect time. Get and Exists treat an expired entry as absent, and Get
// evicts it; Keys and DBSize still count expired entries until then.
type inProcessCache struct {
	mu   sync.RWMutex
	data map[string]entry
}

func newInProcessCache() *inProcessCache {
	return &inProcessCache{data: make(map[string]entry)}
}

func (c *inProcessCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *inProcessCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

func (c *inProcessCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *inProcessCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if ok && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return false, nil
	}
	return ok, nil
}

func (c *inProcessCache) Keys(_ context.Context, pattern string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		if matchPattern(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *inProcessCache) DBSize(_ context.Context) (int64, error) {
	c.mu.RLock()
	n := int64(len(c.data))
	c.mu.RUnlock()
	return n, nil
}

func (c *inProcessCache) Disconnect() error {
	c.mu.Lock()
	c.data = make(map[string]entry)
	c.mu.Unlock()
	return nil
}

// matchPattern supports the trailing "*" glob style used throughout this
// codebase's cache-key namespaces (e.g. "heatsight:heatscore:*").
func matchPattern(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return pattern == key
}

// Connect attempts to reach Redis; on failure it transparently returns an
// in-process Cache with the identical interface (spec §4.B fallback rule).
// The choice is logged for operators but invisible to callers.
func Connect(ctx context.Context, redisURL string, log *logger.Logger) Cache {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("cache: invalid redis URL, using in-process fallback", "error", err)
		return newInProcessCache()
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("cache: redis unreachable, using in-process fallback", "error", err)
		_ = client.Close()
		return newInProcessCache()
	}
	return &redisCache{client: client, log: log}
}
