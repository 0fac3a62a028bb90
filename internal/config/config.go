// Package config loads the engine's runtime configuration from the
// environment, following the teacher's getEnv-with-default convention.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TTLConfig holds the per-kind cache TTLs from spec §4.A.
type TTLConfig struct {
	HotNews      time.Duration
	UnifiedNews  time.Duration
	Search       time.Duration
	Sources      time.Duration
	SourceDetail time.Duration
	SourceTypes  time.Duration
	SourcesStats time.Duration
}

// ScoringWeights holds the Score Calculator's coefficients from spec §4.F.
type ScoringWeights struct {
	Keyword     float64
	Recency     float64
	Platform    float64
	CrossSource float64
	Source      float64
}

// Config is the engine's full runtime configuration.
type Config struct {
	// Ambient / spec §6 environment variables.
	DatabaseURL        string
	RedisURL           string
	HeatlinkAPIURL     string
	HeatlinkAPITimeout time.Duration
	AllowedOrigins     []string
	LogLevel           string
	Debug              bool
	Host               string
	Port               string

	// Internal tunables (not named by spec, but made overridable like the
	// teacher overrides every threshold via environment).
	FanoutChunkSize     int
	FanoutSourceTimeout time.Duration
	BatchSourcesTimeout time.Duration
	BatchTaskTimeout    time.Duration

	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration

	BaselineFactor    float64
	RecencyDecayHours float64
	NearDupeThreshold float64

	TrendingWindowHours  int
	TrendingMinHeatScore float64
	TrendingMaxRows      int
	TrendingTopN         int

	HeatUpdateIntervalSec    int
	KeywordUpdateIntervalSec int
	SourceWeightIntervalSec  int

	Weights ScoringWeights
	TTL     TTLConfig
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func parseAllowedOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"*"}
	}
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Load reads .env (if present) then the environment, applying spec defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "postgres://localhost:5432/heatsight?sslmode=disable"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		HeatlinkAPIURL:     getEnv("HEATLINK_API_URL", "http://localhost:8000/api"),
		HeatlinkAPITimeout: time.Duration(getEnvAsInt("HEATLINK_API_TIMEOUT", 10)) * time.Second,
		AllowedOrigins:     parseAllowedOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Debug:              getEnvAsBool("DEBUG", false),
		Host:               getEnv("HOST", "0.0.0.0"),
		Port:               getEnv("PORT", "8080"),

		FanoutChunkSize:     getEnvAsInt("FANOUT_CHUNK_SIZE", 3),
		FanoutSourceTimeout: time.Duration(getEnvAsInt("FANOUT_SOURCE_TIMEOUT_SECONDS", 10)) * time.Second,
		BatchSourcesTimeout: time.Duration(getEnvAsInt("BATCH_SOURCES_TIMEOUT_SECONDS", 15)) * time.Second,
		BatchTaskTimeout:    time.Duration(getEnvAsInt("BATCH_TASK_TIMEOUT_SECONDS", 300)) * time.Second,

		RetryMaxAttempts: getEnvAsInt("UPSTREAM_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseBackoff: time.Duration(getEnvAsInt("UPSTREAM_RETRY_BASE_BACKOFF_MS", 1000)) * time.Millisecond,
		RetryMaxBackoff:  time.Duration(getEnvAsInt("UPSTREAM_RETRY_MAX_BACKOFF_MS", 10000)) * time.Millisecond,

		BaselineFactor:    getEnvAsFloat("SCORING_BASELINE_FACTOR", 10.0),
		RecencyDecayHours: getEnvAsFloat("SCORING_RECENCY_DECAY_HOURS", 24.0),
		NearDupeThreshold: getEnvAsFloat("SIMILARITY_NEAR_DUPE_THRESHOLD", 0.6),

		TrendingWindowHours:  getEnvAsInt("TRENDING_WINDOW_HOURS", 12),
		TrendingMinHeatScore: getEnvAsFloat("TRENDING_MIN_HEAT_SCORE", 20.0),
		TrendingMaxRows:      getEnvAsInt("TRENDING_MAX_ROWS", 1000),
		TrendingTopN:         getEnvAsInt("TRENDING_TOP_N", 300),

		HeatUpdateIntervalSec:    getEnvAsInt("SCHEDULER_HEAT_UPDATE_INTERVAL_SECONDS", 600),
		KeywordUpdateIntervalSec: getEnvAsInt("SCHEDULER_KEYWORD_UPDATE_INTERVAL_SECONDS", 3600),
		SourceWeightIntervalSec:  getEnvAsInt("SCHEDULER_SOURCE_WEIGHT_INTERVAL_SECONDS", 7200),

		Weights: ScoringWeights{
			Keyword:     getEnvAsFloat("WEIGHT_KEYWORD", 0.30),
			Recency:     getEnvAsFloat("WEIGHT_RECENCY", 0.25),
			Platform:    getEnvAsFloat("WEIGHT_PLATFORM", 0.15),
			CrossSource: getEnvAsFloat("WEIGHT_CROSS_SOURCE", 0.20),
			Source:      getEnvAsFloat("WEIGHT_SOURCE", 0.10),
		},
		TTL: TTLConfig{
			HotNews:      time.Duration(getEnvAsInt("CACHE_TTL_HOT_NEWS_SECONDS", 300)) * time.Second,
			UnifiedNews:  time.Duration(getEnvAsInt("CACHE_TTL_UNIFIED_NEWS_SECONDS", 300)) * time.Second,
			Search:       time.Duration(getEnvAsInt("CACHE_TTL_SEARCH_SECONDS", 180)) * time.Second,
			Sources:      time.Duration(getEnvAsInt("CACHE_TTL_SOURCES_SECONDS", 3600)) * time.Second,
			SourceDetail: time.Duration(getEnvAsInt("CACHE_TTL_SOURCE_DETAIL_SECONDS", 600)) * time.Second,
			SourceTypes:  time.Duration(getEnvAsInt("CACHE_TTL_SOURCE_TYPES_SECONDS", 3600)) * time.Second,
			SourcesStats: time.Duration(getEnvAsInt("CACHE_TTL_SOURCES_STATS_SECONDS", 1800)) * time.Second,
		},
	}

	return cfg, nil
}
