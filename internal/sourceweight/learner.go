// Package sourceweight is the Source-Weight Learner (spec §4.J): computes
// per-source weights from engagement and update cadence, caching the
// result. Grounded directly on the original HeatSight service's
// update_source_weights.
package sourceweight

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/araddon/dateparse"

	"heatsight/internal/cache"
	"heatsight/internal/config"
	"heatsight/internal/models"
	"heatsight/internal/upstream"
	"heatsight/pkg/logger"
)

const cacheKey = "heatsight:heatscore:source_weights"
const cacheTTL = 24 * time.Hour

// engagementBaselines is spec §4.J's per-source normalization table (the
// §4.F.3 table plus bilibili and 36kr).
var engagementBaselines = map[string]float64{
	"weibo":    10000,
	"zhihu":    5000,
	"toutiao":  8000,
	"bilibili": 3000,
	"36kr":     2000,
}

const defaultEngagementBaseline = 1000

// baseWeights is the fuller base-weight table from original_source (spec
// §4.J / SPEC_FULL.md item 4), distinct from the Glossary's fallback table
// used by the Score Calculator.
var baseWeights = map[string]float64{
	"weibo": 90, "zhihu": 85, "toutiao": 85, "baidu": 85,
	"bilibili": 80, "douyin": 80, "kuaishou": 75, "36kr": 75,
	"wallstreetcn": 75, "thepaper": 70, "ithome": 70, "zaobao": 70,
	"bbc_world": 85, "bloomberg": 85, "v2ex": 65, "hackernews": 70, "github": 60,
}

const defaultBaseWeight = 50

// Learner computes and caches SourceWeight records.
type Learner struct {
	client *upstream.Client
	cache  cache.Cache
	cfg    *config.Config
	log    *logger.Logger
}

func New(client *upstream.Client, c cache.Cache, cfg *config.Config, log *logger.Logger) *Learner {
	return &Learner{client: client, cache: c, cfg: cfg, log: log}
}

// Run implements spec §4.J: for each source, compute engagement and
// update-frequency scores from recent items, blend with the base weight,
// and write the map to cache.
func (l *Learner) Run(ctx context.Context) (map[string]models.SourceWeight, error) {
	sourcesPayload, err := l.client.GetSources(ctx, true)
	if err != nil {
		l.log.Error("sourceweight: get_sources failed", "error", err)
		return nil, err
	}
	rawSources := upstream.ExtractItems(sourcesPayload)

	result := make(map[string]models.SourceWeight, len(rawSources))
	for _, raw := range rawSources {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, ok := sourceIDOf(m)
		if !ok {
			continue
		}

		payload, err := l.client.GetSource(ctx, id, true)
		if err != nil {
			l.log.Error("sourceweight: source fetch failed", "source_id", id, "error", err)
			continue
		}
		rawItems := upstream.ExtractItems(payload)
		if len(rawItems) == 0 {
			continue
		}

		avgEngagement := l.engagementScore(id, rawItems)
		updateFreq := updateFrequencyScore(rawItems)
		base, ok := baseWeights[id]
		if !ok {
			base = defaultBaseWeight
		}

		weight := 0.5*base + 0.3*avgEngagement + 0.2*updateFreq
		weight = math.Max(10, math.Min(weight, 100))

		result[id] = models.SourceWeight{
			Weight:          weight,
			AvgEngagement:   avgEngagement,
			UpdateFrequency: updateFreq,
			ItemCount:       len(rawItems),
			UpdatedAt:       time.Now().UTC(),
		}
	}

	if len(result) > 0 {
		if err := cache.SetJSON(ctx, l.cache, cacheKey, result, cacheTTL); err != nil {
			l.log.Error("sourceweight: cache write failed", "error", err)
		}
	}

	l.log.Info("sourceweight: learning complete", "sources", len(result))
	return result, nil
}

func sourceIDOf(m map[string]any) (string, bool) {
	for _, field := range []string{"source_id", "id"} {
		if v, ok := m[field].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// engagementScore implements spec §4.J: per-item raw engagement
// view*1 + like*3 + comment*5 + share*10, normalized against the per-source
// baseline, averaged across items.
func (l *Learner) engagementScore(sourceID string, rawItems []any) float64 {
	baseline, ok := engagementBaselines[sourceID]
	if !ok {
		baseline = defaultEngagementBaseline
	}

	var total float64
	var n int
	for _, raw := range rawItems {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		metrics, _ := m["metrics"].(map[string]any)
		view := metricFloat(metrics, "view_count")
		like := metricFloat(metrics, "like_count")
		comment := metricFloat(metrics, "comment_count")
		share := metricFloat(metrics, "share_count")

		engagement := view*1 + like*3 + comment*5 + share*10
		normalized := math.Min(engagement/baseline*100, 100)
		total += normalized
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func metricFloat(metrics map[string]any, key string) float64 {
	if metrics == nil {
		return 0
	}
	if v, ok := metrics[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return 0
}

// updateFrequencyScore implements spec §4.J: with >=5 items, average the
// consecutive intervals (hours) of the first 5 publish timestamps
// (newest-first as returned by upstream) and map to a discrete score;
// otherwise default to 50.
func updateFrequencyScore(rawItems []any) float64 {
	if len(rawItems) < 5 {
		return 50
	}

	var timestamps []time.Time
	for i := 0; i < 5 && i < len(rawItems); i++ {
		m, ok := rawItems[i].(map[string]any)
		if !ok {
			continue
		}
		pub, ok := m["published_at"].(string)
		if !ok {
			continue
		}
		t, err := dateparse.ParseAny(pub)
		if err != nil {
			continue
		}
		timestamps = append(timestamps, t.UTC())
	}
	if len(timestamps) < 5 {
		return 50
	}

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].After(timestamps[j]) })

	var intervals []float64
	for i := 0; i < len(timestamps)-1; i++ {
		hours := timestamps[i].Sub(timestamps[i+1]).Hours()
		intervals = append(intervals, hours)
	}
	if len(intervals) == 0 {
		return 50
	}
	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	avg := sum / float64(len(intervals))

	switch {
	case avg <= 5.0/60:
		return 100
	case avg <= 10.0/60:
		return 90
	case avg <= 30.0/60:
		return 80
	case avg <= 1:
		return 70
	case avg <= 2:
		return 60
	case avg <= 4:
		return 50
	default:
		return 40
	}
}

// Get reads the cached source-weight map, returning an empty map (not an
// error) when the cache has not yet been populated (spec §7).
func Get(ctx context.Context, c cache.Cache) (map[string]models.SourceWeight, error) {
	var result map[string]models.SourceWeight
	found, err := cache.GetJSON(ctx, c, cacheKey, &result)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]models.SourceWeight{}, nil
	}
	return result, nil
}

// Lookup implements scoring.SourceWeightLookup against the cached map,
// letting the Score Calculator consult learned weights when present.
type Lookup struct {
	cache cache.Cache
}

func NewLookup(c cache.Cache) *Lookup {
	return &Lookup{cache: c}
}

func (l *Lookup) Lookup(ctx context.Context, sourceID string) (float64, bool) {
	weights, err := Get(ctx, l.cache)
	if err != nil {
		return 0, false
	}
	w, ok := weights[sourceID]
	if !ok {
		return 0, false
	}
	return w.Weight, true
}
