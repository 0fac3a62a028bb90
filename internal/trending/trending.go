// Package trending is the Trending-Keyword Aggregator (spec §4.I): mines
// recently scored items to rank keywords/phrases/topics and caches the
// ranked list. Grounded directly on the original HeatSight service's
// update_keyword_heat.
package trending

import (
	"context"
	"sort"
	"time"

	"heatsight/internal/cache"
	"heatsight/internal/config"
	"heatsight/internal/models"
	"heatsight/internal/store"
	"heatsight/pkg/logger"
)

const cacheKey = "heatsight:heatscore:keywords"
const cacheTTL = 2 * time.Hour

type keywordAgg struct {
	count       int
	totalWeight float64
	totalHeat   float64
	sources     map[string]bool
	kwType      models.KeywordType
}

// Aggregator computes and caches the trending list.
type Aggregator struct {
	store *store.Store
	cache cache.Cache
	cfg   *config.Config
	log   *logger.Logger
}

func New(st *store.Store, c cache.Cache, cfg *config.Config, log *logger.Logger) *Aggregator {
	return &Aggregator{store: st, cache: c, cfg: cfg, log: log}
}

// Run implements spec §4.I: aggregates rows from the last WindowHours with
// heat_score >= MinHeatScore, up to MaxRows, applies per-type thresholds,
// scales and clamps heat, sorts descending, keeps top TrendingTopN.
func (a *Aggregator) Run(ctx context.Context) ([]models.TrendingEntry, error) {
	minScore := a.cfg.TrendingMinHeatScore
	maxAge := a.cfg.TrendingWindowHours

	rows, err := a.store.GetTop(ctx, store.TopFilter{
		Limit:       a.cfg.TrendingMaxRows,
		Skip:        0,
		MinScore:    &minScore,
		MaxAgeHours: &maxAge,
	})
	if err != nil {
		a.log.Error("trending: fetch recent rows failed", "error", err)
		return nil, err
	}

	aggs := make(map[string]*keywordAgg)
	for _, row := range rows {
		for _, kw := range row.Keywords {
			if kw.Word == "" {
				continue
			}
			agg, ok := aggs[kw.Word]
			if !ok {
				agg = &keywordAgg{sources: make(map[string]bool), kwType: kw.Type}
				aggs[kw.Word] = agg
			}
			agg.count++
			agg.totalWeight += kw.Weight
			agg.totalHeat += row.HeatScoreValue
			agg.sources[row.SourceID] = true
		}
	}

	var entries []models.TrendingEntry
	now := time.Now().UTC()
	for word, agg := range aggs {
		if !passesThreshold(agg) {
			continue
		}

		avgWeight := agg.totalWeight / float64(agg.count)
		avgHeat := agg.totalHeat / float64(agg.count)
		raw := float64(agg.count) * avgWeight * avgHeat * float64(len(agg.sources))

		var divisor float64
		switch agg.kwType {
		case models.KeywordTypeTopic:
			divisor = 500
		case models.KeywordTypePhrase:
			divisor = 750
		default:
			divisor = 1000
		}
		heat := raw / divisor
		if heat > 100 {
			heat = 100
		}

		sources := make([]string, 0, len(agg.sources))
		for s := range agg.sources {
			sources = append(sources, s)
		}

		entries = append(entries, models.TrendingEntry{
			Keyword:   word,
			Heat:      heat,
			Count:     agg.count,
			Sources:   sources,
			Type:      agg.kwType,
			UpdatedAt: now,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Heat > entries[j].Heat })
	if len(entries) > a.cfg.TrendingTopN {
		entries = entries[:a.cfg.TrendingTopN]
	}

	if err := cache.SetJSON(ctx, a.cache, cacheKey, entries, cacheTTL); err != nil {
		a.log.Error("trending: cache write failed", "error", err)
	}

	a.log.Info("trending: aggregation complete", "entries", len(entries))
	return entries, nil
}

// passesThreshold applies spec §4.I's per-type filter thresholds.
func passesThreshold(agg *keywordAgg) bool {
	switch agg.kwType {
	case models.KeywordTypeTopic:
		return len(agg.sources) >= 2
	case models.KeywordTypePhrase:
		return len(agg.sources) >= 2 && agg.count >= 2
	default:
		return len(agg.sources) >= 3
	}
}

// Get reads the cached trending list, returning an empty slice (not an
// error) when the cache has not yet been populated (spec §7).
func Get(ctx context.Context, c cache.Cache) ([]models.TrendingEntry, error) {
	var entries []models.TrendingEntry
	found, err := cache.GetJSON(ctx, c, cacheKey, &entries)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.TrendingEntry{}, nil
	}
	return entries, nil
}
