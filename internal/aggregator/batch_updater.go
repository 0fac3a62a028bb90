// Package aggregator is the Batch Updater (spec §4.H): orchestrates
// Fan-out Fetcher -> Score Calculator -> Heat-Score Store writes for the
// full corpus on demand. Grounded directly on the original HeatSight
// service's update_all_heat_scores.
package aggregator

import (
	"context"

	"heatsight/internal/cache"
	"heatsight/internal/config"
	"heatsight/internal/dedup"
	"heatsight/internal/fanout"
	"heatsight/internal/models"
	"heatsight/internal/scoring"
	"heatsight/internal/sourceweight"
	"heatsight/internal/store"
	"heatsight/internal/upstream"
	apperrors "heatsight/pkg/errors"
	"heatsight/pkg/logger"
)

// BatchUpdater wires the components for a full scoring pass.
type BatchUpdater struct {
	client  *upstream.Client
	fetcher *fanout.Fetcher
	store   *store.Store
	cache   cache.Cache
	cfg     *config.Config
	log     *logger.Logger
	dedup   *dedup.Suppressor
}

func New(client *upstream.Client, fetcher *fanout.Fetcher, st *store.Store, c cache.Cache, cfg *config.Config, log *logger.Logger) *BatchUpdater {
	return &BatchUpdater{client: client, fetcher: fetcher, store: st, cache: c, cfg: cfg, log: log, dedup: dedup.New()}
}

// Run implements spec §4.H's orchestration: fetch sources with a 15s hard
// timeout, fan out, score and persist each item, never raising on partial
// failures. Returns news_id -> HeatScore for every successfully written row.
func (b *BatchUpdater) Run(ctx context.Context) map[string]models.HeatScore {
	b.log.Info("batch_updater: starting heat score update")

	sourcesCtx, cancel := context.WithTimeout(ctx, b.cfg.BatchSourcesTimeout)
	sourcesPayload, err := b.client.GetSources(sourcesCtx, true)
	cancel()
	if err != nil {
		b.log.Error("batch_updater: get_sources failed, terminating run", "error", err)
		return map[string]models.HeatScore{}
	}

	rawSources := upstream.ExtractItems(sourcesPayload)
	if len(rawSources) == 0 {
		b.log.Warn("batch_updater: no sources returned, terminating run")
		return map[string]models.HeatScore{}
	}

	sources := make([]fanout.SourceDescriptor, 0, len(rawSources))
	for _, raw := range rawSources {
		if m, ok := raw.(map[string]any); ok {
			sources = append(sources, fanout.SourceDescriptor(m))
		}
	}

	items := b.fetcher.FetchAll(ctx, sources)
	if len(items) == 0 {
		b.log.Warn("batch_updater: no items fetched, terminating run")
		return map[string]models.HeatScore{}
	}
	items = b.dedup.Filter(items)

	localProxy := scoring.NewLocalRelevanceProxy(items, b.cfg.NearDupeThreshold)
	relevance := scoring.NewUpstreamRelevanceSource(b.client, localProxy, b.log)
	weights := sourceweight.NewLookup(b.cache)
	calculator := scoring.New(b.cfg, relevance, weights, b.log)

	results := make(map[string]models.HeatScore, len(items))
	for _, item := range items {
		hs, ok := b.scoreItem(ctx, calculator, item, items)
		if !ok {
			continue
		}

		if err := b.store.Create(ctx, &hs); err != nil {
			b.log.Error("batch_updater: persist failed", "news_id", item.ID, "error", apperrors.NewItemScoring(item.ID, item.Title, item.SourceID, err))
			continue
		}
		results[item.ID] = hs
	}

	b.log.Info("batch_updater: heat score update complete", "items", len(items), "scored", len(results))
	return results
}

// scoreItem scores a single item, converting a panic into a logged skip so
// one malformed item never aborts the batch (spec §4.F's failure policy).
func (b *BatchUpdater) scoreItem(ctx context.Context, calculator *scoring.Calculator, item models.NewsItem, batch []models.NewsItem) (result models.HeatScore, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("batch_updater: item scoring panicked", "news_id", item.ID, "title", item.Title, "source_id", item.SourceID, "panic", r)
			ok = false
		}
	}()
	return calculator.Calculate(ctx, item, batch), true
}
