// Package fanout is the Fan-out Fetcher (spec §4.G): bounded-concurrency
// fetch of all sources, flattening items and tagging them with source id.
// Grounded on the original HeatSight service's fetch_all_news_from_sources
// (chunk size 3, 10s per-source timeout, ~100ms inter-chunk yield) and the
// teacher's worker-pool fields in services.go.
package fanout

import (
	"context"
	"sync"
	"time"

	"heatsight/internal/models"
	"heatsight/internal/upstream"
	"heatsight/pkg/logger"
)

// SourceDescriptor is an upstream-provided source entry; its id may appear
// under any of source_id, id, key, or name (first present wins, spec §4.G).
type SourceDescriptor map[string]any

func sourceID(d SourceDescriptor) (string, bool) {
	for _, field := range []string{"source_id", "id", "key", "name"} {
		if v, ok := d[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Fetcher runs the chunked fan-out fetch.
type Fetcher struct {
	client    *upstream.Client
	log       *logger.Logger
	chunkSize int
	timeout   time.Duration
}

func New(client *upstream.Client, log *logger.Logger, chunkSize int, perSourceTimeout time.Duration) *Fetcher {
	if chunkSize <= 0 {
		chunkSize = 3
	}
	if perSourceTimeout <= 0 {
		perSourceTimeout = 10 * time.Second
	}
	return &Fetcher{client: client, log: log, chunkSize: chunkSize, timeout: perSourceTimeout}
}

// FetchAll iterates sources in chunks, issuing concurrent per-source detail
// fetches bounded by a per-source timeout. A chunk's failures never affect
// siblings; between chunks the fetcher yields ~100ms.
func (f *Fetcher) FetchAll(ctx context.Context, sources []SourceDescriptor) []models.NewsItem {
	var all []models.NewsItem

	for start := 0; start < len(sources); start += f.chunkSize {
		end := start + f.chunkSize
		if end > len(sources) {
			end = len(sources)
		}
		chunk := sources[start:end]

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, desc := range chunk {
			id, ok := sourceID(desc)
			if !ok {
				f.log.Warn("fanout: skipping source with no id", "descriptor", desc)
				continue
			}

			wg.Add(1)
			go func(sourceID string) {
				defer wg.Done()

				fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
				defer cancel()

				payload, err := f.client.GetSource(fetchCtx, sourceID, false)
				if err != nil {
					f.log.Error("fanout: source fetch failed", "source_id", sourceID, "error", err)
					return
				}

				rawItems := upstream.ExtractItems(payload)
				items := make([]models.NewsItem, 0, len(rawItems))
				for _, raw := range rawItems {
					item, ok := toNewsItem(raw)
					if !ok {
						continue
					}
					item.SourceID = sourceID
					items = append(items, item)
				}

				mu.Lock()
				all = append(all, items...)
				mu.Unlock()
			}(id)
		}
		wg.Wait()

		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return all
		}
	}

	return all
}

// toNewsItem adapts a raw decoded-JSON item into models.NewsItem.
func toNewsItem(raw any) (models.NewsItem, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return models.NewsItem{}, false
	}

	item := models.NewsItem{}
	if id, ok := m["id"].(string); ok {
		item.ID = id
	}
	if title, ok := m["title"].(string); ok {
		item.Title = title
	}
	if url, ok := m["url"].(string); ok {
		item.URL = url
	}
	if pub, ok := m["published_at"].(string); ok {
		item.PublishedAt = pub
	}
	if content, ok := m["content"].(string); ok {
		item.Content = content
	}
	if category, ok := m["category"].(string); ok {
		item.Category = category
	}
	if metaData, ok := m["meta_data"].(map[string]any); ok {
		item.MetaData = metaData
	}
	if metrics, ok := m["metrics"].(map[string]any); ok {
		parsed := make(map[string]float64, len(metrics))
		for k, v := range metrics {
			if f, ok := toFloat(v); ok {
				parsed[k] = f
			}
		}
		item.Metrics = parsed
	}
	if item.ID == "" && item.Title == "" {
		return models.NewsItem{}, false
	}
	return item, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
