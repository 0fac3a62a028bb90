// Package scoring is the Score Calculator (spec §4.F): combines five
// normalized sub-scores into a final 0-100 heat score per item. Grounded
// directly on the original HeatSight service's calculate_heat_score.
package scoring

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"heatsight/internal/config"
	"heatsight/internal/models"
	"heatsight/internal/similarity"
	"heatsight/internal/tokenizer"
	"heatsight/pkg/logger"
)

// RelevanceSource resolves the relevance/keyword-match sub-score (spec
// §4.F.1, and the Open Question in spec §9.b about the undocumented
// "news?search=" endpoint). The default implementation queries upstream
// search; when that is unavailable, a local proxy counts the titles in the
// current batch that contain the keyword instead.
type RelevanceSource interface {
	CountMatches(ctx context.Context, keyword string) (int, error)
}

// platformBaselines is the per-source baseline table for platform
// popularity normalization (spec §4.F.3).
var platformBaselines = map[string]float64{
	"weibo":   10000,
	"zhihu":   5000,
	"toutiao": 8000,
}

const defaultPlatformBaseline = 1000

// fallbackSourceWeights is the Glossary's fixed fallback table, used when
// no learned SourceWeight is available from the cache.
var fallbackSourceWeights = map[string]float64{
	"weibo":   90,
	"baidu":   90,
	"zhihu":   85,
	"toutiao": 80,
	"sina":    75,
	"163":     70,
	"qq":      70,
	"sohu":    65,
	"ifeng":   65,
}

const defaultSourceWeight = 50

// SourceCategoryMap is the full category-fallback table from
// original_source's news_heat_score_service.py (spec §4.F's category
// derivation, supplemented per SPEC_FULL.md item 3). Exported so the
// update-categories background task can reuse it for backfilling stored
// rows.
var SourceCategoryMap = map[string]string{
	"weibo":       "social",
	"zhihu":       "knowledge",
	"toutiao":     "news",
	"baidu":       "search",
	"bilibili":    "video",
	"douyin":      "video",
	"36kr":        "technology",
	"wallstreetcn": "finance",
	"ithome":      "technology",
	"thepaper":    "news",
	"zaobao":      "news",
	"sina":        "news",
	"qq":          "news",
	"163":         "news",
	"sohu":        "news",
	"ifeng":       "news",
	"bbc_world":   "world",
	"bloomberg":   "finance",
	"hackernews":  "technology",
	"github":      "technology",
	"v2ex":        "technology",
	"kuaishou":    "video",
}

const defaultCategory = "others"

// SourceWeightLookup resolves the current per-source weight: learner output
// when available, else the Glossary fallback table, else the default.
type SourceWeightLookup interface {
	Lookup(ctx context.Context, sourceID string) (float64, bool)
}

// Calculator computes per-item heat scores.
type Calculator struct {
	cfg        *config.Config
	relevance  RelevanceSource
	weights    SourceWeightLookup
	log        *logger.Logger
}

func New(cfg *config.Config, relevance RelevanceSource, weights SourceWeightLookup, log *logger.Logger) *Calculator {
	return &Calculator{cfg: cfg, relevance: relevance, weights: weights, log: log}
}

// ParsePublishedAt parses published_at robustly, accepting "Z", offset, and
// naive ISO-8601 forms (spec §4.F.2), via github.com/araddon/dateparse.
func ParsePublishedAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Now().UTC(), err
	}
	return t.UTC(), nil
}

// recencyScore implements spec §4.F.2: 100 * exp(-hours_since_publish / 24).
func recencyScore(publishedAt time.Time, decayHours float64) float64 {
	hours := time.Since(publishedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return 100 * math.Exp(-hours/decayHours)
}

// platformScore implements spec §4.F.3.
func platformScore(item models.NewsItem) float64 {
	var raw float64
	var found bool
	for _, key := range []string{"view_count", "like_count", "comment_count", "heat"} {
		if v, ok := item.Metrics[key]; ok {
			raw = v
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	baseline, ok := platformBaselines[item.SourceID]
	if !ok {
		baseline = defaultPlatformBaseline
	}
	return math.Min(raw/baseline*100, 100)
}

// crossSourceScore implements spec §4.F.4: distinct source_ids among item
// and the other batch items whose titles are near-duplicates of item's
// title. An item with no near-duplicate in the batch scores 0.
func crossSourceScore(item models.NewsItem, batch []models.NewsItem, threshold float64) float64 {
	sources := make(map[string]bool)
	itemTokens := tokenizer.TokenSet(item.Title)
	for _, other := range batch {
		if other.ID == item.ID && other.SourceID == item.SourceID {
			continue
		}
		if similarity.JaccardSets(itemTokens, tokenizer.TokenSet(other.Title)) > threshold {
			sources[other.SourceID] = true
		}
	}
	if len(sources) > 0 {
		sources[item.SourceID] = true
	}
	return math.Min(float64(len(sources))/10*100, 100)
}

// sourceWeight implements spec §4.F.5: learner output when available, else
// the Glossary fallback table, else default 50.
func (c *Calculator) sourceWeight(ctx context.Context, sourceID string) float64 {
	if c.weights != nil {
		if w, ok := c.weights.Lookup(ctx, sourceID); ok {
			return w
		}
	}
	if w, ok := fallbackSourceWeights[sourceID]; ok {
		return w
	}
	return defaultSourceWeight
}

// deriveCategory implements spec §4.F's category fallback chain: item
// category, then meta_data.category, then the source map, then "others".
func deriveCategory(item models.NewsItem) string {
	if item.Category != "" {
		return item.Category
	}
	if item.MetaData != nil {
		if v, ok := item.MetaData["category"].(string); ok && v != "" {
			return v
		}
	}
	if cat, ok := SourceCategoryMap[item.SourceID]; ok {
		return cat
	}
	return defaultCategory
}

// keywordScore implements spec §4.F.1: for the first 3 keywords, query the
// relevance source and sum matches; normalize by BASELINE_FACTOR.
func (c *Calculator) keywordScore(ctx context.Context, keywords []models.Keyword) float64 {
	limit := 3
	if len(keywords) < limit {
		limit = len(keywords)
	}
	var total int
	for _, kw := range keywords[:limit] {
		if c.relevance == nil {
			continue
		}
		n, err := c.relevance.CountMatches(ctx, kw.Word)
		if err != nil {
			c.log.Error("scoring: relevance lookup failed", "keyword", kw.Word, "error", err)
			continue
		}
		total += n
	}
	return math.Min(float64(total)/c.cfg.BaselineFactor*100, 100)
}

// Calculate computes a full HeatScore for item within batch (spec §4.F).
// Scoring errors for a single item are the caller's responsibility to skip
// and log; Calculate itself never panics on malformed input.
func (c *Calculator) Calculate(ctx context.Context, item models.NewsItem, batch []models.NewsItem) models.HeatScore {
	keywords := tokenizer.Extract(item.Title, item.Content)

	relevance := c.keywordScore(ctx, keywords)

	publishedAt, err := ParsePublishedAt(item.PublishedAt)
	if err != nil {
		c.log.Warn("scoring: published_at parse failed, using now", "news_id", item.ID, "raw", item.PublishedAt, "error", err)
	}
	recency := recencyScore(publishedAt, c.cfg.RecencyDecayHours)

	popularity := platformScore(item)
	crossSource := crossSourceScore(item, batch, c.cfg.NearDupeThreshold)
	sourceW := c.sourceWeight(ctx, item.SourceID)

	final := c.cfg.Weights.Keyword*relevance +
		c.cfg.Weights.Recency*recency +
		c.cfg.Weights.Platform*popularity +
		c.cfg.Weights.CrossSource*crossSource +
		c.cfg.Weights.Source*sourceW
	final = math.Max(0, math.Min(final, 100))

	category := deriveCategory(item)

	keywordWords := make([]string, 0, 5)
	for i, kw := range keywords {
		if i >= 5 {
			break
		}
		keywordWords = append(keywordWords, kw.Word)
	}

	return models.HeatScore{
		NewsID:          item.ID,
		SourceID:        item.SourceID,
		Title:           item.Title,
		URL:             item.URL,
		HeatScoreValue:  final,
		RelevanceScore:  relevance,
		RecencyScore:    recency,
		PopularityScore: popularity,
		MetaData: models.HeatScoreMeta{
			CrossSourceScore: crossSource,
			SourceWeight:     sourceW,
			Keywords:         keywordWords,
			Category:         category,
		},
		Keywords:    keywords,
		PublishedAt: publishedAt,
	}
}

// LocalRelevanceProxy is the spec §9.b fallback relevance source: it counts
// the titles within the current batch that contain the keyword
// (case-insensitive substring match) instead of calling the upstream search
// endpoint.
type LocalRelevanceProxy struct {
	batch     []models.NewsItem
	threshold float64
}

func NewLocalRelevanceProxy(batch []models.NewsItem, threshold float64) *LocalRelevanceProxy {
	return &LocalRelevanceProxy{batch: batch, threshold: threshold}
}

func (p *LocalRelevanceProxy) CountMatches(_ context.Context, keyword string) (int, error) {
	count := 0
	kw := strings.ToLower(keyword)
	for _, item := range p.batch {
		if strings.Contains(strings.ToLower(item.Title), kw) {
			count++
		}
	}
	return count, nil
}
