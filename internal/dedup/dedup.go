// Package dedup is a same-poll, same-source duplicate suppressor used as a
// pre-filter ahead of the required Jaccard near-duplicate check in
// internal/similarity. It is scoped per source_id so that two different
// sources publishing the same headline (spec §8 Scenario 3, the
// Cross-Source Frequency sub-score's central case) both survive into
// scoring; only a single source re-polling its own duplicate URL/content
// is suppressed here. Adapted from the teacher's
// internal/services/deduplication.go (Levenshtein title similarity, URL
// tracking-param stripping, SHA256 content hashing, mutex-guarded stats),
// generalized from its fixed per-platform config to this engine's domain.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"

	"heatsight/internal/models"
)

var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "fbclid": true, "gclid": true,
	"msclkid": true, "ref": true, "source": true, "campaign": true,
	"_ga": true, "mc_eid": true, "mc_cid": true, "campaign_id": true, "ad_id": true,
}

// normalizeURL strips tracking parameters and trailing slashes, lowercases
// the host, the same way the teacher's deduplication.go does.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	s := u.String()
	return strings.TrimSuffix(s, "/")
}

// contentHash hashes normalized title+content for exact-duplicate detection.
func contentHash(title, content string) string {
	normalized := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Stats mirrors the teacher's DeduplicationStats shape: counts by method.
type Stats struct {
	TotalChecked  int
	ExactURL      int
	ExactContent  int
}

// Suppressor removes exact URL/content duplicates seen earlier in the same
// poll, before the more expensive Jaccard comparison runs in scoring.
type Suppressor struct {
	mu        sync.Mutex
	seenURLs  map[string]bool
	seenHash  map[string]bool
	stats     Stats
}

func New() *Suppressor {
	return &Suppressor{
		seenURLs: make(map[string]bool),
		seenHash: make(map[string]bool),
	}
}

// Filter returns items with exact URL or exact content duplicates removed,
// keeping the first occurrence of each, scoped per item.SourceID so that
// the same story republished by a different source is never suppressed.
// Each call is one poll: items seen by earlier calls are not remembered.
func (s *Suppressor) Filter(items []models.NewsItem) []models.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenURLs = make(map[string]bool)
	s.seenHash = make(map[string]bool)

	out := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		s.stats.TotalChecked++

		normURL := normalizeURL(item.URL)
		urlKey := item.SourceID + "|" + normURL
		if normURL != "" && s.seenURLs[urlKey] {
			s.stats.ExactURL++
			continue
		}

		hashKey := item.SourceID + "|" + contentHash(item.Title, item.Content)
		if s.seenHash[hashKey] {
			s.stats.ExactContent++
			continue
		}

		if normURL != "" {
			s.seenURLs[urlKey] = true
		}
		s.seenHash[hashKey] = true
		out = append(out, item)
	}
	return out
}

// StatsSnapshot returns a snapshot of dedup counters.
func (s *Suppressor) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
