// Package models holds the transient and persisted types shared across the
// scoring and aggregation engine.
package models

import (
	"time"
)

// NewsItem is the upstream-supplied record the engine scores. It is never
// persisted directly; HeatScore is derived from it.
type NewsItem struct {
	ID          string             `json:"id"`
	SourceID    string             `json:"source_id"`
	Title       string             `json:"title"`
	URL         string             `json:"url"`
	PublishedAt string             `json:"published_at"`
	Content     string             `json:"content,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Category    string             `json:"category,omitempty"`
	MetaData    map[string]any     `json:"meta_data,omitempty"`
}

// KeywordType enumerates the three kinds of extracted keyword.
type KeywordType string

const (
	KeywordTypeKeyword KeywordType = "keyword"
	KeywordTypePhrase  KeywordType = "phrase"
	KeywordTypeTopic   KeywordType = "topic"
)

// Keyword is a single extracted token, phrase, or topic with a weight in [0,1].
type Keyword struct {
	Word   string      `json:"word"`
	Weight float64     `json:"weight"`
	Type   KeywordType `json:"type"`
}

// HeatScoreMeta is the structured content of HeatScore.MetaData.
type HeatScoreMeta struct {
	CrossSourceScore float64  `json:"cross_source_score"`
	SourceWeight     float64  `json:"source_weight"`
	Keywords         []string `json:"keywords"`
	Category         string   `json:"category"`
}

// HeatScore is the authoritative persisted record: one row per scoring run
// per news item. Rows are append-only; the current value for a news_id is
// the row with the maximum CalculatedAt.
type HeatScore struct {
	ID              string         `db:"id" json:"id"`
	NewsID          string         `db:"news_id" json:"news_id"`
	SourceID        string         `db:"source_id" json:"source_id"`
	Title           string         `db:"title" json:"title"`
	URL             string         `db:"url" json:"url"`
	HeatScoreValue  float64        `db:"heat_score" json:"heat_score"`
	RelevanceScore  float64        `db:"relevance_score" json:"relevance_score"`
	RecencyScore    float64        `db:"recency_score" json:"recency_score"`
	PopularityScore float64        `db:"popularity_score" json:"popularity_score"`
	MetaDataJSON    []byte         `db:"meta_data" json:"-"`
	KeywordsJSON    []byte         `db:"keywords" json:"-"`
	PublishedAt     time.Time      `db:"published_at" json:"published_at"`
	CalculatedAt    time.Time      `db:"calculated_at" json:"calculated_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`

	// Decoded views, not columns themselves.
	MetaData HeatScoreMeta `db:"-" json:"meta_data"`
	Keywords []Keyword     `db:"-" json:"keywords"`
}

// TrendingEntry is a cache-only aggregated keyword/phrase/topic record.
type TrendingEntry struct {
	Keyword   string      `json:"keyword"`
	Heat      float64     `json:"heat"`
	Count     int         `json:"count"`
	Sources   []string    `json:"sources"`
	Type      KeywordType `json:"type"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SourceWeight is a cache-only learned per-source quality record.
type SourceWeight struct {
	Weight          float64   `json:"weight"`
	AvgEngagement   float64   `json:"avg_engagement"`
	UpdateFrequency float64   `json:"update_frequency"`
	ItemCount       int       `json:"item_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CategoryList is a comma-separated list of categories as accepted by
// get_top's category filter, implemented with pq.Array at the store layer.
type CategoryList []string
