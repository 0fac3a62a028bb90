// Package store is the Heat-Score Store (spec §4.C): persistence for
// per-item scores backed by a single relational table, news_heat_scores.
// Grounded on the teacher's internal/database/database.go migration-array
// style and internal/repository/article_repository.go's sqlx/pq.Array
// transaction patterns.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"heatsight/internal/models"
	apperrors "heatsight/pkg/errors"
)

const batchSize = 100

// Connect opens the relational store and configures its connection pool
// the way the teacher's database.Connect does.
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the news_heat_scores table and its indexes if absent.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS news_heat_scores (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			news_id VARCHAR(255) NOT NULL,
			source_id VARCHAR(100) NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			heat_score DOUBLE PRECISION NOT NULL,
			relevance_score DOUBLE PRECISION NOT NULL,
			recency_score DOUBLE PRECISION NOT NULL,
			popularity_score DOUBLE PRECISION NOT NULL,
			meta_data JSONB NOT NULL DEFAULT '{}',
			keywords JSONB NOT NULL DEFAULT '[]',
			published_at TIMESTAMP NOT NULL,
			calculated_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_heat_scores_news_id ON news_heat_scores (news_id)`,
		`CREATE INDEX IF NOT EXISTS idx_news_heat_scores_source_id ON news_heat_scores (source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_news_heat_scores_heat_score ON news_heat_scores (heat_score)`,
		`CREATE INDEX IF NOT EXISTS idx_news_heat_scores_published_at ON news_heat_scores (published_at)`,
	}
	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// Store exposes the Component C operations from spec §4.C.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// stripOffset strips any timezone information, returning a naive value
// representing the same UTC instant. This and recency parsing are the
// engine's two naive/aware conversion boundaries (spec §9).
func stripOffset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC)
}

// Create inserts a new HeatScore row, stripping timezone offsets from all
// timestamp fields and stamping CalculatedAt/UpdatedAt to now (spec §4.C).
func (s *Store) Create(ctx context.Context, hs *models.HeatScore) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreTransient("begin transaction failed", err)
	}
	defer tx.Rollback()

	if hs.ID == "" {
		hs.ID = uuid.NewString()
	}
	now := stripOffset(time.Now())
	hs.PublishedAt = stripOffset(hs.PublishedAt)
	hs.CalculatedAt = now
	hs.UpdatedAt = now

	metaJSON, err := json.Marshal(hs.MetaData)
	if err != nil {
		return apperrors.NewStorePermanent("marshal meta_data failed", err)
	}
	keywordsJSON, err := json.Marshal(hs.Keywords)
	if err != nil {
		return apperrors.NewStorePermanent("marshal keywords failed", err)
	}

	const insertSQL = `
		INSERT INTO news_heat_scores
			(id, news_id, source_id, title, url, heat_score, relevance_score,
			 recency_score, popularity_score, meta_data, keywords,
			 published_at, calculated_at, updated_at)
		VALUES
			(:id, :news_id, :source_id, :title, :url, :heat_score, :relevance_score,
			 :recency_score, :popularity_score, :meta_data, :keywords,
			 :published_at, :calculated_at, :updated_at)`

	_, err = tx.NamedExecContext(ctx, insertSQL, map[string]any{
		"id":               hs.ID,
		"news_id":          hs.NewsID,
		"source_id":        hs.SourceID,
		"title":            hs.Title,
		"url":              hs.URL,
		"heat_score":       hs.HeatScoreValue,
		"relevance_score":  hs.RelevanceScore,
		"recency_score":    hs.RecencyScore,
		"popularity_score": hs.PopularityScore,
		"meta_data":        metaJSON,
		"keywords":         keywordsJSON,
		"published_at":     hs.PublishedAt,
		"calculated_at":    hs.CalculatedAt,
		"updated_at":       hs.UpdatedAt,
	})
	if err != nil {
		return apperrors.NewStoreTransient("insert news_heat_scores failed", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreTransient("commit failed", err)
	}
	return nil
}

func decodeRow(row *heatScoreRow) (models.HeatScore, error) {
	hs := row.toModel()
	if len(row.MetaData) > 0 {
		if err := json.Unmarshal(row.MetaData, &hs.MetaData); err != nil {
			return hs, apperrors.NewStorePermanent("decode meta_data failed", err)
		}
	}
	if len(row.Keywords) > 0 {
		if err := json.Unmarshal(row.Keywords, &hs.Keywords); err != nil {
			return hs, apperrors.NewStorePermanent("decode keywords failed", err)
		}
	}
	return hs, nil
}

// heatScoreRow mirrors the news_heat_scores columns for sqlx scanning.
type heatScoreRow struct {
	ID              string    `db:"id"`
	NewsID          string    `db:"news_id"`
	SourceID        string    `db:"source_id"`
	Title           string    `db:"title"`
	URL             string    `db:"url"`
	HeatScoreValue  float64   `db:"heat_score"`
	RelevanceScore  float64   `db:"relevance_score"`
	RecencyScore    float64   `db:"recency_score"`
	PopularityScore float64   `db:"popularity_score"`
	MetaData        []byte    `db:"meta_data"`
	Keywords        []byte    `db:"keywords"`
	PublishedAt     time.Time `db:"published_at"`
	CalculatedAt    time.Time `db:"calculated_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *heatScoreRow) toModel() models.HeatScore {
	return models.HeatScore{
		ID:              r.ID,
		NewsID:          r.NewsID,
		SourceID:        r.SourceID,
		Title:           r.Title,
		URL:             r.URL,
		HeatScoreValue:  r.HeatScoreValue,
		RelevanceScore:  r.RelevanceScore,
		RecencyScore:    r.RecencyScore,
		PopularityScore: r.PopularityScore,
		PublishedAt:     r.PublishedAt,
		CalculatedAt:    r.CalculatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// GetByID fetches a single row by its primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*models.HeatScore, error) {
	var row heatScoreRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM news_heat_scores WHERE id = $1`, id)
	if err != nil {
		return nil, apperrors.NewStoreTransient("get_by_id failed", err)
	}
	hs, err := decodeRow(&row)
	if err != nil {
		return nil, err
	}
	return &hs, nil
}

// GetLatestByNewsID returns the row with the maximum calculated_at for
// news_id (the "current" score per spec §3 invariant ii).
func (s *Store) GetLatestByNewsID(ctx context.Context, newsID string) (*models.HeatScore, error) {
	var row heatScoreRow
	const q = `
		SELECT * FROM news_heat_scores
		WHERE news_id = $1
		ORDER BY calculated_at DESC
		LIMIT 1`
	err := s.db.GetContext(ctx, &row, q, newsID)
	if err != nil {
		return nil, apperrors.NewStoreTransient("get_latest_by_news_id failed", err)
	}
	hs, err := decodeRow(&row)
	if err != nil {
		return nil, err
	}
	return &hs, nil
}

// GetMultiByNewsIDs returns news_id -> latest HeatScore, batching lookups
// in groups of 100 to bound query size (spec §4.C).
func (s *Store) GetMultiByNewsIDs(ctx context.Context, newsIDs []string) (map[string]models.HeatScore, error) {
	result := make(map[string]models.HeatScore, len(newsIDs))
	for start := 0; start < len(newsIDs); start += batchSize {
		end := start + batchSize
		if end > len(newsIDs) {
			end = len(newsIDs)
		}
		chunk := newsIDs[start:end]

		const q = `
			SELECT DISTINCT ON (news_id) *
			FROM news_heat_scores
			WHERE news_id = ANY($1)
			ORDER BY news_id, calculated_at DESC`

		var rows []heatScoreRow
		if err := s.db.SelectContext(ctx, &rows, q, pq.Array(chunk)); err != nil {
			return nil, apperrors.NewStoreTransient("get_multi_by_news_ids failed", err)
		}
		for i := range rows {
			hs, err := decodeRow(&rows[i])
			if err != nil {
				return nil, err
			}
			if _, exists := result[hs.NewsID]; !exists {
				result[hs.NewsID] = hs
			}
		}
	}
	return result, nil
}

// TopFilter holds get_top's parameters (spec §4.C).
type TopFilter struct {
	Limit       int
	Skip        int
	MinScore    *float64
	MaxAgeHours *int
	Categories  []string // comma-separated list, OR'd over meta_data.category
}

// GetTop filters by recency/min-score/category, orders by heat_score
// descending, and applies skip then limit.
func (s *Store) GetTop(ctx context.Context, f TopFilter) ([]models.HeatScore, error) {
	query := `SELECT * FROM news_heat_scores WHERE 1=1`
	args := make([]any, 0, 4)
	argN := 1

	if f.MinScore != nil {
		query += fmt.Sprintf(" AND heat_score >= $%d", argN)
		args = append(args, *f.MinScore)
		argN++
	}
	if f.MaxAgeHours != nil {
		cutoff := stripOffset(time.Now().Add(-time.Duration(*f.MaxAgeHours) * time.Hour))
		query += fmt.Sprintf(" AND published_at >= $%d", argN)
		args = append(args, cutoff)
		argN++
	}
	if len(f.Categories) > 0 {
		query += fmt.Sprintf(" AND meta_data->>'category' = ANY($%d)", argN)
		args = append(args, pq.Array(f.Categories))
		argN++
	}

	query += " ORDER BY heat_score DESC"
	query += fmt.Sprintf(" OFFSET $%d", argN)
	args = append(args, f.Skip)
	argN++
	query += fmt.Sprintf(" LIMIT $%d", argN)
	args = append(args, f.Limit)

	var rows []heatScoreRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewStoreTransient("get_top failed", err)
	}

	out := make([]models.HeatScore, 0, len(rows))
	for i := range rows {
		hs, err := decodeRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, hs)
	}
	return out, nil
}

// Update applies patch fields to the row identified by id and sets
// updated_at to now (naive UTC).
func (s *Store) Update(ctx context.Context, id string, patch map[string]any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreTransient("begin transaction failed", err)
	}
	defer tx.Rollback()

	patch["updated_at"] = stripOffset(time.Now())
	patch["id"] = id

	setClauses := ""
	for col := range patch {
		if col == "id" {
			continue
		}
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += fmt.Sprintf("%s = :%s", col, col)
	}
	query := fmt.Sprintf(`UPDATE news_heat_scores SET %s WHERE id = :id`, setClauses)

	if _, err := tx.NamedExecContext(ctx, query, patch); err != nil {
		return apperrors.NewStoreTransient("update failed", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreTransient("commit failed", err)
	}
	return nil
}

// Delete removes a row by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreTransient("begin transaction failed", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM news_heat_scores WHERE id = $1`, id); err != nil {
		return apperrors.NewStoreTransient("delete failed", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreTransient("commit failed", err)
	}
	return nil
}

// BackfillCategory implements the maintenance task from spec §3's
// lifecycle note: backfills meta_data.category on rows where it is absent,
// using the source-derived category map as the fallback.
func (s *Store) BackfillCategory(ctx context.Context, sourceCategoryMap map[string]string, defaultCategory string) (int, error) {
	var rows []heatScoreRow
	const q = `SELECT * FROM news_heat_scores WHERE meta_data->>'category' IS NULL OR meta_data->>'category' = ''`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return 0, apperrors.NewStoreTransient("backfill scan failed", err)
	}

	updated := 0
	for i := range rows {
		hs, err := decodeRow(&rows[i])
		if err != nil {
			continue
		}
		category, ok := sourceCategoryMap[hs.SourceID]
		if !ok {
			category = defaultCategory
		}
		hs.MetaData.Category = category
		metaJSON, err := json.Marshal(hs.MetaData)
		if err != nil {
			continue
		}
		if err := s.Update(ctx, hs.ID, map[string]any{"meta_data": metaJSON}); err != nil {
			continue
		}
		updated++
	}
	return updated, nil
}
