// Package api is the thin HTTP contract layer (spec §6). The router itself
// is out of scope; these are plain net/http handler functions so any mux can
// mount them. Grounded on the teacher's internal/handlers validator-then-
// service-call shape, generalized away from Fiber since the router is an
// external collaborator per spec §1.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"heatsight/internal/aggregator"
	"heatsight/internal/cache"
	"heatsight/internal/models"
	"heatsight/internal/scoring"
	"heatsight/internal/sourceweight"
	"heatsight/internal/store"
	"heatsight/internal/trending"
	"heatsight/internal/upstream"
	apperrors "heatsight/pkg/errors"
	"heatsight/pkg/logger"
)

// Handlers holds every component the HTTP surface calls into.
type Handlers struct {
	store    *store.Store
	cache    cache.Cache
	client   *upstream.Client
	batch    *aggregator.BatchUpdater
	trending *trending.Aggregator
	learner  *sourceweight.Learner
	validate *validator.Validate
	log      *logger.Logger
}

func New(st *store.Store, c cache.Cache, client *upstream.Client, batch *aggregator.BatchUpdater, trend *trending.Aggregator, learner *sourceweight.Learner, log *logger.Logger) *Handlers {
	return &Handlers{
		store:    st,
		cache:    c,
		client:   client,
		batch:    batch,
		trending: trend,
		learner:  learner,
		validate: validator.New(),
		log:      log,
	}
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the spec §6/§7 {detail} error envelope.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperrors.IsAppError(err); ok {
		writeJSON(w, appErr.Code, appErr.ToDetail())
		return
	}
	writeJSON(w, http.StatusInternalServerError, apperrors.Detail{Detail: err.Error()})
}

// Health implements GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
}

// HealthDetails implements GET /health/details: probes the store.
func (h *Handlers) HealthDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"
	details := map[string]any{}

	if _, err := h.store.GetTop(ctx, store.TopFilter{Limit: 1}); err != nil {
		status = "degraded"
		details["store"] = err.Error()
	} else {
		details["store"] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": status, "details": details, "timestamp": time.Now().UTC()})
}

// HealthCache implements GET /health/cache: probes cache and upstream.
func (h *Handlers) HealthCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"
	details := map[string]any{}

	if _, err := h.cache.Exists(ctx, "heatsight:heatscore:keywords"); err != nil {
		status = "degraded"
		details["cache"] = err.Error()
	} else {
		details["cache"] = "ok"
	}

	if _, err := h.client.GetSourceTypes(ctx); err != nil {
		status = "degraded"
		details["upstream"] = err.Error()
	} else {
		details["upstream"] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": status, "details": details, "timestamp": time.Now().UTC()})
}

// newsIDsRequest is the shared body shape for /heat-score/scores and
// /heat-score/detailed-scores.
type newsIDsRequest struct {
	NewsIDs []string `json:"news_ids" validate:"required,min=1,dive,required"`
}

func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.NewValidation("invalid request body: "+err.Error()))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, apperrors.NewValidation("validation failed: "+err.Error()))
		return false
	}
	return true
}

// Scores implements POST /heat-score/scores.
func (h *Handlers) Scores(w http.ResponseWriter, r *http.Request) {
	var req newsIDsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rows, err := h.store.GetMultiByNewsIDs(r.Context(), req.NewsIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	scores := make(map[string]float64, len(rows))
	for id, row := range rows {
		scores[id] = row.HeatScoreValue
	}
	writeJSON(w, http.StatusOK, map[string]any{"heat_scores": scores})
}

// DetailedScores implements POST /heat-score/detailed-scores.
func (h *Handlers) DetailedScores(w http.ResponseWriter, r *http.Request) {
	var req newsIDsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rows, err := h.store.GetMultiByNewsIDs(r.Context(), req.NewsIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"heat_scores": rows})
}

// Top implements GET /heat-score/top. Returns an empty list rather than
// erroring when the store yields nothing (spec §7).
func (h *Handlers) Top(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TopFilter{
		Limit: queryInt(q, "limit", 50),
		Skip:  queryInt(q, "skip", 0),
	}
	if raw := q.Get("min_score"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.MinScore = &v
		}
	}
	if raw := q.Get("max_age_hours"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.MaxAgeHours = &v
		}
	}
	if raw := q.Get("category"); raw != "" {
		filter.Categories = strings.Split(raw, ",")
	}

	rows, err := h.store.GetTop(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.HeatScore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows, "total": len(rows)})
}

// Keywords implements GET /heat-score/keywords: trending list from cache,
// returning an empty collection when not yet populated (spec §7).
func (h *Handlers) Keywords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := trending.Get(r.Context(), h.cache)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := queryInt(q, "limit", len(entries))
	minHeat := 0.0
	if raw := q.Get("min_heat"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			minHeat = v
		}
	}

	filtered := make([]models.TrendingEntry, 0, len(entries))
	for _, e := range entries {
		if e.Heat >= minHeat {
			filtered = append(filtered, e)
		}
		if len(filtered) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": filtered, "total": len(filtered)})
}

// SourceWeights implements GET /heat-score/source-weights: learned weights
// merged with upstream source metadata.
func (h *Handlers) SourceWeights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	weights, err := sourceweight.Get(ctx, h.cache)
	if err != nil {
		writeError(w, err)
		return
	}

	minWeight := 0.0
	if raw := r.URL.Query().Get("min_weight"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			minWeight = v
		}
	}

	sourcesPayload, err := h.client.GetSources(ctx, false)
	var rawSources []any
	if err == nil {
		rawSources = upstream.ExtractItems(sourcesPayload)
	}
	meta := make(map[string]map[string]any, len(rawSources))
	for _, raw := range rawSources {
		if m, ok := raw.(map[string]any); ok {
			if id, ok := m["source_id"].(string); ok {
				meta[id] = m
			} else if id, ok := m["id"].(string); ok {
				meta[id] = m
			}
		}
	}

	type entry struct {
		SourceID string               `json:"source_id"`
		Weight   models.SourceWeight  `json:"weight"`
		Meta     map[string]any       `json:"source_meta,omitempty"`
	}
	out := make([]entry, 0, len(weights))
	for id, w := range weights {
		if w.Weight < minWeight {
			continue
		}
		out = append(out, entry{SourceID: id, Weight: w, Meta: meta[id]})
	}

	writeJSON(w, http.StatusOK, map[string]any{"total_sources": len(out), "sources": out})
}

// backgroundResponse is the shared shape for the four update-trigger
// endpoints (spec §6): always 200 unless enqueuing itself fails.
func backgroundResponse(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "accepted",
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// UpdateHeatScores implements POST /heat-score/update-heat-scores.
func (h *Handlers) UpdateHeatScores(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		h.batch.Run(ctx)
	}()
	backgroundResponse(w, "heat score update started")
}

// UpdateKeywordHeat implements POST /heat-score/update-keyword-heat.
func (h *Handlers) UpdateKeywordHeat(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := h.trending.Run(ctx); err != nil {
			h.log.Error("api: update-keyword-heat failed", "error", err)
		}
	}()
	backgroundResponse(w, "keyword heat update started")
}

// UpdateSourceWeights implements POST /heat-score/update-source-weights.
func (h *Handlers) UpdateSourceWeights(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := h.learner.Run(ctx); err != nil {
			h.log.Error("api: update-source-weights failed", "error", err)
		}
	}()
	backgroundResponse(w, "source weight update started")
}

// UpdateCategories implements POST /heat-score/update-categories: backfills
// news_heat_scores rows with a null/empty category from the source-category
// fallback map.
func (h *Handlers) UpdateCategories(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := h.store.BackfillCategory(ctx, scoring.SourceCategoryMap, "others")
		if err != nil {
			h.log.Error("api: update-categories failed", "error", err)
			return
		}
		h.log.Info("api: update-categories complete", "rows_updated", n)
	}()
	backgroundResponse(w, "category backfill started")
}

// GetHot implements GET external/hot passthrough (spec §6): aggregated
// hot/recommended/categorized items from the upstream feed.
func (h *Handlers) GetHot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payload, err := h.client.GetHot(r.Context(), queryInt(q, "hot_limit", 50), queryInt(q, "recommended_limit", 20), queryInt(q, "category_limit", 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// GetUnified implements GET external/unified passthrough (spec §6): the
// paginated unified list, with all query params forwarded verbatim.
func (h *Handlers) GetUnified(w http.ResponseWriter, r *http.Request) {
	payload, err := h.client.GetUnified(r.Context(), flattenQuery(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Search implements GET external/search passthrough (spec §6).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payload, err := h.client.Search(r.Context(), q.Get("query"), queryInt(q, "page", 1), queryInt(q, "page_size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Sources implements GET external/sources passthrough (spec §6).
func (h *Handlers) Sources(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force_refresh") == "true"
	payload, err := h.client.GetSources(r.Context(), force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Source implements GET external/source/{source_id} passthrough (spec §6).
// sourceID is supplied by the caller's mux (e.g. extracted from the path).
func (h *Handlers) Source(w http.ResponseWriter, r *http.Request, sourceID string) {
	if sourceID == "" {
		writeError(w, apperrors.NewValidation("source_id is required"))
		return
	}
	force := r.URL.Query().Get("force_refresh") == "true"
	payload, err := h.client.GetSource(r.Context(), sourceID, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// flattenQuery collapses a url.Values into single-value params, taking the
// first occurrence of any repeated key (spec §6 passthroughs forward
// whatever filters the caller supplies to the upstream GET verbatim).
func flattenQuery(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return def
	}
	v, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return v
}
