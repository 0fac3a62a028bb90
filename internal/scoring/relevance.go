package scoring

import (
	"context"

	"heatsight/internal/upstream"
	apperrors "heatsight/pkg/errors"
	"heatsight/pkg/logger"
)

// UpstreamRelevanceSource is the default RelevanceSource: it queries the
// upstream "news?search=" proxy (spec §4.F.1), counting returned items. Per
// spec §9.b, relevance input is pluggable and this source falls back to a
// local relevance proxy over the current batch when the upstream endpoint
// is unreachable or returns a bad status, rather than failing the item.
type UpstreamRelevanceSource struct {
	client   *upstream.Client
	fallback *LocalRelevanceProxy
	log      *logger.Logger
}

func NewUpstreamRelevanceSource(client *upstream.Client, fallback *LocalRelevanceProxy, log *logger.Logger) *UpstreamRelevanceSource {
	return &UpstreamRelevanceSource{client: client, fallback: fallback, log: log}
}

func (s *UpstreamRelevanceSource) CountMatches(ctx context.Context, keyword string) (int, error) {
	resp, err := s.client.Search(ctx, keyword, 1, 50)
	if err == nil {
		items := upstream.ExtractItems(resp)
		return len(items), nil
	}

	if appErr, ok := apperrors.IsAppError(err); ok && s.fallback != nil &&
		(appErr.Kind == apperrors.KindUpstreamUnavailable || appErr.Kind == apperrors.KindUpstreamBadStatus) {
		s.log.Warn("relevance: upstream search unavailable, using local relevance proxy", "keyword", keyword, "error", err)
		return s.fallback.CountMatches(ctx, keyword)
	}

	return 0, err
}
