package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/llm"
	"secondbrain/internal/service"
	"secondbrain/internal/storage"
)

// Feedback values accepted by SubmitFeedback.
const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// recentWindow bounds how far back clustering and topic stats look.
const recentWindow = 30 * 24 * time.Hour

// Service owns retrieval telemetry: query logs, user feedback, aggregate
// quality statistics, and topic clustering over historical queries.
type Service struct {
	logs     storage.QueryLogStore
	embedder llm.EmbeddingProvider
}

// NewService creates the analytics service. The embedder is used only for
// clustering historical queries.
func NewService(logs storage.QueryLogStore, embedder llm.EmbeddingProvider) *Service {
	return &Service{logs: logs, embedder: embedder}
}

// LogQuery persists one retrieval's telemetry record.
func (s *Service) LogQuery(ctx context.Context, log *storage.QueryLog) error {
	if log.UserID == "" {
		return service.Validation("user id is required")
	}
	if log.Query == "" {
		return service.Validation("query is required")
	}
	if err := s.logs.Insert(ctx, log); err != nil {
		return service.Wrap(err, service.CodeInternal, "failed to persist query log")
	}
	return nil
}

// SubmitFeedback attaches user feedback to a query log. The log must belong
// to the caller; repeated submissions overwrite earlier values.
func (s *Service) SubmitFeedback(ctx context.Context, logID, userID, feedback, category, comment string) error {
	if feedback != FeedbackPositive && feedback != FeedbackNegative {
		return service.Validation("feedback must be %q or %q", FeedbackPositive, FeedbackNegative)
	}

	log, err := s.logs.GetByID(ctx, logID)
	if errors.Is(err, storage.ErrNotFound) {
		return service.NotFound("query log %s not found", logID)
	}
	if err != nil {
		return service.Wrap(err, service.CodeInternal, "failed to load query log")
	}
	if log.UserID != userID {
		return service.Forbidden("query log %s belongs to another user", logID)
	}

	if err := s.logs.UpdateFeedback(ctx, logID, feedback, category, comment); err != nil {
		return service.Wrap(err, service.CodeInternal, "failed to update feedback")
	}
	return nil
}

// PerformanceStats aggregates retrieval quality over a time window. The
// correlation fields relate each score type to binary feedback and are nil
// when there is not enough feedback to compute them; they are the primary
// signal for judging whether reranking or hybrid search earns its latency.
type PerformanceStats struct {
	TotalQueries  int
	FeedbackCount int
	FeedbackRate  float64
	PositiveCount int
	NegativeCount int

	AvgTotalTimeMs          float64
	AvgQueryEmbeddingTimeMs float64
	AvgVectorSearchTimeMs   float64
	AvgRerankTimeMs         float64

	AvgTopCosineScore float64
	AvgAvgCosineScore float64
	AvgTopRerankScore *float64

	CosineFeedbackCorrelation *float64
	RerankFeedbackCorrelation *float64
}

// GetPerformanceStats aggregates a user's query logs since the given time.
func (s *Service) GetPerformanceStats(ctx context.Context, userID string, since time.Time) (*PerformanceStats, error) {
	logs, err := s.logs.ListSince(ctx, userID, since)
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to load query logs")
	}

	stats := &PerformanceStats{TotalQueries: len(logs)}
	if len(logs) == 0 {
		return stats, nil
	}

	var rerankSum float64
	var rerankCount int
	var cosineX, rerankX, cosineY, rerankY []float64
	for _, log := range logs {
		stats.AvgTotalTimeMs += float64(log.TotalTimeMs)
		stats.AvgQueryEmbeddingTimeMs += float64(log.QueryEmbeddingTimeMs)
		stats.AvgVectorSearchTimeMs += float64(log.VectorSearchTimeMs)
		stats.AvgRerankTimeMs += float64(log.RerankTimeMs)
		stats.AvgTopCosineScore += log.TopCosineScore
		stats.AvgAvgCosineScore += log.AvgCosineScore
		if log.TopRerankScore != nil {
			rerankSum += *log.TopRerankScore
			rerankCount++
		}

		if log.UserFeedback == "" {
			continue
		}
		stats.FeedbackCount++
		outcome := 0.0
		if log.UserFeedback == FeedbackPositive {
			stats.PositiveCount++
			outcome = 1.0
		} else {
			stats.NegativeCount++
		}
		cosineX = append(cosineX, log.TopCosineScore)
		cosineY = append(cosineY, outcome)
		if log.TopRerankScore != nil {
			rerankX = append(rerankX, *log.TopRerankScore)
			rerankY = append(rerankY, outcome)
		}
	}

	n := float64(len(logs))
	stats.AvgTotalTimeMs /= n
	stats.AvgQueryEmbeddingTimeMs /= n
	stats.AvgVectorSearchTimeMs /= n
	stats.AvgRerankTimeMs /= n
	stats.AvgTopCosineScore /= n
	stats.AvgAvgCosineScore /= n
	stats.FeedbackRate = float64(stats.FeedbackCount) / n
	if rerankCount > 0 {
		avg := rerankSum / float64(rerankCount)
		stats.AvgTopRerankScore = &avg
	}

	if r, ok := pearson(cosineX, cosineY); ok {
		stats.CosineFeedbackCorrelation = &r
	}
	if r, ok := pearson(rerankX, rerankY); ok {
		stats.RerankFeedbackCorrelation = &r
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "performance stats computed",
		"user_id", userID, "queries", stats.TotalQueries, "feedback", stats.FeedbackCount)
	return stats, nil
}

// pearson computes the Pearson correlation coefficient of two equal-length
// samples. It reports false when fewer than two points exist or either
// sample has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}

	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

var labelStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {}, "how": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "my": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"why": {}, "with": {},
}

// topicLabel derives a human-readable label from the most frequent
// significant terms across a cluster's queries.
func topicLabel(queries []string, maxTerms int) string {
	freq := make(map[string]int)
	order := make(map[string]int)
	next := 0
	for _, query := range queries {
		for _, token := range strings.Fields(strings.ToLower(query)) {
			token = strings.Trim(token, ".,!?:;\"'()[]")
			if token == "" {
				continue
			}
			if _, stop := labelStopwords[token]; stop {
				continue
			}
			if _, seen := order[token]; !seen {
				order[token] = next
				next++
			}
			freq[token]++
		}
	}
	if len(freq) == 0 {
		return "general"
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	// Frequency first, first-seen order as the deterministic tie-break.
	sort.SliceStable(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return order[terms[i]] < order[terms[j]]
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	return strings.Join(terms, " ")
}
