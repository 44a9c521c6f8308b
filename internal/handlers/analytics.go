package handlers

import (
	"net/http"
	"strconv"
	"time"

	"secondbrain/internal/analytics"
)

// defaultStatsWindowDays bounds GetPerformanceStats when the client does not
// pass ?days=.
const defaultStatsWindowDays = 30

// AnalyticsHandler handles HTTP requests for feedback and query analytics.
type AnalyticsHandler struct {
	svc *analytics.Service
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(svc *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// FeedbackRequest represents the HTTP request payload for query feedback.
//
// swagger:model FeedbackRequest
type FeedbackRequest struct {
	LogID    string `json:"log_id"`
	Feedback string `json:"feedback"`
	Category string `json:"category,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// SubmitFeedback handles POST /api/feedback.
func (h *AnalyticsHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LogID == "" {
		writeError(w, r, http.StatusBadRequest, "log_id is required")
		return
	}

	if err := h.svc.SubmitFeedback(r.Context(), req.LogID, userID, req.Feedback, req.Category, req.Comment); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "recorded"})
}

// Performance handles GET /api/analytics/performance. The window is
// controlled with ?days=N.
func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	days := defaultStatsWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := h.svc.GetPerformanceStats(r.Context(), userID, since)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, performanceResponse(stats))
}

// PerformanceResponse represents aggregate retrieval quality statistics.
//
// swagger:model PerformanceResponse
type PerformanceResponse struct {
	TotalQueries  int     `json:"total_queries"`
	FeedbackCount int     `json:"feedback_count"`
	FeedbackRate  float64 `json:"feedback_rate"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`

	AvgTotalTimeMs          float64 `json:"avg_total_time_ms"`
	AvgQueryEmbeddingTimeMs float64 `json:"avg_query_embedding_time_ms"`
	AvgVectorSearchTimeMs   float64 `json:"avg_vector_search_time_ms"`
	AvgRerankTimeMs         float64 `json:"avg_rerank_time_ms"`

	AvgTopCosineScore float64  `json:"avg_top_cosine_score"`
	AvgAvgCosineScore float64  `json:"avg_avg_cosine_score"`
	AvgTopRerankScore *float64 `json:"avg_top_rerank_score,omitempty"`

	CosineFeedbackCorrelation *float64 `json:"cosine_feedback_correlation,omitempty"`
	RerankFeedbackCorrelation *float64 `json:"rerank_feedback_correlation,omitempty"`
}

func performanceResponse(stats *analytics.PerformanceStats) PerformanceResponse {
	return PerformanceResponse{
		TotalQueries:              stats.TotalQueries,
		FeedbackCount:             stats.FeedbackCount,
		FeedbackRate:              stats.FeedbackRate,
		PositiveCount:             stats.PositiveCount,
		NegativeCount:             stats.NegativeCount,
		AvgTotalTimeMs:            stats.AvgTotalTimeMs,
		AvgQueryEmbeddingTimeMs:   stats.AvgQueryEmbeddingTimeMs,
		AvgVectorSearchTimeMs:     stats.AvgVectorSearchTimeMs,
		AvgRerankTimeMs:           stats.AvgRerankTimeMs,
		AvgTopCosineScore:         stats.AvgTopCosineScore,
		AvgAvgCosineScore:         stats.AvgAvgCosineScore,
		AvgTopRerankScore:         stats.AvgTopRerankScore,
		CosineFeedbackCorrelation: stats.CosineFeedbackCorrelation,
		RerankFeedbackCorrelation: stats.RerankFeedbackCorrelation,
	}
}

// ClusterRequest selects the number of topic clusters to form.
//
// swagger:model ClusterRequest
type ClusterRequest struct {
	ClusterCount int `json:"cluster_count"`
}

// TopicResponse is one cluster of semantically similar queries.
type TopicResponse struct {
	Cluster    int      `json:"cluster"`
	Label      string   `json:"label"`
	QueryCount int      `json:"query_count"`
	Queries    []string `json:"queries"`
}

// Cluster handles POST /api/analytics/clusters: re-clusters the user's
// recent queries into topics.
func (h *AnalyticsHandler) Cluster(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req ClusterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	topics, err := h.svc.ClusterQueries(r.Context(), userID, req.ClusterCount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := make([]TopicResponse, len(topics))
	for i, topic := range topics {
		resp[i] = TopicResponse{
			Cluster:    topic.Cluster,
			Label:      topic.Label,
			QueryCount: topic.QueryCount,
			Queries:    topic.Queries,
		}
	}
	writeJSON(w, r, http.StatusOK, map[string][]TopicResponse{"topics": resp})
}

// TopicStatsResponse aggregates feedback per topic cluster.
type TopicStatsResponse struct {
	Cluster       int     `json:"cluster"`
	Label         string  `json:"label"`
	QueryCount    int     `json:"query_count"`
	FeedbackCount int     `json:"feedback_count"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	FeedbackRatio float64 `json:"feedback_ratio"`
}

// Topics handles GET /api/analytics/topics: per-topic feedback aggregates,
// worst feedback ratio first.
func (h *AnalyticsHandler) Topics(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.GetTopicStats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := make([]TopicStatsResponse, len(stats))
	for i, topic := range stats {
		resp[i] = TopicStatsResponse{
			Cluster:       topic.Cluster,
			Label:         topic.Label,
			QueryCount:    topic.QueryCount,
			FeedbackCount: topic.FeedbackCount,
			PositiveCount: topic.PositiveCount,
			NegativeCount: topic.NegativeCount,
			FeedbackRatio: topic.FeedbackRatio,
		}
	}
	writeJSON(w, r, http.StatusOK, map[string][]TopicStatsResponse{"topics": resp})
}
