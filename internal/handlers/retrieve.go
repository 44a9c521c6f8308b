package handlers

import (
	"net/http"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/rag"
)

// RetrieveHandler handles HTTP requests for semantic retrieval.
type RetrieveHandler struct {
	engine *rag.Engine
}

// NewRetrieveHandler creates a new RetrieveHandler.
func NewRetrieveHandler(engine *rag.Engine) *RetrieveHandler {
	return &RetrieveHandler{engine: engine}
}

// RetrieveRequest represents the HTTP request payload for retrieval. The
// stage toggles default to off; zero counts fall back to server defaults.
//
// swagger:model RetrieveRequest
type RetrieveRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k,omitempty"`
	FinalCount     int     `json:"final_count,omitempty"`
	HyDE           bool    `json:"hyde,omitempty"`
	MultiQuery     bool    `json:"multi_query,omitempty"`
	Hybrid         bool    `json:"hybrid,omitempty"`
	Rerank         bool    `json:"rerank,omitempty"`
	HybridWeight   float64 `json:"hybrid_weight,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

// RetrieveResponse represents the HTTP response payload for retrieval.
//
// swagger:model RetrieveResponse
type RetrieveResponse struct {
	Results []ResultResponse `json:"results"`
	LogID   string           `json:"log_id"`
	Timings TimingsResponse  `json:"timings"`
}

// ResultResponse is one retrieved chunk with its scores.
type ResultResponse struct {
	NoteID      string   `json:"note_id"`
	ChunkIndex  int      `json:"chunk_index"`
	Content     string   `json:"content"`
	CosineScore float64  `json:"cosine_score"`
	FinalScore  float64  `json:"final_score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// TimingsResponse is the per-stage latency breakdown of one retrieval.
type TimingsResponse struct {
	TotalMs          int64 `json:"total_ms"`
	QueryEmbeddingMs int64 `json:"query_embedding_ms"`
	VectorSearchMs   int64 `json:"vector_search_ms"`
	RerankMs         int64 `json:"rerank_ms"`
}

// Retrieve handles POST /api/retrieve.
//
// swagger:route POST /api/retrieve retrieve
//
// Runs the retrieval pipeline for a query scoped to the calling user and
// returns scored chunks with a per-stage latency breakdown.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req RetrieveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.engine.Retrieve(ctx, userID, req.Query, rag.Options{
		TopK:           req.TopK,
		FinalCount:     req.FinalCount,
		HyDE:           req.HyDE,
		MultiQuery:     req.MultiQuery,
		Hybrid:         req.Hybrid,
		Rerank:         req.Rerank,
		HybridWeight:   req.HybridWeight,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	results := make([]ResultResponse, len(resp.Results))
	for i, result := range resp.Results {
		results[i] = ResultResponse{
			NoteID:      result.Chunk.NoteID,
			ChunkIndex:  result.Chunk.ChunkIndex,
			Content:     result.Chunk.Content,
			CosineScore: result.CosineScore,
			FinalScore:  result.FinalScore,
			RerankScore: result.RerankScore,
		}
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "retrieval served",
		"user_id", userID, "results", len(results), "total_ms", resp.Timings.TotalMs)
	writeJSON(w, r, http.StatusOK, RetrieveResponse{
		Results: results,
		LogID:   resp.LogID,
		Timings: TimingsResponse{
			TotalMs:          resp.Timings.TotalMs,
			QueryEmbeddingMs: resp.Timings.QueryEmbeddingMs,
			VectorSearchMs:   resp.Timings.VectorSearchMs,
			RerankMs:         resp.Timings.RerankMs,
		},
	})
}
