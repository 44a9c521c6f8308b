package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/indexer"
	"secondbrain/internal/service"
	"secondbrain/internal/storage"
)

// IndexHandler handles HTTP requests for indexing jobs and index statistics.
type IndexHandler struct {
	orchestrator *indexer.Orchestrator
	stats        *indexer.StatsCollector
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(orchestrator *indexer.Orchestrator, stats *indexer.StatsCollector) *IndexHandler {
	return &IndexHandler{orchestrator: orchestrator, stats: stats}
}

// StartIndexRequest selects the backends for a new indexing job. Empty
// fields fall back to the configured defaults.
//
// swagger:model StartIndexRequest
type StartIndexRequest struct {
	EmbeddingProvider string `json:"embedding_provider,omitempty"`
	VectorStore       string `json:"vector_store,omitempty"`
	EmbeddingModel    string `json:"embedding_model,omitempty"`
}

// JobResponse represents an indexing job's state and progress counters.
//
// swagger:model JobResponse
type JobResponse struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	Status              string     `json:"status"`
	TotalNotes          int        `json:"total_notes"`
	ProcessedNotes      int        `json:"processed_notes"`
	SkippedNotes        int        `json:"skipped_notes"`
	DeletedNotes        int        `json:"deleted_notes"`
	TotalChunks         int        `json:"total_chunks"`
	ProcessedChunks     int        `json:"processed_chunks"`
	Errors              []string   `json:"errors,omitempty"`
	EmbeddingProvider   string     `json:"embedding_provider"`
	EmbeddingModel      string     `json:"embedding_model"`
	VectorStoreProvider string     `json:"vector_store_provider"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func jobResponse(job *storage.IndexingJob) JobResponse {
	return JobResponse{
		ID:                  job.ID,
		UserID:              job.UserID,
		Status:              string(job.Status),
		TotalNotes:          job.TotalNotes,
		ProcessedNotes:      job.ProcessedNotes,
		SkippedNotes:        job.SkippedNotes,
		DeletedNotes:        job.DeletedNotes,
		TotalChunks:         job.TotalChunks,
		ProcessedChunks:     job.ProcessedChunks,
		Errors:              job.Errors,
		EmbeddingProvider:   job.EmbeddingProvider,
		EmbeddingModel:      job.EmbeddingModel,
		VectorStoreProvider: job.VectorStoreProvider,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
		CreatedAt:           job.CreatedAt,
	}
}

// Start handles POST /api/index: begins a background indexing job.
//
// swagger:route POST /api/index startIndexing
//
// Returns 202 with the created job, or 409 when the user already has an
// active job.
func (h *IndexHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req StartIndexRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	job, err := h.orchestrator.StartIndexing(ctx, userID, indexer.StartOptions{
		EmbeddingProvider:   req.EmbeddingProvider,
		VectorStoreProvider: req.VectorStore,
		EmbeddingModel:      req.EmbeddingModel,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "indexing job started",
		"job_id", job.ID, "user_id", userID, "vector_store", job.VectorStoreProvider)
	writeJSON(w, r, http.StatusAccepted, jobResponse(job))
}

// Status handles GET /api/index/jobs/{jobID}.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	job, err := h.orchestrator.GetIndexingStatus(r.Context(), chi.URLParam(r, "jobID"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, jobResponse(job))
}

// Cancel handles POST /api/index/jobs/{jobID}/cancel. Cancellation is
// cooperative: the job keeps running until it reaches a check point.
func (h *IndexHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.orchestrator.CancelIndexing(r.Context(), chi.URLParam(r, "jobID"), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// IndexStatsResponse aggregates per-backend index statistics. Backends that
// failed report an error string instead of stats.
//
// swagger:model IndexStatsResponse
type IndexStatsResponse struct {
	Backends []BackendStatsResponse `json:"backends"`
}

// BackendStatsResponse is one vector store backend's statistics.
type BackendStatsResponse struct {
	Provider string             `json:"provider"`
	Stats    *IndexStatsPayload `json:"stats,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// IndexStatsPayload mirrors indexer.IndexStats for the HTTP layer.
type IndexStatsPayload struct {
	VectorStoreProvider string     `json:"vector_store_provider"`
	EmbeddingProvider   string     `json:"embedding_provider"`
	TotalEmbeddings     int        `json:"total_embeddings"`
	UniqueNotes         int        `json:"unique_notes"`
	LastIndexedAt       *time.Time `json:"last_indexed_at,omitempty"`
	TotalNotesInSystem  int        `json:"total_notes_in_system"`
	NotIndexedCount     int        `json:"not_indexed_count"`
	StaleNotesCount     int        `json:"stale_notes_count"`
}

// Stats handles GET /api/index/stats. With ?vector_store= it queries one
// backend; without, it queries all backends and reports partial results.
func (h *IndexHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if provider := r.URL.Query().Get("vector_store"); provider != "" {
		stats, err := h.stats.Collect(ctx, userID, provider)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, IndexStatsResponse{Backends: []BackendStatsResponse{
			{Provider: stats.VectorStoreProvider, Stats: statsPayload(stats)},
		}})
		return
	}

	results := h.stats.CollectAll(ctx, userID)
	resp := IndexStatsResponse{Backends: make([]BackendStatsResponse, 0, len(results))}
	for _, result := range results {
		backend := BackendStatsResponse{Provider: result.Provider}
		if result.Err != nil {
			backend.Error = service.MessageOf(result.Err)
		} else {
			backend.Stats = statsPayload(result.Stats)
		}
		resp.Backends = append(resp.Backends, backend)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func statsPayload(stats *indexer.IndexStats) *IndexStatsPayload {
	return &IndexStatsPayload{
		VectorStoreProvider: stats.VectorStoreProvider,
		EmbeddingProvider:   stats.EmbeddingProvider,
		TotalEmbeddings:     stats.TotalEmbeddings,
		UniqueNotes:         stats.UniqueNotes,
		LastIndexedAt:       stats.LastIndexedAt,
		TotalNotesInSystem:  stats.TotalNotesInSystem,
		NotIndexedCount:     stats.NotIndexedCount,
		StaleNotesCount:     stats.StaleNotesCount,
	}
}

// Delete handles DELETE /api/index: removes all of the user's indexed data
// from the selected vector store. The response reports whether anything was
// actually deleted.
func (h *IndexHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	deleted, err := h.orchestrator.DeleteIndexedNotes(ctx, userID, r.URL.Query().Get("vector_store"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "indexed data deleted",
		"user_id", userID, "deleted", deleted)
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": deleted})
}
