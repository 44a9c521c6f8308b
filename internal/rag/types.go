package rag

import (
	"context"

	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

const (
	defaultTopK       = 10
	maxTopK           = 50
	defaultFinalCount = 5
	paraphraseCount   = 3
)

// Options toggles the retrieval pipeline's stages per request. Zero values
// fall back to the engine's configured defaults.
type Options struct {
	TopK           int
	FinalCount     int
	HyDE           bool
	MultiQuery     bool
	Hybrid         bool
	Rerank         bool
	HybridWeight   float64
	ConversationID string
}

// Result is one retrieved chunk with its scores. CosineScore is always the
// vector similarity; FinalScore reflects hybrid blending when enabled;
// RerankScore is set only when reranking ran, kept separate so analytics can
// compare the two signals.
type Result struct {
	Chunk       vectorstore.Chunk
	CosineScore float64
	FinalScore  float64
	RerankScore *float64
}

// Timings is the per-stage elapsed time of one retrieval. TotalMs is the sum
// of the stage timings.
type Timings struct {
	TotalMs          int64
	QueryEmbeddingMs int64
	VectorSearchMs   int64
	RerankMs         int64
}

// Response is the outcome of one retrieval, including the id of the query
// log written for it.
type Response struct {
	Results []Result
	LogID   string
	Timings Timings
}

// QueryLogger records retrieval telemetry. Logging is synchronous: a query
// is never served without being accounted.
type QueryLogger interface {
	LogQuery(ctx context.Context, log *storage.QueryLog) error
}
