package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/llm"
	"secondbrain/internal/service"
	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

const hydePrompt = `Write a short passage that could plausibly appear in a personal note answering the question below. Write only the passage, no preamble.

Question: %s`

const paraphrasePrompt = `Rephrase the search query below in %d different ways, one per line. Keep each rephrasing short and search-friendly. Write only the rephrasings.

Query: %s`

// Engine answers retrieval queries through a staged pipeline: query
// embedding (optionally via HyDE), optional multi-query expansion, vector
// search, optional lexical blending, optional reranking. Optional stages
// degrade on failure; embedding and search failures are fatal.
type Engine struct {
	embedder     llm.EmbeddingProvider
	completer    llm.Completer
	reranker     llm.Reranker
	store        vectorstore.Store
	analytics    QueryLogger
	hybridWeight float64
}

// NewEngine creates a retrieval engine. reranker may be nil, in which case
// rerank requests degrade to the unreranked pipeline. hybridWeight is the
// default lexical blend weight, overridable per request.
func NewEngine(
	embedder llm.EmbeddingProvider,
	completer llm.Completer,
	reranker llm.Reranker,
	store vectorstore.Store,
	analytics QueryLogger,
	hybridWeight float64,
) *Engine {
	return &Engine{
		embedder:     embedder,
		completer:    completer,
		reranker:     reranker,
		store:        store,
		analytics:    analytics,
		hybridWeight: hybridWeight,
	}
}

// Retrieve runs the pipeline for one query, scoped to the user. The query
// log is written synchronously before results are returned.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, opts Options) (*Response, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if userID == "" {
		return nil, service.Validation("user id is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, service.Validation("query must not be empty")
	}
	opts = e.normalize(opts)

	// Stage 1: query embedding, optionally through a hypothetical document.
	embedStart := time.Now()
	queryVector, err := e.embedQuery(ctx, query, opts.HyDE)
	if err != nil {
		return nil, err
	}
	embeddingMs := time.Since(embedStart).Milliseconds()

	// Stages 2-3: vector search, optionally fanned out over paraphrases.
	searchStart := time.Now()
	candidates, err := e.search(ctx, userID, query, queryVector, opts)
	if err != nil {
		return nil, err
	}
	searchMs := time.Since(searchStart).Milliseconds()
	retrievedCount := len(candidates)

	results := make([]Result, len(candidates))
	for i, candidate := range candidates {
		results[i] = Result{
			Chunk:       candidate.Chunk,
			CosineScore: candidate.Score,
			FinalScore:  candidate.Score,
		}
	}

	// Stage 4: lexical blend.
	if opts.Hybrid {
		for i := range results {
			lexical := lexicalScore(query, results[i].Chunk.Content)
			results[i].FinalScore = (1-opts.HybridWeight)*results[i].CosineScore + opts.HybridWeight*lexical
		}
		sortByFinal(results)
	}

	// Stage 5: reranking.
	var rerankMs int64
	reranked := false
	if opts.Rerank && e.reranker != nil && len(results) > 0 {
		rerankStart := time.Now()
		docs := make([]string, len(results))
		for i := range results {
			docs[i] = results[i].Chunk.Content
		}
		scores, err := e.reranker.Rerank(ctx, query, docs)
		rerankMs = time.Since(rerankStart).Milliseconds()
		if err != nil || len(scores) != len(results) {
			logger.WarnContext(ctx, "reranking failed, serving unreranked results", "error", err)
		} else {
			for i := range results {
				score := scores[i]
				results[i].RerankScore = &score
				results[i].FinalScore = score
			}
			sortByFinal(results)
			reranked = true
		}
	}

	if len(results) > opts.FinalCount {
		results = results[:opts.FinalCount]
	}

	timings := Timings{
		QueryEmbeddingMs: embeddingMs,
		VectorSearchMs:   searchMs,
		RerankMs:         rerankMs,
	}
	timings.TotalMs = timings.QueryEmbeddingMs + timings.VectorSearchMs + timings.RerankMs

	queryLog := buildQueryLog(userID, query, opts, results, retrievedCount, reranked, timings)
	if err := e.analytics.LogQuery(ctx, queryLog); err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to record query log")
	}

	logger.InfoContext(ctx, "retrieval completed",
		"retrieved", retrievedCount, "returned", len(results),
		"total_ms", timings.TotalMs, "reranked", reranked)

	return &Response{Results: results, LogID: queryLog.ID, Timings: timings}, nil
}

func (e *Engine) normalize(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.TopK > maxTopK {
		opts.TopK = maxTopK
	}
	if opts.FinalCount <= 0 {
		opts.FinalCount = defaultFinalCount
	}
	if opts.FinalCount > opts.TopK {
		opts.FinalCount = opts.TopK
	}
	if opts.HybridWeight <= 0 || opts.HybridWeight > 1 {
		opts.HybridWeight = e.hybridWeight
	}
	return opts
}

// embedQuery embeds the query text, optionally replacing it with a
// synthesized hypothetical answer first. HyDE synthesis failure degrades to
// the raw query; the embedding itself is load-bearing and fatal on error.
func (e *Engine) embedQuery(ctx context.Context, query string, hyde bool) ([]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	text := query
	if hyde && e.completer != nil {
		hypothetical, err := e.completer.Complete(ctx, fmt.Sprintf(hydePrompt, query))
		if err != nil || strings.TrimSpace(hypothetical) == "" {
			logger.WarnContext(ctx, "HyDE synthesis failed, embedding raw query", "error", err)
		} else {
			text = hypothetical
		}
	}

	var vectors [][]float32
	err := llm.WithRetry(ctx, func() error {
		var embedErr error
		vectors, embedErr = e.embedder.Embed(ctx, []string{text})
		return embedErr
	})
	if err != nil {
		return nil, service.Wrap(err, service.CodeOf(err), "failed to embed query")
	}
	if len(vectors) == 0 {
		return nil, service.New(service.CodeInternal, "embedding provider returned no vector")
	}
	return vectors[0], nil
}

// search runs the base vector search, plus per-paraphrase searches when
// multi-query expansion is on, keeping each chunk's best score. Expansion
// failure degrades to the base results; the base search is fatal on error.
func (e *Engine) search(ctx context.Context, userID, query string, queryVector []float32, opts Options) ([]vectorstore.ScoredChunk, error) {
	logger := contextutil.LoggerFromContext(ctx)

	base, err := e.store.Search(ctx, userID, queryVector, opts.TopK)
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "vector search failed")
	}
	if !opts.MultiQuery || e.completer == nil {
		return base, nil
	}

	variants, err := e.paraphrase(ctx, query)
	if err != nil || len(variants) == 0 {
		logger.WarnContext(ctx, "multi-query expansion failed, using base results", "error", err)
		return base, nil
	}

	best := make(map[string]vectorstore.ScoredChunk, len(base))
	for _, hit := range base {
		best[hit.Chunk.ID] = hit
	}
	for _, variant := range variants {
		vectors, err := e.embedder.Embed(ctx, []string{variant})
		if err != nil || len(vectors) == 0 {
			logger.WarnContext(ctx, "failed to embed paraphrase", "error", err)
			continue
		}
		hits, err := e.store.Search(ctx, userID, vectors[0], opts.TopK)
		if err != nil {
			logger.WarnContext(ctx, "paraphrase search failed", "error", err)
			continue
		}
		for _, hit := range hits {
			if existing, ok := best[hit.Chunk.ID]; !ok || hit.Score > existing.Score {
				best[hit.Chunk.ID] = hit
			}
		}
	}

	merged := make([]vectorstore.ScoredChunk, 0, len(best))
	for _, hit := range best {
		merged = append(merged, hit)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.NoteUpdatedAt.After(merged[j].Chunk.NoteUpdatedAt)
	})
	if len(merged) > opts.TopK {
		merged = merged[:opts.TopK]
	}
	return merged, nil
}

func (e *Engine) paraphrase(ctx context.Context, query string) ([]string, error) {
	raw, err := e.completer.Complete(ctx, fmt.Sprintf(paraphrasePrompt, paraphraseCount, query))
	if err != nil {
		return nil, err
	}

	var variants []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) == paraphraseCount {
			break
		}
	}
	return variants, nil
}

func sortByFinal(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
}

func buildQueryLog(userID, query string, opts Options, results []Result, retrievedCount int, reranked bool, timings Timings) *storage.QueryLog {
	queryLog := &storage.QueryLog{
		ID:                   uuid.New().String(),
		UserID:               userID,
		Query:                query,
		ConversationID:       opts.ConversationID,
		CreatedAt:            time.Now().UTC(),
		TotalTimeMs:          timings.TotalMs,
		QueryEmbeddingTimeMs: timings.QueryEmbeddingMs,
		VectorSearchTimeMs:   timings.VectorSearchMs,
		RerankTimeMs:         timings.RerankMs,
		RetrievedCount:       retrievedCount,
		FinalCount:           len(results),
		HybridSearchEnabled:  opts.Hybrid,
		HyDEEnabled:          opts.HyDE,
		MultiQueryEnabled:    opts.MultiQuery,
		RerankingEnabled:     opts.Rerank,
	}

	if len(results) > 0 {
		top, sum := results[0].CosineScore, 0.0
		for _, result := range results {
			if result.CosineScore > top {
				top = result.CosineScore
			}
			sum += result.CosineScore
		}
		queryLog.TopCosineScore = top
		queryLog.AvgCosineScore = sum / float64(len(results))
	}
	if reranked && len(results) > 0 {
		top, sum := *results[0].RerankScore, 0.0
		for _, result := range results {
			if *result.RerankScore > top {
				top = *result.RerankScore
			}
			sum += *result.RerankScore
		}
		avg := sum / float64(len(results))
		queryLog.TopRerankScore = &top
		queryLog.AvgRerankScore = &avg
	}
	return queryLog
}
