package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"secondbrain/internal/analytics"
	"secondbrain/internal/config"
	"secondbrain/internal/http"
	"secondbrain/internal/indexer"
	"secondbrain/internal/llm"
	"secondbrain/internal/rag"
	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	noteRepo := storage.NewNoteRepo(db)
	jobRepo := storage.NewJobRepo(db)
	queryLogRepo := storage.NewQueryLogRepo(db)

	ctx := context.Background()

	// Embedding providers. Both are registered; jobs pick per request, the
	// configured one is the default.
	providers := llm.NewRegistry(cfg.EmbeddingProvider)
	providers.Register("openai", llm.NewEmbeddingsClient(
		cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDimensions))
	providers.Register("ollama", llm.NewOllamaEmbeddings(
		cfg.OllamaBaseURL, cfg.OllamaEmbeddingModel, cfg.OllamaDimensions))

	defaultEmbedder, err := providers.Get("")
	if err != nil {
		log.Fatalf("Failed to resolve embedding provider: %v", err)
	}
	slog.Info("Embedding providers registered",
		"default", cfg.EmbeddingProvider, "model", defaultEmbedder.ModelName())

	// Vector stores. SQLite is always available; Qdrant joins the registry
	// only when its collection can be prepared.
	stores := vectorstore.NewRegistry(cfg.VectorStoreProvider)
	stores.Register(vectorstore.NewSQLiteStore(db))

	qdrantStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
	if err == nil {
		err = qdrantStore.EnsureCollection(ctx, defaultEmbedder.Dimensions())
	}
	if err != nil {
		if cfg.VectorStoreProvider == "qdrant" {
			log.Fatalf("Failed to prepare Qdrant vector store: %v", err)
		}
		slog.Warn("Qdrant unavailable, continuing with SQLite only", "error", err)
	} else {
		stores.Register(qdrantStore)
		slog.Info("Qdrant collection ready",
			"collection", cfg.QdrantCollection, "vector_size", defaultEmbedder.Dimensions())
	}

	// Generation client for HyDE and multi-query expansion
	completer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	// Reranker is optional; an empty URL disables the stage entirely.
	var reranker llm.Reranker
	if cfg.RerankerURL != "" {
		reranker = llm.NewRerankerClient(cfg.RerankerURL, cfg.LLMAPIKey, cfg.RerankerModel)
		slog.Info("Reranker enabled", "model", cfg.RerankerModel)
	}

	defaultStore, err := stores.Get("")
	if err != nil {
		log.Fatalf("Failed to resolve vector store: %v", err)
	}

	chunker := indexer.NewChunker(cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	orchestrator := indexer.NewOrchestrator(noteRepo, jobRepo, stores, providers, chunker, cfg.IndexWorkers)
	statsCollector := indexer.NewStatsCollector(noteRepo, stores, cfg.EmbeddingProvider, cfg.StatsTimeout)
	analyticsService := analytics.NewService(queryLogRepo, defaultEmbedder)
	engine := rag.NewEngine(defaultEmbedder, completer, reranker, defaultStore, analyticsService, cfg.HybridWeight)
	slog.Info("Retrieval engine initialized",
		"vector_store", cfg.VectorStoreProvider, "hybrid_weight", cfg.HybridWeight)

	router := http.NewRouter(&http.Deps{
		Orchestrator:   orchestrator,
		StatsCollector: statsCollector,
		Engine:         engine,
		Analytics:      analyticsService,
		Notes:          noteRepo,
		Stores:         stores,
		DB:             db,
	})

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
