package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBPath string

	// Vector store selection. "sqlite" for the embedded backend,
	// "qdrant" for the managed one.
	VectorStoreProvider string
	QdrantURL           string
	QdrantCollection    string

	// Embedding provider selection by logical name.
	EmbeddingProvider    string
	EmbeddingBaseURL     string
	EmbeddingAPIKey      string
	EmbeddingModelName   string
	EmbeddingDimensions  int
	OllamaBaseURL        string
	OllamaEmbeddingModel string
	OllamaDimensions     int

	// Generation endpoint, used only for HyDE and multi-query expansion.
	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	// Reranker endpoint. Empty URL disables reranking.
	RerankerURL   string
	RerankerModel string

	ChunkMaxTokens     int
	ChunkOverlapTokens int
	IndexWorkers       int
	HybridWeight       float64
	StatsTimeout       time.Duration
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBPath: getEnv("DB_PATH", "./data/secondbrain.db"),

		VectorStoreProvider: getEnv("VECTOR_STORE_PROVIDER", "sqlite"),
		QdrantURL:           getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:    getEnv("QDRANT_COLLECTION", "note_chunks"),

		EmbeddingProvider:    getEnv("EMBEDDING_PROVIDER", "openai"),
		EmbeddingBaseURL:     getEnv("EMBEDDING_BASE_URL", "https://api.openai.com"),
		EmbeddingAPIKey:      getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModelName:   getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaEmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),

		LLMBaseURL:   getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMModelName: getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),

		RerankerURL:   getEnv("RERANKER_URL", ""),
		RerankerModel: getEnv("RERANKER_MODEL", "rerank-english-v3.0"),
	}

	cfg.LogLevel = parseLogLevel(getEnv("LOG_LEVEL", "info"))

	// Dimensions must match what the embedding model actually returns; every
	// vector is validated against this at the client boundary.
	cfg.EmbeddingDimensions, err = getEnvInt("EMBEDDING_DIMENSIONS", 1536)
	if err != nil {
		return nil, err
	}
	cfg.OllamaDimensions, err = getEnvInt("OLLAMA_DIMENSIONS", 768)
	if err != nil {
		return nil, err
	}
	cfg.ChunkMaxTokens, err = getEnvInt("CHUNK_MAX_TOKENS", 400)
	if err != nil {
		return nil, err
	}
	cfg.ChunkOverlapTokens, err = getEnvInt("CHUNK_OVERLAP_TOKENS", 50)
	if err != nil {
		return nil, err
	}
	cfg.IndexWorkers, err = getEnvInt("INDEX_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	weightStr := getEnv("HYBRID_WEIGHT", "0.3")
	cfg.HybridWeight, err = strconv.ParseFloat(weightStr, 64)
	if err != nil {
		return nil, fmt.Errorf("HYBRID_WEIGHT must be a valid float: %w", err)
	}
	if cfg.HybridWeight < 0 || cfg.HybridWeight > 1 {
		return nil, fmt.Errorf("HYBRID_WEIGHT must be in [0, 1], got %v", cfg.HybridWeight)
	}

	statsTimeoutStr := getEnv("STATS_BACKEND_TIMEOUT", "5s")
	cfg.StatsTimeout, err = time.ParseDuration(statsTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("STATS_BACKEND_TIMEOUT must be a valid duration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist (for the SQLite file)
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.VectorStoreProvider {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("VECTOR_STORE_PROVIDER must be \"sqlite\" or \"qdrant\", got %q", c.VectorStoreProvider)
	}

	switch c.EmbeddingProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be \"openai\" or \"ollama\", got %q", c.EmbeddingProvider)
	}

	if c.ChunkMaxTokens <= 0 {
		return fmt.Errorf("CHUNK_MAX_TOKENS must be greater than 0")
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS must be in [0, CHUNK_MAX_TOKENS)")
	}
	if c.IndexWorkers <= 0 {
		return fmt.Errorf("INDEX_WORKERS must be greater than 0")
	}
	if c.EmbeddingDimensions <= 0 || c.OllamaDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be greater than 0")
	}

	return nil
}

// parseLogLevel maps a level name to a slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return parsed, nil
}
