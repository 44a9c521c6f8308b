package config

import (
	"log/slog"
	"path/filepath"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "test.db"))
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "9000" {
		t.Errorf("APIPort = %v, want 9000", cfg.APIPort)
	}
	if cfg.VectorStoreProvider != "sqlite" {
		t.Errorf("VectorStoreProvider = %v, want sqlite", cfg.VectorStoreProvider)
	}
	if cfg.EmbeddingProvider != "openai" {
		t.Errorf("EmbeddingProvider = %v, want openai", cfg.EmbeddingProvider)
	}
	if cfg.ChunkMaxTokens != 400 {
		t.Errorf("ChunkMaxTokens = %v, want 400", cfg.ChunkMaxTokens)
	}
	if cfg.ChunkOverlapTokens != 50 {
		t.Errorf("ChunkOverlapTokens = %v, want 50", cfg.ChunkOverlapTokens)
	}
	if cfg.HybridWeight != 0.3 {
		t.Errorf("HybridWeight = %v, want 0.3", cfg.HybridWeight)
	}
}

func TestLoad_InvalidProvider(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad vector store", key: "VECTOR_STORE_PROVIDER", value: "pinecone"},
		{name: "bad embedding provider", key: "EMBEDDING_PROVIDER", value: "cohere"},
		{name: "bad hybrid weight", key: "HYBRID_WEIGHT", value: "1.5"},
		{name: "non-numeric workers", key: "INDEX_WORKERS", value: "many"},
		{name: "overlap exceeds chunk size", key: "CHUNK_OVERLAP_TOKENS", value: "400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
