package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"secondbrain/internal/service"
)

func TestNewEmbeddingsClient(t *testing.T) {
	client := NewEmbeddingsClient("http://localhost:8080", "test-key", "test-model", 768)
	if client == nil {
		t.Fatal("NewEmbeddingsClient() returned nil")
	}
	if client.Dimensions() != 768 {
		t.Errorf("Dimensions() = %v, want 768", client.Dimensions())
	}
	if client.ModelName() != "test-model" {
		t.Errorf("ModelName() = %v, want test-model", client.ModelName())
	}
}

func TestEmbeddingsClient_Embed(t *testing.T) {
	tests := []struct {
		name       string
		texts      []string
		serverResp func(w http.ResponseWriter, r *http.Request)
		wantErr    bool
		wantCode   service.Code
		wantCount  int
	}{
		{
			name:  "successful embedding",
			texts: []string{"Hello", "World"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/embeddings" {
					t.Errorf("expected /v1/embeddings, got %s", r.URL.Path)
				}

				resp := EmbeddingsResponse{
					Data: []EmbeddingData{
						{Embedding: make([]float64, 768)},
						{Embedding: make([]float64, 768)},
					},
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(resp)
			},
			wantCount: 2,
		},
		{
			name:  "empty input",
			texts: []string{},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				// Should not be called
			},
			wantErr:  true,
			wantCode: service.CodeValidation,
		},
		{
			name:  "wrong embedding count",
			texts: []string{"Hello", "World"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				resp := EmbeddingsResponse{
					Data: []EmbeddingData{{Embedding: make([]float64, 768)}},
				}
				_ = json.NewEncoder(w).Encode(resp)
			},
			wantErr: true,
		},
		{
			name:  "wrong vector size",
			texts: []string{"Hello"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				resp := EmbeddingsResponse{
					Data: []EmbeddingData{{Embedding: make([]float64, 512)}},
				}
				_ = json.NewEncoder(w).Encode(resp)
			},
			wantErr: true,
		},
		{
			name:  "input rejected as too long",
			texts: []string{"Hello"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "input exceeds maximum context length", http.StatusBadRequest)
			},
			wantErr:  true,
			wantCode: service.CodeValidation,
		},
		{
			name:  "backend down",
			texts: []string{"Hello"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream unavailable", http.StatusBadGateway)
			},
			wantErr:  true,
			wantCode: service.CodeProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewEmbeddingsClient(server.URL, "key", "model", 768)
			vectors, err := client.Embed(context.Background(), tt.texts)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Embed() expected error, got nil")
				}
				if tt.wantCode != "" && !service.IsCode(err, tt.wantCode) {
					t.Errorf("Embed() error code = %v, want %v", service.CodeOf(err), tt.wantCode)
				}
				return
			}

			if err != nil {
				t.Fatalf("Embed() unexpected error: %v", err)
			}
			if len(vectors) != tt.wantCount {
				t.Errorf("Embed() returned %d vectors, want %d", len(vectors), tt.wantCount)
			}
		})
	}
}

func TestEmbeddingsClient_Embed_Unreachable(t *testing.T) {
	// Port 1 is never listening.
	client := NewEmbeddingsClient("http://127.0.0.1:1", "key", "model", 768)
	_, err := client.Embed(context.Background(), []string{"Hello"})
	if err == nil {
		t.Fatal("Embed() expected error")
	}
	if !service.IsCode(err, service.CodeProviderUnavailable) {
		t.Errorf("Embed() error code = %v, want provider_unavailable", service.CodeOf(err))
	}
}

func TestOllamaEmbeddings_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("expected /api/embed, got %s", r.URL.Path)
		}
		resp := ollamaEmbedResponse{
			Embeddings: [][]float64{make([]float64, 768)},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOllamaEmbeddings(server.URL, "nomic-embed-text", 768)
	vectors, err := client.Embed(context.Background(), []string{"Hello"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 768 {
		t.Errorf("Embed() returned %d vectors of size %d", len(vectors), len(vectors[0]))
	}
}
