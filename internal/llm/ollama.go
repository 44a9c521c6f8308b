package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"secondbrain/internal/service"
)

// OllamaEmbeddings is a client for the native Ollama /api/embed endpoint.
// It implements EmbeddingProvider.
type OllamaEmbeddings struct {
	BaseURL      string
	Model        string
	ExpectedSize int
	client       *http.Client
}

// NewOllamaEmbeddings creates a new Ollama embeddings client.
func NewOllamaEmbeddings(baseURL, model string, expectedSize int) *OllamaEmbeddings {
	return &OllamaEmbeddings{
		BaseURL:      baseURL,
		Model:        model,
		ExpectedSize: expectedSize,
		client:       http.DefaultClient,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed generates embeddings for the given texts in one batched call.
func (c *OllamaEmbeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, service.Validation("empty input array")
	}

	url := fmt.Sprintf("%s/api/embed", c.BaseURL)

	body, err := json.Marshal(ollamaEmbedRequest{Model: c.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, service.Wrap(err, service.CodeProviderUnavailable, "embedding provider unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, embeddingStatusError(resp.StatusCode, raw)
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embedResp.Embeddings))
	}

	result := make([][]float32, len(embedResp.Embeddings))
	for i, embedding := range embedResp.Embeddings {
		if len(embedding) != c.ExpectedSize {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d", i, len(embedding), c.ExpectedSize)
		}
		vec := make([]float32, len(embedding))
		for j, v := range embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}

// Dimensions returns the fixed vector length this provider produces.
func (c *OllamaEmbeddings) Dimensions() int { return c.ExpectedSize }

// ModelName returns the underlying model identifier.
func (c *OllamaEmbeddings) ModelName() string { return c.Model }
