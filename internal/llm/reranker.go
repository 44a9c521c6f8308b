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

// RerankerClient is a client for a cross-encoder /rerank endpoint
// (Cohere-style wire contract). It implements Reranker.
type RerankerClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewRerankerClient creates a new reranker client.
func NewRerankerClient(baseURL, apiKey, model string) *RerankerClient {
	return &RerankerClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  http.DefaultClient,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank scores docs against the query, returning one score per doc in the
// same order as the input.
func (c *RerankerClient) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/rerank", c.BaseURL)

	body, err := json.Marshal(rerankRequest{Model: c.Model, Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, service.Wrap(err, service.CodeProviderUnavailable, "reranker unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, service.Wrap(fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw)),
			service.CodeProviderUnavailable, "reranker error")
	}

	var rerankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// The API returns results ranked by relevance; restore input order.
	scores := make([]float64, len(docs))
	for _, result := range rerankResp.Results {
		if result.Index < 0 || result.Index >= len(docs) {
			return nil, fmt.Errorf("rerank result index %d out of range", result.Index)
		}
		scores[result.Index] = result.RelevanceScore
	}

	return scores, nil
}
