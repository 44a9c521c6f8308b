package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm.go -package=mocks secondbrain/internal/llm EmbeddingProvider,Completer,Reranker

import (
	"context"

	"secondbrain/internal/service"
)

// EmbeddingProvider turns text into fixed-length vectors. Implementations
// are interchangeable but differ in dimensionality and model, so switching
// providers requires re-indexing.
type EmbeddingProvider interface {
	// Embed generates one vector per input text, in input order.
	// Requests are batched where the backing API supports it.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the fixed vector length this provider produces.
	Dimensions() int
	// ModelName returns the underlying model identifier.
	ModelName() string
}

// Completer is the generation boundary. It is used only for HyDE document
// synthesis and multi-query paraphrase generation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Reranker scores candidate texts against a query, returning scores in the
// same order as the input.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
}

// Registry resolves embedding providers by logical name.
type Registry struct {
	providers   map[string]EmbeddingProvider
	defaultName string
}

// NewRegistry creates a provider registry with the given default.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]EmbeddingProvider),
		defaultName: defaultName,
	}
}

// Register adds a provider under a logical name.
func (r *Registry) Register(name string, provider EmbeddingProvider) {
	r.providers[name] = provider
}

// Get returns the provider registered under name. An empty name resolves to
// the default; an unknown name is a validation error.
func (r *Registry) Get(name string) (EmbeddingProvider, error) {
	if name == "" {
		name = r.defaultName
	}
	provider, ok := r.providers[name]
	if !ok {
		return nil, service.Validation("unknown embedding provider %q", name)
	}
	return provider, nil
}

// DefaultName returns the registry's default provider name.
func (r *Registry) DefaultName() string { return r.defaultName }

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
