package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_store.go -package=mocks secondbrain/internal/vectorstore Store

import (
	"context"
	"time"

	"secondbrain/internal/service"
)

// Chunk is one embedded span of a note's text. NoteUpdatedAt records the
// note's update time at indexing time; a chunk is stale once the live note
// has been updated after it.
type Chunk struct {
	ID            string
	NoteID        string
	UserID        string
	Content       string
	ChunkIndex    int
	Embedding     []float32
	NoteUpdatedAt time.Time
}

// ScoredChunk is a search hit with its cosine similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Stats is the store-derived portion of a user's index statistics.
type Stats struct {
	TotalEmbeddings int
	UniqueNotes     int
	LastIndexedAt   *time.Time
}

// Store persists chunk vectors and answers similarity queries. The two
// backends implement an identical contract and are never transactionally
// coupled; a failure in one must not corrupt the other.
type Store interface {
	// Upsert inserts or replaces chunks by id. Idempotent.
	Upsert(ctx context.Context, chunks []Chunk) error
	// Search returns the topK chunks for a user ordered by descending
	// cosine similarity, ties broken by most-recent NoteUpdatedAt.
	Search(ctx context.Context, userID string, query []float32, topK int) ([]ScoredChunk, error)
	// DeleteByUserID removes all chunks for a user. Returns whether
	// anything was removed.
	DeleteByUserID(ctx context.Context, userID string) (bool, error)
	// DeleteByNoteID removes all chunks for one note. Returns whether
	// anything was removed.
	DeleteByNoteID(ctx context.Context, noteID string) (bool, error)
	// Stats returns the store-derived index statistics for a user.
	Stats(ctx context.Context, userID string) (Stats, error)
	// IndexedNotes returns noteID -> NoteUpdatedAt as recorded at index
	// time, for staleness diffing.
	IndexedNotes(ctx context.Context, userID string) (map[string]time.Time, error)
	// Name returns the backend's configuration key.
	Name() string
}

// Registry resolves vector store backends by configuration key.
type Registry struct {
	stores      map[string]Store
	defaultName string
}

// NewRegistry creates a store registry with the given default backend.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		stores:      make(map[string]Store),
		defaultName: defaultName,
	}
}

// Register adds a backend under its configuration key.
func (r *Registry) Register(store Store) {
	r.stores[store.Name()] = store
}

// Get returns the backend registered under name. An empty name resolves to
// the default; an unknown name is a validation error.
func (r *Registry) Get(name string) (Store, error) {
	if name == "" {
		name = r.defaultName
	}
	store, ok := r.stores[name]
	if !ok {
		return nil, service.Validation("unknown vector store provider %q", name)
	}
	return store, nil
}

// DefaultName returns the registry's default backend key.
func (r *Registry) DefaultName() string { return r.defaultName }

// All returns every registered backend. Callers that aggregate across
// backends must query them independently and tolerate partial failure.
func (r *Registry) All() []Store {
	stores := make([]Store, 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	return stores
}
