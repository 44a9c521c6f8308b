package indexer

import (
	"context"
	"sync"
	"time"

	"secondbrain/internal/service"
	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

// IndexStats is the derived picture of one user's index in one vector store.
// It is computed on demand by diffing the store's indexed notes against the
// live note set; nothing here is persisted independently.
type IndexStats struct {
	UserID              string
	VectorStoreProvider string
	EmbeddingProvider   string
	TotalEmbeddings     int
	UniqueNotes         int
	LastIndexedAt       *time.Time
	TotalNotesInSystem  int
	NotIndexedCount     int
	StaleNotesCount     int
}

// StatsResult is one backend's contribution to an aggregate stats call.
// Backends are queried independently; a failed backend reports its error
// without suppressing the others.
type StatsResult struct {
	Provider string
	Stats    *IndexStats
	Err      error
}

// StatsCollector computes index statistics across vector store backends.
type StatsCollector struct {
	notes             storage.NoteStore
	stores            *vectorstore.Registry
	embeddingProvider string
	timeout           time.Duration
}

// NewStatsCollector creates a stats collector. timeout bounds each backend's
// query in CollectAll.
func NewStatsCollector(notes storage.NoteStore, stores *vectorstore.Registry, embeddingProvider string, timeout time.Duration) *StatsCollector {
	return &StatsCollector{
		notes:             notes,
		stores:            stores,
		embeddingProvider: embeddingProvider,
		timeout:           timeout,
	}
}

// Collect computes stats for one user against one backend.
func (c *StatsCollector) Collect(ctx context.Context, userID, storeProvider string) (*IndexStats, error) {
	store, err := c.stores.Get(storeProvider)
	if err != nil {
		return nil, err
	}
	return c.collect(ctx, userID, store)
}

func (c *StatsCollector) collect(ctx context.Context, userID string, store vectorstore.Store) (*IndexStats, error) {
	storeStats, err := store.Stats(ctx, userID)
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to read index stats")
	}
	indexed, err := store.IndexedNotes(ctx, userID)
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to read indexed notes")
	}
	notes, err := c.notes.GetByUserID(ctx, userID)
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to load notes")
	}

	stats := &IndexStats{
		UserID:              userID,
		VectorStoreProvider: store.Name(),
		EmbeddingProvider:   c.embeddingProvider,
		TotalEmbeddings:     storeStats.TotalEmbeddings,
		UniqueNotes:         storeStats.UniqueNotes,
		LastIndexedAt:       storeStats.LastIndexedAt,
		TotalNotesInSystem:  len(notes),
	}
	for _, note := range notes {
		indexedAt, ok := indexed[note.ID]
		switch {
		case !ok:
			stats.NotIndexedCount++
		case note.UpdatedAt.After(indexedAt):
			stats.StaleNotesCount++
		}
	}
	return stats, nil
}

// CollectAll queries every registered backend under a per-backend timeout.
// Slow or failing backends yield an error entry; the rest return normally.
func (c *StatsCollector) CollectAll(ctx context.Context, userID string) []StatsResult {
	stores := c.stores.All()
	results := make([]StatsResult, len(stores))

	var wg sync.WaitGroup
	for i, store := range stores {
		wg.Add(1)
		go func(i int, store vectorstore.Store) {
			defer wg.Done()
			storeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			stats, err := c.collect(storeCtx, userID, store)
			results[i] = StatsResult{Provider: store.Name(), Stats: stats, Err: err}
		}(i, store)
	}
	wg.Wait()
	return results
}
