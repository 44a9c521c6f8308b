package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/llm"
	"secondbrain/internal/service"
	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

// StartOptions selects the providers for an indexing run. Empty fields fall
// back to the configured defaults.
type StartOptions struct {
	EmbeddingProvider   string
	VectorStoreProvider string
	EmbeddingModel      string
}

// Orchestrator drives the chunk -> embed -> store pipeline for a user's
// notes as background jobs. At most one job per user may be active; the
// database enforces this at creation time.
type Orchestrator struct {
	notes     storage.NoteStore
	jobs      storage.JobStore
	stores    *vectorstore.Registry
	providers *llm.Registry
	chunker   *Chunker
	workers   int
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]*atomic.Bool
}

// NewOrchestrator creates an indexing orchestrator. workers bounds per-job
// note concurrency.
func NewOrchestrator(
	notes storage.NoteStore,
	jobs storage.JobStore,
	stores *vectorstore.Registry,
	providers *llm.Registry,
	chunker *Chunker,
	workers int,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		notes:     notes,
		jobs:      jobs,
		stores:    stores,
		providers: providers,
		chunker:   chunker,
		workers:   workers,
		logger:    slog.Default(),
		cancels:   make(map[string]*atomic.Bool),
	}
}

// StartIndexing creates a Pending job and returns it immediately; the work
// itself runs on a background goroutine. A second start while a job is
// active fails with Conflict.
func (o *Orchestrator) StartIndexing(ctx context.Context, userID string, opts StartOptions) (*storage.IndexingJob, error) {
	if userID == "" {
		return nil, service.Validation("user id is required")
	}

	provider, err := o.providers.Get(opts.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	store, err := o.stores.Get(opts.VectorStoreProvider)
	if err != nil {
		return nil, err
	}

	model := opts.EmbeddingModel
	if model == "" {
		model = provider.ModelName()
	}

	providerName := opts.EmbeddingProvider
	if providerName == "" {
		providerName = o.providers.DefaultName()
	}

	job := &storage.IndexingJob{
		UserID:              userID,
		Errors:              []string{},
		EmbeddingProvider:   providerName,
		EmbeddingModel:      model,
		VectorStoreProvider: store.Name(),
	}
	if err := o.jobs.CreateActive(ctx, job); err != nil {
		return nil, err
	}

	flag := &atomic.Bool{}
	o.mu.Lock()
	o.cancels[job.ID] = flag
	o.mu.Unlock()

	logger := contextutil.LoggerFromContext(ctx).With("job_id", job.ID, "user_id", userID)
	// The job outlives the request that started it.
	bg := contextutil.WithLogger(context.Background(), logger)
	go o.run(bg, job, provider, store, flag)

	return job, nil
}

// run executes one job to a terminal state. Per-note failures are recorded
// and skipped; only failures outside the note loop fail the whole job.
func (o *Orchestrator) run(ctx context.Context, job *storage.IndexingJob, provider llm.EmbeddingProvider, store vectorstore.Store, cancelled *atomic.Bool) {
	logger := contextutil.LoggerFromContext(ctx)
	defer func() {
		o.mu.Lock()
		delete(o.cancels, job.ID)
		o.mu.Unlock()
	}()

	if err := o.jobs.UpdateStatus(ctx, job.ID, storage.JobRunning); err != nil {
		logger.ErrorContext(ctx, "failed to mark job running", "error", err)
		return
	}

	if err := o.process(ctx, job, provider, store, cancelled); err != nil {
		logger.ErrorContext(ctx, "indexing job failed", "error", err)
		job.Errors = append(job.Errors, service.MessageOf(err))
		if err := o.jobs.UpdateProgress(ctx, job); err != nil {
			logger.ErrorContext(ctx, "failed to persist job progress", "error", err)
		}
		o.finish(ctx, job.ID, storage.JobFailed)
		return
	}

	switch {
	case cancelled.Load():
		o.finish(ctx, job.ID, storage.JobCancelled)
	case len(job.Errors) > 0:
		o.finish(ctx, job.ID, storage.JobPartiallyCompleted)
	default:
		o.finish(ctx, job.ID, storage.JobCompleted)
	}
	logger.InfoContext(ctx, "indexing job finished",
		"processed", job.ProcessedNotes, "skipped", job.SkippedNotes,
		"deleted", job.DeletedNotes, "chunks", job.ProcessedChunks)
}

func (o *Orchestrator) finish(ctx context.Context, jobID string, status storage.JobStatus) {
	if err := o.jobs.UpdateStatus(ctx, jobID, status); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to finalize job", "status", status, "error", err)
	}
}

func (o *Orchestrator) process(ctx context.Context, job *storage.IndexingJob, provider llm.EmbeddingProvider, store vectorstore.Store, cancelled *atomic.Bool) error {
	logger := contextutil.LoggerFromContext(ctx)

	notes, err := o.notes.GetByUserID(ctx, job.UserID)
	if err != nil {
		return service.Wrap(err, service.CodeInternal, "failed to load notes")
	}
	indexed, err := store.IndexedNotes(ctx, job.UserID)
	if err != nil {
		return service.Wrap(err, service.CodeInternal, "failed to read indexed notes")
	}

	// Notes whose chunks are absent or older than the note itself.
	var work []*storage.Note
	live := make(map[string]struct{}, len(notes))
	for _, note := range notes {
		live[note.ID] = struct{}{}
		indexedAt, ok := indexed[note.ID]
		if !ok || note.UpdatedAt.After(indexedAt) {
			work = append(work, note)
		}
	}

	var mu sync.Mutex
	job.TotalNotes = len(notes)

	// Indexed notes that no longer exist are removed from the store.
	for noteID := range indexed {
		if _, exists := live[noteID]; exists {
			continue
		}
		if _, err := store.DeleteByNoteID(ctx, noteID); err != nil {
			job.Errors = append(job.Errors, fmt.Sprintf("note %s: failed to remove deleted note: %v", noteID, err))
			continue
		}
		job.DeletedNotes++
	}
	if err := o.jobs.UpdateProgress(ctx, job); err != nil {
		logger.WarnContext(ctx, "failed to persist job progress", "error", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.workers)
	for _, note := range work {
		// Cancellation is checked between notes; a note already dispatched
		// finishes before the job honors it.
		if cancelled.Load() {
			break
		}
		note := note
		group.Go(func() error {
			chunkCount, err := o.indexNote(groupCtx, note, provider, store)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				job.SkippedNotes++
				job.Errors = append(job.Errors, fmt.Sprintf("note %s: %v", note.ID, err))
				logger.WarnContext(groupCtx, "skipped note", "note_id", note.ID, "error", err)
			} else {
				job.ProcessedNotes++
				job.TotalChunks += chunkCount
				job.ProcessedChunks += chunkCount
			}
			if err := o.jobs.UpdateProgress(groupCtx, job); err != nil {
				logger.WarnContext(groupCtx, "failed to persist job progress", "error", err)
			}
			return nil
		})
	}
	// Workers never return errors; per-note failures land in job.Errors.
	_ = group.Wait()

	if err := o.jobs.UpdateProgress(ctx, job); err != nil {
		logger.WarnContext(ctx, "failed to persist job progress", "error", err)
	}
	return nil
}

// indexNote re-chunks and re-embeds one note, replacing whatever the store
// held for it. Returns the number of chunks written.
func (o *Orchestrator) indexNote(ctx context.Context, note *storage.Note, provider llm.EmbeddingProvider, store vectorstore.Store) (int, error) {
	text := note.Content
	if note.Title != "" {
		text = note.Title + "\n\n" + note.Content
	}
	pieces := o.chunker.Split(text)

	if _, err := store.DeleteByNoteID(ctx, note.ID); err != nil {
		return 0, fmt.Errorf("failed to delete stale chunks: %w", err)
	}
	if len(pieces) == 0 {
		return 0, nil
	}

	var embeddings [][]float32
	err := llm.WithRetry(ctx, func() error {
		var embedErr error
		embeddings, embedErr = provider.Embed(ctx, pieces)
		return embedErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(pieces), len(embeddings))
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:            uuid.New().String(),
			NoteID:        note.ID,
			UserID:        note.UserID,
			Content:       piece,
			ChunkIndex:    i,
			Embedding:     embeddings[i],
			NoteUpdatedAt: note.UpdatedAt,
		}
	}
	if err := store.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return len(chunks), nil
}

// GetIndexingStatus reads a job's current counters. It never blocks on
// in-flight work and is safe to poll.
func (o *Orchestrator) GetIndexingStatus(ctx context.Context, jobID, userID string) (*storage.IndexingJob, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, service.NotFound("indexing job %s not found", jobID)
	}
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to load job")
	}
	if job.UserID != userID {
		return nil, service.Forbidden("indexing job %s belongs to another user", jobID)
	}
	return job, nil
}

// CancelIndexing requests cooperative cancellation of an active job. The
// flag is observed between notes; a note in flight completes first.
func (o *Orchestrator) CancelIndexing(ctx context.Context, jobID, userID string) error {
	job, err := o.GetIndexingStatus(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return service.Validation("indexing job %s is already %s", jobID, job.Status)
	}

	o.mu.Lock()
	flag, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		flag.Store(true)
		return nil
	}

	// No live worker holds this job (e.g. after a restart); cancel directly.
	return o.jobs.UpdateStatus(ctx, jobID, storage.JobCancelled)
}

// DeleteIndexedNotes removes all of a user's chunks from one vector store,
// used on index reset or embedding-provider switch. Returns whether anything
// was removed.
func (o *Orchestrator) DeleteIndexedNotes(ctx context.Context, userID, storeProvider string) (bool, error) {
	store, err := o.stores.Get(storeProvider)
	if err != nil {
		return false, err
	}
	deleted, err := store.DeleteByUserID(ctx, userID)
	if err != nil {
		return false, service.Wrap(err, service.CodeInternal, "failed to delete indexed notes")
	}
	return deleted, nil
}
