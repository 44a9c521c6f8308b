package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_job_store.go -package=mocks secondbrain/internal/storage JobStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"secondbrain/internal/service"
)

// JobStore defines the interface for indexing job persistence.
type JobStore interface {
	// CreateActive inserts a new job in Pending state. It fails with a
	// Conflict error if the user already has a Pending or Running job;
	// the check-and-set is atomic via a partial unique index.
	CreateActive(ctx context.Context, job *IndexingJob) error
	// GetByID gets a job by id. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*IndexingJob, error)
	// UpdateStatus moves a job to a new status, enforcing the transition
	// table. Terminal statuses set CompletedAt; Running sets StartedAt.
	// Returns a conflict error if another writer changed the status first.
	UpdateStatus(ctx context.Context, id string, to JobStatus) error
	// UpdateProgress persists the job's accounting counters and errors.
	UpdateProgress(ctx context.Context, job *IndexingJob) error
}

// JobRepo provides methods for indexing job operations.
// It implements the JobStore interface.
type JobRepo struct {
	db *sql.DB
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// CreateActive inserts a new job in Pending state.
func (r *JobRepo) CreateActive(ctx context.Context, job *IndexingJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = JobPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	errJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO indexing_jobs
		 (id, user_id, status, total_notes, processed_notes, skipped_notes,
		  deleted_notes, total_chunks, processed_chunks, errors,
		  embedding_provider, embedding_model, vector_store_provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, string(job.Status),
		job.TotalNotes, job.ProcessedNotes, job.SkippedNotes,
		job.DeletedNotes, job.TotalChunks, job.ProcessedChunks, string(errJSON),
		job.EmbeddingProvider, job.EmbeddingModel, job.VectorStoreProvider,
		formatTime(job.CreatedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return service.Conflict("an indexing job is already active for this user")
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// GetByID gets a job by id. Returns ErrNotFound if not found.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*IndexingJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, total_notes, processed_notes, skipped_notes,
		        deleted_notes, total_chunks, processed_chunks, errors,
		        embedding_provider, embedding_model, vector_store_provider,
		        started_at, completed_at, created_at
		 FROM indexing_jobs WHERE id = ?`,
		id,
	)

	var job IndexingJob
	var status, errJSON, createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&job.ID, &job.UserID, &status,
		&job.TotalNotes, &job.ProcessedNotes, &job.SkippedNotes,
		&job.DeletedNotes, &job.TotalChunks, &job.ProcessedChunks, &errJSON,
		&job.EmbeddingProvider, &job.EmbeddingModel, &job.VectorStoreProvider,
		&startedAt, &completedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = JobStatus(status)
	if err := json.Unmarshal([]byte(errJSON), &job.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job errors: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("failed to parse completed_at: %w", err)
	}

	return &job, nil
}

// UpdateStatus moves a job to a new status, enforcing the transition table.
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, to JobStatus) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !CanTransition(job.Status, to) {
		return service.Validation("invalid job transition %s -> %s", job.Status, to)
	}

	// Guard the update with the status we read so a racing transition is
	// rejected instead of silently overwritten.
	now := formatTime(time.Now().UTC())
	var result sql.Result
	switch {
	case to == JobRunning:
		result, err = r.db.ExecContext(ctx,
			"UPDATE indexing_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
			string(to), now, id, string(job.Status))
	case to.Terminal():
		result, err = r.db.ExecContext(ctx,
			"UPDATE indexing_jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?",
			string(to), now, id, string(job.Status))
	default:
		result, err = r.db.ExecContext(ctx,
			"UPDATE indexing_jobs SET status = ? WHERE id = ? AND status = ?",
			string(to), id, string(job.Status))
	}
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return service.Conflict("job %s changed status concurrently", id)
	}
	return nil
}

// UpdateProgress persists the job's accounting counters and errors.
func (r *JobRepo) UpdateProgress(ctx context.Context, job *IndexingJob) error {
	errJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE indexing_jobs SET
		 total_notes = ?, processed_notes = ?, skipped_notes = ?,
		 deleted_notes = ?, total_chunks = ?, processed_chunks = ?, errors = ?
		 WHERE id = ?`,
		job.TotalNotes, job.ProcessedNotes, job.SkippedNotes,
		job.DeletedNotes, job.TotalChunks, job.ProcessedChunks, string(errJSON),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
