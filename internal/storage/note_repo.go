package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks secondbrain/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// NoteStore defines the note repository boundary consumed by the indexing
// subsystem. The CRUD side exists so the application is a runnable whole.
type NoteStore interface {
	// GetByUserID returns all notes belonging to a user.
	GetByUserID(ctx context.Context, userID string) ([]*Note, error)
	// GetByID gets a note by id. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*Note, error)
	// Upsert inserts a new note or updates an existing one, refreshing UpdatedAt.
	Upsert(ctx context.Context, note *Note) error
	// Delete removes a note. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// NoteRepo provides methods for note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *sql.DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// GetByUserID returns all notes belonging to a user, most recently updated first.
func (r *NoteRepo) GetByUserID(ctx context.Context, userID string) ([]*Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, content, tags, created_at, updated_at
		 FROM notes WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var notes []*Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return notes, nil
}

// GetByID gets a note by id. Returns ErrNotFound if not found.
func (r *NoteRepo) GetByID(ctx context.Context, id string) (*Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, tags, created_at, updated_at
		 FROM notes WHERE id = ?`,
		id,
	)

	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return note, nil
}

// Upsert inserts a new note or updates an existing one.
// New notes get a generated UUID; existing notes keep their id and get a
// fresh UpdatedAt, which is what marks their chunks stale.
func (r *NoteRepo) Upsert(ctx context.Context, note *Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, content, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 title = excluded.title, content = excluded.content,
		 tags = excluded.tags, updated_at = excluded.updated_at`,
		note.ID, note.UserID, note.Title, note.Content, string(tags),
		formatTime(note.CreatedAt), formatTime(note.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}

	return nil
}

// Delete removes a note. Returns ErrNotFound if it does not exist.
func (r *NoteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var note Note
	var tags, createdAt, updatedAt string

	err := row.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &tags, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &note.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if note.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if note.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &note, nil
}
