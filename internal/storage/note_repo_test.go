package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

// newTestDB opens a migrated SQLite database in a temp dir.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	tmpDir := t.TempDir()
	db, err := New(tmpDir + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return db
}

func TestNoteRepo_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewNoteRepo(db)
	ctx := context.Background()

	note := &Note{
		UserID:  "user-1",
		Title:   "Go patterns",
		Content: "Accept interfaces, return structs.",
		Tags:    []string{"go", "design"},
	}
	if err := repo.Upsert(ctx, note); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if note.ID == "" {
		t.Fatal("Upsert() should assign an id")
	}

	got, err := repo.GetByID(ctx, note.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Go patterns" {
		t.Errorf("Title = %q, want %q", got.Title, "Go patterns")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" {
		t.Errorf("Tags = %v, want [go design]", got.Tags)
	}
}

func TestNoteRepo_UpsertRefreshesUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewNoteRepo(db)
	ctx := context.Background()

	note := &Note{UserID: "user-1", Title: "t", Content: "v1"}
	if err := repo.Upsert(ctx, note); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	first := note.UpdatedAt

	time.Sleep(5 * time.Millisecond)

	note.Content = "v2"
	if err := repo.Upsert(ctx, note); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, note.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.UpdatedAt.After(first) {
		t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, first)
	}
	if got.Content != "v2" {
		t.Errorf("Content = %q, want v2", got.Content)
	}
}

func TestNoteRepo_GetByUserID(t *testing.T) {
	db := newTestDB(t)
	repo := NewNoteRepo(db)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		if err := repo.Upsert(ctx, &Note{UserID: "user-1", Title: title, Content: title}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if err := repo.Upsert(ctx, &Note{UserID: "user-2", Title: "other", Content: "other"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	notes, err := repo.GetByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetByUserID() error = %v", err)
	}
	if len(notes) != 3 {
		t.Errorf("GetByUserID() returned %d notes, want 3", len(notes))
	}
}

func TestNoteRepo_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewNoteRepo(db)
	ctx := context.Background()

	note := &Note{UserID: "user-1", Title: "t", Content: "c"}
	if err := repo.Upsert(ctx, note); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := repo.Delete(ctx, note.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, note.ID); err != ErrNotFound {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, note.ID); err != ErrNotFound {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}
