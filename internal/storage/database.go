package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id);`,
		`CREATE TABLE IF NOT EXISTS indexing_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			total_notes INTEGER NOT NULL DEFAULT 0,
			processed_notes INTEGER NOT NULL DEFAULT 0,
			skipped_notes INTEGER NOT NULL DEFAULT 0,
			deleted_notes INTEGER NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			processed_chunks INTEGER NOT NULL DEFAULT 0,
			errors TEXT NOT NULL DEFAULT '[]',
			embedding_provider TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			vector_store_provider TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			created_at TEXT NOT NULL
		);`,
		// At most one Pending or Running job per user, enforced by the
		// database so two concurrent starts cannot both pass an existence
		// check.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_one_active
			ON indexing_jobs(user_id) WHERE status IN ('pending', 'running');`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user ON indexing_jobs(user_id);`,
		`CREATE TABLE IF NOT EXISTS rag_query_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			query TEXT NOT NULL,
			conversation_id TEXT,
			created_at TEXT NOT NULL,
			total_time_ms INTEGER NOT NULL DEFAULT 0,
			query_embedding_time_ms INTEGER NOT NULL DEFAULT 0,
			vector_search_time_ms INTEGER NOT NULL DEFAULT 0,
			rerank_time_ms INTEGER NOT NULL DEFAULT 0,
			retrieved_count INTEGER NOT NULL DEFAULT 0,
			final_count INTEGER NOT NULL DEFAULT 0,
			top_cosine_score REAL NOT NULL DEFAULT 0,
			avg_cosine_score REAL NOT NULL DEFAULT 0,
			top_rerank_score REAL,
			avg_rerank_score REAL,
			hybrid_search_enabled INTEGER NOT NULL DEFAULT 0,
			hyde_enabled INTEGER NOT NULL DEFAULT 0,
			multi_query_enabled INTEGER NOT NULL DEFAULT 0,
			reranking_enabled INTEGER NOT NULL DEFAULT 0,
			user_feedback TEXT,
			feedback_category TEXT,
			feedback_comment TEXT,
			topic_cluster INTEGER,
			topic_label TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_query_logs_user_created
			ON rag_query_logs(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS note_chunks (
			id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			note_updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_note_chunks_user ON note_chunks(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_note_chunks_note ON note_chunks(note_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
