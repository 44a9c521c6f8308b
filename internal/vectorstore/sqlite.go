package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// SQLiteStore keeps chunk vectors in the application's own database. Vectors
// are stored as little-endian float32 blobs and searched by brute-force
// cosine scan, which is adequate for a single user's notes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a vector store backed by the given database. The
// note_chunks table is created by storage.Migrate.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO note_chunks (id, note_id, user_id, content, chunk_index, embedding, note_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			note_id = excluded.note_id,
			user_id = excluded.user_id,
			content = excluded.content,
			chunk_index = excluded.chunk_index,
			embedding = excluded.embedding,
			note_updated_at = excluded.note_updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.NoteID, chunk.UserID, chunk.Content, chunk.ChunkIndex,
			encodeVector(chunk.Embedding), chunk.NoteUpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("upserting chunk %s: %w", chunk.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, userID string, query []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, note_id, user_id, content, chunk_index, embedding, note_updated_at
		FROM note_chunks WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var scored []ScoredChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(query, chunk.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.NoteUpdatedAt.After(scored[j].Chunk.NoteUpdatedAt)
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (s *SQLiteStore) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM note_chunks WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("deleting chunks for user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) DeleteByNoteID(ctx context.Context, noteID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM note_chunks WHERE note_id = ?`, noteID)
	if err != nil {
		return false, fmt.Errorf("deleting chunks for note: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, userID string) (Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT note_id)
		FROM note_chunks WHERE user_id = ?
	`, userID)

	var stats Stats
	if err := row.Scan(&stats.TotalEmbeddings, &stats.UniqueNotes); err != nil {
		return Stats{}, fmt.Errorf("querying index stats: %w", err)
	}

	// RFC3339Nano strips trailing fractional zeros, so string MAX in SQL can
	// pick the wrong row. Parse the timestamps and compare them as times.
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT note_updated_at FROM note_chunks WHERE user_id = ?
	`, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("querying indexed times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return Stats{}, fmt.Errorf("scanning indexed time: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Stats{}, fmt.Errorf("parsing last indexed time: %w", err)
		}
		if stats.LastIndexedAt == nil || t.After(*stats.LastIndexedAt) {
			stats.LastIndexedAt = &t
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterating indexed times: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) IndexedNotes(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, MAX(note_updated_at)
		FROM note_chunks WHERE user_id = ?
		GROUP BY note_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying indexed notes: %w", err)
	}
	defer rows.Close()

	notes := make(map[string]time.Time)
	for rows.Next() {
		var noteID, updated string
		if err := rows.Scan(&noteID, &updated); err != nil {
			return nil, fmt.Errorf("scanning indexed note: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, updated)
		if err != nil {
			return nil, fmt.Errorf("parsing indexed note time: %w", err)
		}
		notes[noteID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating indexed notes: %w", err)
	}
	return notes, nil
}

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var chunk Chunk
	var blob []byte
	var updated string
	err := rows.Scan(&chunk.ID, &chunk.NoteID, &chunk.UserID, &chunk.Content, &chunk.ChunkIndex, &blob, &updated)
	if err != nil {
		return Chunk{}, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.Embedding, err = decodeVector(blob)
	if err != nil {
		return Chunk{}, fmt.Errorf("decoding embedding for chunk %s: %w", chunk.ID, err)
	}
	chunk.NoteUpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Chunk{}, fmt.Errorf("parsing note time for chunk %s: %w", chunk.ID, err)
	}
	return chunk, nil
}

// encodeVector packs a float32 vector as a little-endian blob.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is zero-length or the dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
