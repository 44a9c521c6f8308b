package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_querylog_store.go -package=mocks secondbrain/internal/storage QueryLogStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueryLogStore defines the interface for retrieval telemetry persistence.
type QueryLogStore interface {
	// Insert persists a new query log record.
	Insert(ctx context.Context, log *QueryLog) error
	// GetByID gets a log by id. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*QueryLog, error)
	// UpdateFeedback overwrites the feedback fields of a log.
	UpdateFeedback(ctx context.Context, id, feedback, category, comment string) error
	// ListSince returns a user's logs created at or after the given time,
	// oldest first.
	ListSince(ctx context.Context, userID string, since time.Time) ([]*QueryLog, error)
	// UpdateTopic assigns a topic cluster and label to a log.
	UpdateTopic(ctx context.Context, id string, cluster int, label string) error
}

// QueryLogRepo provides methods for query log operations.
// It implements the QueryLogStore interface.
type QueryLogRepo struct {
	db *sql.DB
}

// NewQueryLogRepo creates a new QueryLogRepo.
func NewQueryLogRepo(db *sql.DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

// Insert persists a new query log record.
func (r *QueryLogRepo) Insert(ctx context.Context, log *QueryLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rag_query_logs
		 (id, user_id, query, conversation_id, created_at,
		  total_time_ms, query_embedding_time_ms, vector_search_time_ms, rerank_time_ms,
		  retrieved_count, final_count,
		  top_cosine_score, avg_cosine_score, top_rerank_score, avg_rerank_score,
		  hybrid_search_enabled, hyde_enabled, multi_query_enabled, reranking_enabled,
		  user_feedback, feedback_category, feedback_comment, topic_cluster, topic_label)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.UserID, log.Query, nullString(log.ConversationID), formatTime(log.CreatedAt),
		log.TotalTimeMs, log.QueryEmbeddingTimeMs, log.VectorSearchTimeMs, log.RerankTimeMs,
		log.RetrievedCount, log.FinalCount,
		log.TopCosineScore, log.AvgCosineScore, log.TopRerankScore, log.AvgRerankScore,
		log.HybridSearchEnabled, log.HyDEEnabled, log.MultiQueryEnabled, log.RerankingEnabled,
		nullString(log.UserFeedback), nullString(log.FeedbackCategory), nullString(log.FeedbackComment),
		log.TopicCluster, nullString(log.TopicLabel),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}

	return nil
}

// GetByID gets a log by id. Returns ErrNotFound if not found.
func (r *QueryLogRepo) GetByID(ctx context.Context, id string) (*QueryLog, error) {
	row := r.db.QueryRowContext(ctx, selectQueryLog+" WHERE id = ?", id)

	log, err := scanQueryLog(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return log, nil
}

// UpdateFeedback overwrites the feedback fields of a log. Repeated
// submissions replace earlier values rather than appending.
func (r *QueryLogRepo) UpdateFeedback(ctx context.Context, id, feedback, category, comment string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rag_query_logs
		 SET user_feedback = ?, feedback_category = ?, feedback_comment = ?
		 WHERE id = ?`,
		feedback, nullString(category), nullString(comment), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check feedback update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListSince returns a user's logs created at or after the given time, oldest first.
func (r *QueryLogRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]*QueryLog, error) {
	rows, err := r.db.QueryContext(ctx,
		selectQueryLog+" WHERE user_id = ? AND created_at >= ? ORDER BY created_at",
		userID, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var logs []*QueryLog
	for rows.Next() {
		log, err := scanQueryLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return logs, nil
}

// UpdateTopic assigns a topic cluster and label to a log.
func (r *QueryLogRepo) UpdateTopic(ctx context.Context, id string, cluster int, label string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE rag_query_logs SET topic_cluster = ?, topic_label = ? WHERE id = ?",
		cluster, label, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	return nil
}

const selectQueryLog = `SELECT id, user_id, query, conversation_id, created_at,
	total_time_ms, query_embedding_time_ms, vector_search_time_ms, rerank_time_ms,
	retrieved_count, final_count,
	top_cosine_score, avg_cosine_score, top_rerank_score, avg_rerank_score,
	hybrid_search_enabled, hyde_enabled, multi_query_enabled, reranking_enabled,
	user_feedback, feedback_category, feedback_comment, topic_cluster, topic_label
	FROM rag_query_logs`

func scanQueryLog(row rowScanner) (*QueryLog, error) {
	var log QueryLog
	var conversationID, feedback, category, comment, topicLabel sql.NullString
	var topicCluster sql.NullInt64
	var topRerank, avgRerank sql.NullFloat64
	var createdAt string

	err := row.Scan(&log.ID, &log.UserID, &log.Query, &conversationID, &createdAt,
		&log.TotalTimeMs, &log.QueryEmbeddingTimeMs, &log.VectorSearchTimeMs, &log.RerankTimeMs,
		&log.RetrievedCount, &log.FinalCount,
		&log.TopCosineScore, &log.AvgCosineScore, &topRerank, &avgRerank,
		&log.HybridSearchEnabled, &log.HyDEEnabled, &log.MultiQueryEnabled, &log.RerankingEnabled,
		&feedback, &category, &comment, &topicCluster, &topicLabel,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan query log: %w", err)
	}

	if log.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	log.ConversationID = conversationID.String
	log.UserFeedback = feedback.String
	log.FeedbackCategory = category.String
	log.FeedbackComment = comment.String
	log.TopicLabel = topicLabel.String
	if topicCluster.Valid {
		cluster := int(topicCluster.Int64)
		log.TopicCluster = &cluster
	}
	if topRerank.Valid {
		log.TopRerankScore = &topRerank.Float64
	}
	if avgRerank.Valid {
		log.AvgRerankScore = &avgRerank.Float64
	}

	return &log, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
