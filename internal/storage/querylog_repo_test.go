package storage

import (
	"context"
	"testing"
	"time"
)

func TestQueryLogRepo_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryLogRepo(db)
	ctx := context.Background()

	rerank := 0.91
	log := &QueryLog{
		UserID:               "user-1",
		Query:                "how do goroutines leak",
		TotalTimeMs:          120,
		QueryEmbeddingTimeMs: 30,
		VectorSearchTimeMs:   60,
		RerankTimeMs:         30,
		RetrievedCount:       20,
		FinalCount:           5,
		TopCosineScore:       0.87,
		AvgCosineScore:       0.71,
		TopRerankScore:       &rerank,
		HybridSearchEnabled:  true,
		RerankingEnabled:     true,
	}
	if err := repo.Insert(ctx, log); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, log.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Query != log.Query {
		t.Errorf("Query = %q, want %q", got.Query, log.Query)
	}
	if got.TopCosineScore != 0.87 {
		t.Errorf("TopCosineScore = %v, want 0.87", got.TopCosineScore)
	}
	if got.TopRerankScore == nil || *got.TopRerankScore != 0.91 {
		t.Errorf("TopRerankScore = %v, want 0.91", got.TopRerankScore)
	}
	if got.AvgRerankScore != nil {
		t.Errorf("AvgRerankScore = %v, want nil", got.AvgRerankScore)
	}
	if !got.HybridSearchEnabled || !got.RerankingEnabled || got.HyDEEnabled {
		t.Errorf("flags = hybrid=%v rerank=%v hyde=%v", got.HybridSearchEnabled, got.RerankingEnabled, got.HyDEEnabled)
	}
}

func TestQueryLogRepo_UpdateFeedback_Overwrites(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryLogRepo(db)
	ctx := context.Background()

	log := &QueryLog{UserID: "user-1", Query: "q"}
	if err := repo.Insert(ctx, log); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := repo.UpdateFeedback(ctx, log.ID, "negative", "irrelevant", "not what I asked"); err != nil {
		t.Fatalf("UpdateFeedback() error = %v", err)
	}
	if err := repo.UpdateFeedback(ctx, log.ID, "positive", "", ""); err != nil {
		t.Fatalf("UpdateFeedback() second error = %v", err)
	}

	got, err := repo.GetByID(ctx, log.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	// Repeated submission replaces the earlier values entirely.
	if got.UserFeedback != "positive" {
		t.Errorf("UserFeedback = %q, want positive", got.UserFeedback)
	}
	if got.FeedbackCategory != "" || got.FeedbackComment != "" {
		t.Errorf("category/comment = %q/%q, want empty", got.FeedbackCategory, got.FeedbackComment)
	}
}

func TestQueryLogRepo_UpdateFeedback_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryLogRepo(db)

	if err := repo.UpdateFeedback(context.Background(), "missing", "positive", "", ""); err != ErrNotFound {
		t.Errorf("UpdateFeedback() error = %v, want ErrNotFound", err)
	}
}

func TestQueryLogRepo_ListSince(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryLogRepo(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, q := range []string{"old", "recent", "newest"} {
		log := &QueryLog{
			UserID:    "user-1",
			Query:     q,
			CreatedAt: base.Add(time.Duration(i) * 20 * time.Minute),
		}
		if err := repo.Insert(ctx, log); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	logs, err := repo.ListSince(ctx, "user-1", base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("ListSince() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("ListSince() returned %d logs, want 2", len(logs))
	}
	if logs[0].Query != "recent" || logs[1].Query != "newest" {
		t.Errorf("ListSince() order = [%s, %s], want oldest first", logs[0].Query, logs[1].Query)
	}
}

func TestQueryLogRepo_UpdateTopic(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryLogRepo(db)
	ctx := context.Background()

	log := &QueryLog{UserID: "user-1", Query: "kubernetes networking"}
	if err := repo.Insert(ctx, log); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := repo.UpdateTopic(ctx, log.ID, 2, "kubernetes networking"); err != nil {
		t.Fatalf("UpdateTopic() error = %v", err)
	}

	got, err := repo.GetByID(ctx, log.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TopicCluster == nil || *got.TopicCluster != 2 {
		t.Errorf("TopicCluster = %v, want 2", got.TopicCluster)
	}
	if got.TopicLabel != "kubernetes networking" {
		t.Errorf("TopicLabel = %q", got.TopicLabel)
	}
}
