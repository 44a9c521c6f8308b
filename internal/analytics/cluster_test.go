package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"secondbrain/internal/service"
	"secondbrain/internal/storage"
)

// topicVector maps a query onto one of two well-separated directions so the
// expected clustering is unambiguous.
func topicVector(query string) []float32 {
	if strings.Contains(query, "sourdough") {
		return []float32{1, 0, 0}
	}
	return []float32{0, 1, 0}
}

func (e *testEnv) expectTopicEmbeddings() {
	e.embedder.EXPECT().
		Embed(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i, text := range texts {
				vectors[i] = topicVector(text)
			}
			return vectors, nil
		}).
		AnyTimes()
}

func (e *testEnv) insertQueries(t *testing.T, queries []string) []*storage.QueryLog {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	logs := make([]*storage.QueryLog, len(queries))
	for i, query := range queries {
		logs[i] = e.insertLog(t, &storage.QueryLog{
			Query:     query,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return logs
}

func TestService_ClusterQueries(t *testing.T) {
	env := newTestEnv(t)
	env.expectTopicEmbeddings()
	ctx := context.Background()

	queries := []string{
		"sourdough starter feeding schedule",
		"kettlebell swing form",
		"sourdough hydration percentage",
		"kettlebell clean progression",
		"why is my sourdough flat",
	}
	env.insertQueries(t, queries)

	topics, err := env.svc.ClusterQueries(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("failed to cluster queries: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}

	byLabel := make(map[string]Topic)
	for _, topic := range topics {
		key := "kettlebell"
		if strings.Contains(topic.Label, "sourdough") {
			key = "sourdough"
		}
		byLabel[key] = topic
	}
	if byLabel["sourdough"].QueryCount != 3 {
		t.Errorf("expected 3 sourdough queries, got %d", byLabel["sourdough"].QueryCount)
	}
	if byLabel["kettlebell"].QueryCount != 2 {
		t.Errorf("expected 2 kettlebell queries, got %d", byLabel["kettlebell"].QueryCount)
	}

	// Assignments are persisted on each log.
	logs, err := env.logs.ListSince(ctx, "user-1", time.Now().Add(-recentWindow))
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	for _, log := range logs {
		if log.TopicCluster == nil {
			t.Errorf("log %q has no topic cluster", log.Query)
			continue
		}
		if log.TopicLabel == "" {
			t.Errorf("log %q has no topic label", log.Query)
		}
	}

	// Re-clustering the same history yields the same topics.
	again, err := env.svc.ClusterQueries(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("failed to re-cluster: %v", err)
	}
	if len(again) != len(topics) {
		t.Fatalf("expected %d topics on re-cluster, got %d", len(topics), len(again))
	}
	for i := range topics {
		if again[i].Label != topics[i].Label || again[i].QueryCount != topics[i].QueryCount {
			t.Errorf("cluster %d changed: %+v vs %+v", i, topics[i], again[i])
		}
	}
}

func TestService_ClusterQueriesValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, k := range []int{0, 1, 21} {
		if _, err := env.svc.ClusterQueries(ctx, "user-1", k); !service.IsCode(err, service.CodeValidation) {
			t.Errorf("expected validation error for k=%d, got %v", k, err)
		}
	}

	// Fewer queries than requested clusters.
	env.insertQueries(t, []string{"sourdough starter"})
	if _, err := env.svc.ClusterQueries(ctx, "user-1", 2); !service.IsCode(err, service.CodeValidation) {
		t.Errorf("expected validation error for sparse history, got %v", err)
	}
}

func TestService_GetTopicStats(t *testing.T) {
	env := newTestEnv(t)
	env.expectTopicEmbeddings()
	ctx := context.Background()

	logs := env.insertQueries(t, []string{
		"sourdough starter feeding schedule",
		"sourdough hydration percentage",
		"kettlebell swing form",
		"kettlebell clean progression",
	})
	if _, err := env.svc.ClusterQueries(ctx, "user-1", 2); err != nil {
		t.Fatalf("failed to cluster queries: %v", err)
	}

	// Sourdough gets mixed feedback, kettlebell only negative.
	feedback := map[string]string{
		logs[0].ID: FeedbackPositive,
		logs[1].ID: FeedbackNegative,
		logs[2].ID: FeedbackNegative,
	}
	for id, value := range feedback {
		if err := env.svc.SubmitFeedback(ctx, id, "user-1", value, "", ""); err != nil {
			t.Fatalf("failed to submit feedback: %v", err)
		}
	}

	stats, err := env.svc.GetTopicStats(ctx, "user-1")
	if err != nil {
		t.Fatalf("failed to get topic stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(stats))
	}

	// Worst ratio first: kettlebell at 0/1, sourdough at 1/2.
	if !strings.Contains(stats[0].Label, "kettlebell") {
		t.Errorf("expected kettlebell topic first, got %q", stats[0].Label)
	}
	if stats[0].FeedbackRatio != 0 {
		t.Errorf("expected ratio 0 for kettlebell, got %f", stats[0].FeedbackRatio)
	}
	if stats[1].FeedbackRatio != 0.5 {
		t.Errorf("expected ratio 0.5 for sourdough, got %f", stats[1].FeedbackRatio)
	}
	if stats[0].QueryCount != 2 || stats[0].NegativeCount != 1 {
		t.Errorf("unexpected kettlebell counts: %+v", stats[0])
	}
}

func TestService_GetTopicStatsUnratedLast(t *testing.T) {
	env := newTestEnv(t)
	env.expectTopicEmbeddings()
	ctx := context.Background()

	logs := env.insertQueries(t, []string{
		"sourdough starter feeding schedule",
		"kettlebell swing form",
	})
	if _, err := env.svc.ClusterQueries(ctx, "user-1", 2); err != nil {
		t.Fatalf("failed to cluster queries: %v", err)
	}
	if err := env.svc.SubmitFeedback(ctx, logs[1].ID, "user-1", FeedbackPositive, "", ""); err != nil {
		t.Fatalf("failed to submit feedback: %v", err)
	}

	stats, err := env.svc.GetTopicStats(ctx, "user-1")
	if err != nil {
		t.Fatalf("failed to get topic stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(stats))
	}
	if stats[0].FeedbackCount == 0 {
		t.Errorf("expected rated topic first, got %+v", stats[0])
	}
	if stats[1].FeedbackRatio != -1 {
		t.Errorf("expected unrated topic last with ratio -1, got %+v", stats[1])
	}
}

func TestKMeans(t *testing.T) {
	vectors := [][]float32{
		{1, 0}, {0.98, 0.02}, {0, 1}, {0.02, 0.98}, {0.99, 0.01},
	}
	for i := range vectors {
		vectors[i] = normalizeUnit(vectors[i])
	}

	assign := kmeans(vectors, 2)
	if len(assign) != len(vectors) {
		t.Fatalf("expected %d assignments, got %d", len(vectors), len(assign))
	}
	if assign[0] != assign[1] || assign[0] != assign[4] {
		t.Errorf("expected first group together, got %v", assign)
	}
	if assign[2] != assign[3] {
		t.Errorf("expected second group together, got %v", assign)
	}
	if assign[0] == assign[2] {
		t.Errorf("expected groups separated, got %v", assign)
	}

	again := kmeans(vectors, 2)
	for i := range assign {
		if assign[i] != again[i] {
			t.Fatalf("expected deterministic assignments, got %v then %v", assign, again)
		}
	}

	// More clusters than vectors clamps to one cluster per vector.
	tiny := kmeans([][]float32{{1, 0}, {0, 1}}, 5)
	if len(tiny) != 2 || tiny[0] == tiny[1] {
		t.Errorf("expected distinct clusters for distinct vectors, got %v", tiny)
	}
}
