package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"secondbrain/internal/analytics"
	"secondbrain/internal/handlers"
	"secondbrain/internal/indexer"
	"secondbrain/internal/llm"
	llm_mocks "secondbrain/internal/llm/mocks"
	"secondbrain/internal/rag"
	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	ctrl := gomock.NewController(t)
	embedder := llm_mocks.NewMockEmbeddingProvider(ctrl)
	embedder.EXPECT().ModelName().Return("test-embed").AnyTimes()
	embedder.EXPECT().Dimensions().Return(3).AnyTimes()
	embedder.EXPECT().
		Embed(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = []float32{1, 0, 0}
			}
			return vectors, nil
		}).
		AnyTimes()
	completer := llm_mocks.NewMockCompleter(ctrl)

	providers := llm.NewRegistry("mock")
	providers.Register("mock", embedder)

	stores := vectorstore.NewRegistry("sqlite")
	stores.Register(vectorstore.NewSQLiteStore(db))
	store, err := stores.Get("")
	if err != nil {
		t.Fatalf("failed to resolve store: %v", err)
	}

	noteRepo := storage.NewNoteRepo(db)
	chunker := indexer.NewChunker(400, 50)
	orchestrator := indexer.NewOrchestrator(noteRepo, storage.NewJobRepo(db), stores, providers, chunker, 2)
	statsCollector := indexer.NewStatsCollector(noteRepo, stores, "mock", time.Second)
	analyticsService := analytics.NewService(storage.NewQueryLogRepo(db), embedder)
	engine := rag.NewEngine(embedder, completer, nil, store, analyticsService, 0.3)

	return NewRouter(&Deps{
		Orchestrator:   orchestrator,
		StatsCollector: statsCollector,
		Engine:         engine,
		Analytics:      analyticsService,
		Notes:          noteRepo,
		Stores:         stores,
		DB:             db,
	})
}

func doRequest(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestRouter_RequiresUserHeader(t *testing.T) {
	router := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/notes"},
		{http.MethodPost, "/api/index"},
		{http.MethodPost, "/api/retrieve"},
		{http.MethodGet, "/api/analytics/performance"},
	}
	for _, p := range paths {
		w := doRequest(t, router, p.method, p.path, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s without user header: status = %d, want %d", p.method, p.path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestRouter_NoteCRUD(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/notes", "user-1", handlers.NoteRequest{
		Title:   "Fermentation",
		Content: "Keep the starter warm.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create note: status = %d, body = %s", w.Code, w.Body.String())
	}
	var created handlers.NoteResponse
	decodeInto(t, w, &created)
	if created.ID == "" {
		t.Fatal("expected created note to have an id")
	}

	// Foreign users see neither the note nor its id.
	if w := doRequest(t, router, http.MethodGet, "/api/notes/"+created.ID, "user-2", nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign note read: status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = doRequest(t, router, http.MethodPut, "/api/notes/"+created.ID, "user-1", handlers.NoteRequest{
		Title:   "Fermentation",
		Content: "Keep the starter warm and feed it daily.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update note: status = %d, body = %s", w.Code, w.Body.String())
	}

	var listing struct {
		Notes []handlers.NoteResponse `json:"notes"`
	}
	w = doRequest(t, router, http.MethodGet, "/api/notes", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list notes: status = %d", w.Code)
	}
	decodeInto(t, w, &listing)
	if len(listing.Notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(listing.Notes))
	}

	if w := doRequest(t, router, http.MethodDelete, "/api/notes/"+created.ID, "user-1", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete note: status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRouter_IndexRetrieveFeedbackFlow(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/notes", "user-1", handlers.NoteRequest{
		Title:   "Sourdough",
		Content: "Feed the starter every morning with equal parts flour and water.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create note: status = %d", w.Code)
	}

	w = doRequest(t, router, http.MethodPost, "/api/index", "user-1", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start indexing: status = %d, body = %s", w.Code, w.Body.String())
	}
	var job handlers.JobResponse
	decodeInto(t, w, &job)

	// Starting again while the job may still be active either conflicts or,
	// if the first finished already, starts a new job.
	if w := doRequest(t, router, http.MethodPost, "/api/index", "user-1", nil); w.Code != http.StatusConflict && w.Code != http.StatusAccepted {
		t.Errorf("second start: status = %d", w.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = doRequest(t, router, http.MethodGet, "/api/index/jobs/"+job.ID, "user-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("job status: status = %d", w.Code)
		}
		decodeInto(t, w, &job)
		if job.Status == string(storage.JobCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, status %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.ProcessedNotes != 1 {
		t.Errorf("expected 1 processed note, got %d", job.ProcessedNotes)
	}

	// Job status is scoped to the owner.
	if w := doRequest(t, router, http.MethodGet, "/api/index/jobs/"+job.ID, "user-2", nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign job status: status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := doRequest(t, router, http.MethodGet, "/api/index/jobs/no-such-job", "user-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown job status: status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = doRequest(t, router, http.MethodPost, "/api/retrieve", "user-1", handlers.RetrieveRequest{
		Query: "how do I feed my starter",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("retrieve: status = %d, body = %s", w.Code, w.Body.String())
	}
	var retrieved handlers.RetrieveResponse
	decodeInto(t, w, &retrieved)
	if len(retrieved.Results) == 0 {
		t.Fatal("expected retrieval results")
	}
	if retrieved.LogID == "" {
		t.Fatal("expected a query log id")
	}

	w = doRequest(t, router, http.MethodPost, "/api/feedback", "user-1", handlers.FeedbackRequest{
		LogID:    retrieved.LogID,
		Feedback: "positive",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("feedback: status = %d, body = %s", w.Code, w.Body.String())
	}

	// Feedback on someone else's log is forbidden.
	w = doRequest(t, router, http.MethodPost, "/api/feedback", "user-2", handlers.FeedbackRequest{
		LogID:    retrieved.LogID,
		Feedback: "negative",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign feedback: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	var perf handlers.PerformanceResponse
	w = doRequest(t, router, http.MethodGet, "/api/analytics/performance", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("performance: status = %d", w.Code)
	}
	decodeInto(t, w, &perf)
	if perf.TotalQueries != 1 || perf.PositiveCount != 1 {
		t.Errorf("unexpected performance stats: %+v", perf)
	}

	var stats handlers.IndexStatsResponse
	w = doRequest(t, router, http.MethodGet, "/api/index/stats", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index stats: status = %d", w.Code)
	}
	decodeInto(t, w, &stats)
	if len(stats.Backends) != 1 || stats.Backends[0].Provider != "sqlite" {
		t.Fatalf("unexpected stats backends: %+v", stats.Backends)
	}
	if stats.Backends[0].Stats.UniqueNotes != 1 {
		t.Errorf("expected 1 indexed note, got %d", stats.Backends[0].Stats.UniqueNotes)
	}

	w = doRequest(t, router, http.MethodDelete, "/api/index", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete index: status = %d", w.Code)
	}
	var deleted map[string]bool
	decodeInto(t, w, &deleted)
	if !deleted["deleted"] {
		t.Error("expected indexed data to be deleted")
	}
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d, body = %s", w.Code, w.Body.String())
	}

	var health handlers.HealthResponse
	decodeInto(t, w, &health)
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %q", health.Status)
	}
	if health.Checks["database"] != "ok" || health.Checks["vector_store_sqlite"] != "ok" {
		t.Errorf("unexpected checks: %v", health.Checks)
	}
}
