package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"secondbrain/internal/analytics"
	"secondbrain/internal/handlers"
	"secondbrain/internal/indexer"
	"secondbrain/internal/rag"
	"secondbrain/internal/storage"
	"secondbrain/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Orchestrator   *indexer.Orchestrator
	StatsCollector *indexer.StatsCollector
	Engine         *rag.Engine
	Analytics      *analytics.Service
	Notes          storage.NoteStore
	Stores         *vectorstore.Registry
	DB             *sql.DB
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	indexHandler := handlers.NewIndexHandler(deps.Orchestrator, deps.StatsCollector)
	retrieveHandler := handlers.NewRetrieveHandler(deps.Engine)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics)
	noteHandler := handlers.NewNoteHandler(deps.Notes)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Stores)

	r.Route("/api", func(r chi.Router) {
		r.Route("/index", func(r chi.Router) {
			r.Post("/", indexHandler.Start)
			r.Delete("/", indexHandler.Delete)
			r.Get("/stats", indexHandler.Stats)
			r.Get("/jobs/{jobID}", indexHandler.Status)
			r.Post("/jobs/{jobID}/cancel", indexHandler.Cancel)
		})

		r.Post("/retrieve", retrieveHandler.Retrieve)
		r.Post("/feedback", analyticsHandler.SubmitFeedback)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/performance", analyticsHandler.Performance)
			r.Get("/topics", analyticsHandler.Topics)
			r.Post("/clusters", analyticsHandler.Cluster)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", noteHandler.List)
			r.Post("/", noteHandler.Create)
			r.Get("/{noteID}", noteHandler.Get)
			r.Put("/{noteID}", noteHandler.Update)
			r.Delete("/{noteID}", noteHandler.Delete)
		})
	})

	r.Method(http.MethodGet, "/healthz", healthHandler)

	return r
}
