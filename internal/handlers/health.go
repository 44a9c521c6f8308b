package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/vectorstore"
)

// healthCheckTimeout bounds the dependency probes of one health request.
const healthCheckTimeout = 5 * time.Second

// healthProbeUser is a reserved user id used to exercise each vector store
// backend with a cheap, empty-result query.
const healthProbeUser = "_health"

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	db     *sql.DB
	stores *vectorstore.Registry
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB, stores *vectorstore.Registry) *HealthHandler {
	return &HealthHandler{db: db, stores: stores}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results keyed by dependency name
	Checks map[string]string `json:"checks"`
}

// ServeHTTP handles GET /healthz. Returns 200 when every dependency
// responds, 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if err := h.db.PingContext(checkCtx); err != nil {
		logger.WarnContext(ctx, "database health check failed", "error", err)
		checks["database"] = "error"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	for _, store := range h.stores.All() {
		name := "vector_store_" + store.Name()
		if _, err := store.Stats(checkCtx, healthProbeUser); err != nil {
			logger.WarnContext(ctx, "vector store health check failed",
				"provider", store.Name(), "error", err)
			checks[name] = "error"
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
