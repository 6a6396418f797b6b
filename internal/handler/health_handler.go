package handler

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"techblog/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker is a dependency that can report its own health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	counterStore HealthChecker
	database     HealthChecker
	logger       *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(counterStore, database HealthChecker, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		counterStore: counterStore,
		database:     database,
		logger:       logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health. An unreachable counter store only degrades the
// service because counting is best effort; an unreachable database fails it.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "techblog-visitors",
		Checks:    map[string]string{"redis": "ok", "postgres": "ok"},
	}
	status := http.StatusOK

	if err := h.counterStore.Health(ctx); err != nil {
		h.logger.WithError(err).Warn("Redis health check failed")
		response.Checks["redis"] = "unavailable"
		response.Status = "degraded"
	}

	if err := h.database.Health(ctx); err != nil {
		h.logger.WithError(err).Error("PostgreSQL health check failed")
		response.Checks["postgres"] = "unavailable"
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode health check response")
	}
}
