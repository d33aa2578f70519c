package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Pinger reports whether the fact store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service and database liveness
type HealthHandler struct {
	db      Pinger
	version string
}

// NewHealthHandler creates the health handler
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

// ServeHTTP answers 200 when the database responds, 503 otherwise
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	overall, dbStatus := "healthy", "up"
	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		overall, dbStatus = "degraded", "down"
	}

	render.Status(r, status)
	render.JSON(w, r, map[string]any{
		"status":    overall,
		"database":  dbStatus,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
