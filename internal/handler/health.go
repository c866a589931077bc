package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/codechat-ai/codechat/internal/events"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db        *sql.DB
	publisher *events.Publisher
}

// NewHealthHandler creates a new health handler. db may be nil when the
// service boots degraded without persistence.
func NewHealthHandler(db *sql.DB, publisher *events.Publisher) *HealthHandler {
	return &HealthHandler{
		db:        db,
		publisher: publisher,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. The database must be reachable; the event
// bus is optional and only reported.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": "running without persistence",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}

	eventBus := "disabled"
	if h.publisher != nil {
		if h.publisher.IsConnected() {
			eventBus = "connected"
		} else {
			eventBus = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"events": eventBus,
	})
}
