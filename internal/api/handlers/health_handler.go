package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessFunc reports whether warm start has completed.
type ReadinessFunc func() bool

// HealthHandler handles health check requests.
type HealthHandler struct {
	db    Pinger
	ready ReadinessFunc
}

const healthPingTimeout = 2 * time.Second

// NewHealthHandler creates a new health handler. db and ready may be nil.
func NewHealthHandler(db Pinger, ready ReadinessFunc) *HealthHandler {
	return &HealthHandler{db: db, ready: ready}
}

// Check handles GET /health: 200 "OK" when the database answers and the in-memory state is loaded.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		h.write(w, http.StatusServiceUnavailable, "warming up")
		return
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "health: database ping failed", "error", err)
			h.write(w, http.StatusServiceUnavailable, "database unavailable")

			return
		}
	}

	h.write(w, http.StatusOK, "OK")
}

func (h *HealthHandler) write(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}
