package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const healthTimeout = 3 * time.Second

// Health reports 503 when the database is down. A down rate limit store only
// degrades the service, since the limiter lets requests through without it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	msg := "Fresh Digital Creations API"
	if h.db == nil {
		msg += " (no database)"
	} else if err := h.db.Ping(ctx); err != nil {
		slog.ErrorContext(ctx, "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unhealthy",
			Message: "database unreachable",
		})
		return
	}

	if h.limiterStore != nil {
		if err := h.limiterStore.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "rate limit store unreachable", "error", err)
			writeJSON(w, http.StatusOK, healthResponse{
				Status:  "degraded",
				Message: "rate limit store unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: msg})
}
