package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/cors"

	"github.com/freshdigital/backend/internal/model"
	"github.com/freshdigital/backend/internal/repository"
)

// Handler serves the endpoints that are not tied to a single service.
type Handler struct {
	db           repository.DB
	limiterStore repository.DB
	frontendURL  string
}

func New(db repository.DB, frontendURL string) *Handler {
	return &Handler{db: db, frontendURL: frontendURL}
}

// WithLimiterStore adds a shared rate limit store (Redis) to the health check.
func (h *Handler) WithLimiterStore(store repository.DB) *Handler {
	h.limiterStore = store
	return h
}

// CORS allows the marketing site origin to call the API from the browser.
func (h *Handler) CORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.frontendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(next)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// listOptions reads limit/offset query params. Out-of-range values fall back
// to the defaults.
func listOptions(r *http.Request) model.ListOptions {
	opts := model.ListOptions{Limit: model.DefaultListLimit}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= model.MaxListLimit {
			opts.Limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	return opts
}
