package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/freshdigital/backend/internal/ratelimit"
	"github.com/freshdigital/backend/internal/service"
	"github.com/freshdigital/backend/internal/validation"
)

// NewsletterHandler serves the newsletter subscribe and unsubscribe endpoints.
type NewsletterHandler struct {
	newsletterService service.NewsletterService
	now               func() time.Time
}

// NewNewsletterHandler creates a NewsletterHandler with the given service.
func NewNewsletterHandler(newsletterService service.NewsletterService) *NewsletterHandler {
	return &NewsletterHandler{newsletterService: newsletterService, now: time.Now}
}

type subscribeRequest struct {
	Email string `json:"email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Subscribe handles POST /api/newsletter. New and existing subscribers both get 200.
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Valid email is required")
		return
	}

	res, err := h.newsletterService.Subscribe(r.Context(), ratelimit.ClientKey(r), req.Email)
	if err != nil {
		var (
			verr  *validation.Error
			rlErr *service.RateLimitError
		)
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, "Valid email is required")
		case errors.As(err, &rlErr):
			w.Header().Set("Retry-After", retryAfterSeconds(rlErr.RetryAfter(h.now())))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to subscribe to newsletter")
		}
		return
	}

	if res.AlreadySubscribed {
		writeJSON(w, http.StatusOK, messageResponse{Message: "You are already subscribed to our newsletter!"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully subscribed to newsletter!"})
}

type unsubscribeRequest struct {
	Token string `json:"token"`
}

// Unsubscribe handles POST /api/newsletter/unsubscribe. The token may come
// from the JSON body or the token query parameter (links in emails).
func (h *NewsletterHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var req unsubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unsubscribe token")
			return
		}
		token = req.Token
	}

	err := h.newsletterService.Unsubscribe(r.Context(), token)
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Invalid unsubscribe token")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to unsubscribe from newsletter")
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: "You have been unsubscribed from our newsletter."})
	}
}
