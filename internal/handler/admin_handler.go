package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/freshdigital/backend/internal/model"
	"github.com/freshdigital/backend/internal/service"
)

// AdminHandler lists stored submissions. Routes are mounted behind
// auth.RequireToken.
type AdminHandler struct {
	contactService    service.ContactService
	newsletterService service.NewsletterService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(contactService service.ContactService, newsletterService service.NewsletterService) *AdminHandler {
	return &AdminHandler{contactService: contactService, newsletterService: newsletterService}
}

type contactListResponse struct {
	Submissions []*model.ContactSubmission `json:"submissions"`
	Total       int                        `json:"total"`
	Limit       int                        `json:"limit"`
	Offset      int                        `json:"offset"`
}

// Contacts handles GET /api/admin/contacts.
func (h *AdminHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	subs, err := h.contactService.List(r.Context(), opts)
	if err == nil {
		var total int
		total, err = h.contactService.Count(r.Context())
		if err == nil {
			// Return [] not null for empty lists
			if subs == nil {
				subs = []*model.ContactSubmission{}
			}
			writeJSON(w, http.StatusOK, contactListResponse{Submissions: subs, Total: total, Limit: opts.Limit, Offset: opts.Offset})
			return
		}
	}

	if errors.Is(err, service.ErrMisconfigured) {
		writeError(w, http.StatusServiceUnavailable, "listing_unavailable")
		return
	}
	slog.Error("admin: list contacts", "error", err)
	writeError(w, http.StatusInternalServerError, "list_failed")
}

type newsletterListResponse struct {
	Subscriptions []*model.NewsletterSubscription `json:"subscriptions"`
	Total         int                             `json:"total"`
	Limit         int                             `json:"limit"`
	Offset        int                             `json:"offset"`
}

// Newsletter handles GET /api/admin/newsletter.
func (h *AdminHandler) Newsletter(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	subs, err := h.newsletterService.List(r.Context(), opts)
	if err != nil {
		slog.Error("admin: list newsletter", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	total, err := h.newsletterService.Count(r.Context())
	if err != nil {
		slog.Error("admin: count newsletter", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}

	if subs == nil {
		subs = []*model.NewsletterSubscription{}
	}
	writeJSON(w, http.StatusOK, newsletterListResponse{Subscriptions: subs, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}
