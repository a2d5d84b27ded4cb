package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/freshdigital/backend/internal/ratelimit"
	"github.com/freshdigital/backend/internal/service"
	"github.com/freshdigital/backend/internal/validation"
)

const (
	msgContactSuccess   = "Message sent successfully! We'll get back to you within 24 hours."
	msgInvalidForm      = "Invalid form data. Please check your inputs."
	msgInvalidBody      = "Invalid request body."
	msgTechnicalTrouble = "We're experiencing technical difficulties. Please try again later or contact us directly."
	msgNetworkFailure   = "Network connection failed. Please check your internet connection and try again."
)

// ContactHandler serves POST and GET /api/contact.
type ContactHandler struct {
	contactService service.ContactService
	ratePolicy     string
	debug          bool
	now            func() time.Time
}

// ContactConfig controls the contact handler's presentation.
type ContactConfig struct {
	// RatePolicy is the human description returned by GET, e.g. "5 requests per 15 minutes".
	RatePolicy string
	// Debug adds the underlying error to 5xx responses. Development only.
	Debug bool
}

// NewContactHandler creates a ContactHandler with the given service.
func NewContactHandler(contactService service.ContactService, cfg ContactConfig) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		ratePolicy:     cfg.RatePolicy,
		debug:          cfg.Debug,
		now:            time.Now,
	}
}

type contactServices struct {
	Notification string `json:"notification"`
	AutoReply    string `json:"autoReply"`
}

type contactDetails struct {
	NotificationSent bool            `json:"notificationSent"`
	AutoReplySent    bool            `json:"autoReplySent"`
	Services         contactServices `json:"services"`
}

type debugInfo struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type contactResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Error   string                  `json:"error,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
	Details *contactDetails         `json:"details,omitempty"`
	Debug   *debugInfo              `json:"debug,omitempty"`
}

// Submit handles POST /api/contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in validation.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, contactResponse{
			Message: msgInvalidBody,
			Error:   "invalid_json",
		})
		return
	}

	res, err := h.contactService.Submit(r.Context(), ratelimit.ClientKey(r), in)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	resp := contactResponse{Success: true, Message: msgContactSuccess}
	if res.Notification != nil && res.AutoReply != nil {
		resp.Details = &contactDetails{
			NotificationSent: true,
			AutoReplySent:    true,
			Services: contactServices{
				Notification: res.Notification.Transport,
				AutoReply:    res.AutoReply.Transport,
			},
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ContactHandler) writeSubmitError(w http.ResponseWriter, err error) {
	var (
		verr  *validation.Error
		rlErr *service.RateLimitError
	)

	switch {
	case errors.As(err, &rlErr):
		wait := rlErr.RetryAfter(h.now())
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		writeJSON(w, http.StatusTooManyRequests, contactResponse{
			Message: "Too many requests. Please try again in " + humanMinutes(wait) + ".",
			Error:   "rate_limited",
		})

	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, contactResponse{
			Message: msgInvalidForm,
			Error:   "validation_failed",
			Errors:  verr.Fields,
		})

	case errors.Is(err, service.ErrStoreUnreachable):
		writeJSON(w, http.StatusServiceUnavailable, h.withDebug(contactResponse{
			Message: msgNetworkFailure,
			Error:   "upstream_unavailable",
		}, err))

	case errors.Is(err, service.ErrMisconfigured):
		writeJSON(w, http.StatusInternalServerError, h.withDebug(contactResponse{
			Message: msgTechnicalTrouble,
			Error:   "server_misconfigured",
		}, err))

	case errors.Is(err, service.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusInternalServerError, h.withDebug(contactResponse{
			Message: msgTechnicalTrouble,
			Error:   "upstream_unavailable",
		}, err))

	default:
		writeJSON(w, http.StatusInternalServerError, h.withDebug(contactResponse{
			Message: msgTechnicalTrouble,
			Error:   "internal_error",
		}, err))
	}
}

func (h *ContactHandler) withDebug(resp contactResponse, err error) contactResponse {
	if h.debug {
		resp.Debug = &debugInfo{Error: err.Error(), Timestamp: h.now().UTC().Format(time.RFC3339)}
	}
	return resp
}

type describeResponse struct {
	Message   string   `json:"message"`
	Methods   []string `json:"methods"`
	RateLimit string   `json:"rateLimit"`
}

// Describe handles GET /api/contact. It only describes the endpoint.
func (h *ContactHandler) Describe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describeResponse{
		Message:   "Contact API is running",
		Methods:   []string{http.MethodPost},
		RateLimit: h.ratePolicy,
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func humanMinutes(d time.Duration) string {
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
