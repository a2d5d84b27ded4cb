package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/freshdigital/backend/internal/mailer"
	"github.com/freshdigital/backend/internal/model"
	"github.com/freshdigital/backend/internal/validation"
)

// Policy selects the side effect performed for an accepted contact submission.
type Policy string

const (
	// PolicyPersist inserts the submission into contact_submissions.
	PolicyPersist Policy = "persist"
	// PolicyNotify emails the operator and sends the submitter an auto-reply.
	PolicyNotify Policy = "notify"
	// PolicyArchive writes the submission as a JSON document to object storage.
	PolicyArchive Policy = "archive"
)

// ParsePolicy accepts persist, notify or archive (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyPersist, PolicyNotify, PolicyArchive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown contact policy %q (want persist, notify or archive)", s)
	}
}

// ContactResult describes what happened to an accepted submission.
type ContactResult struct {
	Policy Policy
	// Spam is set when the honeypot tripped. Nothing was stored or sent;
	// under PolicyNotify the deliveries mirror a primary-transport success.
	Spam       bool
	Submission *model.ContactSubmission
	// Notification and AutoReply are set under PolicyNotify.
	Notification *mailer.Delivery
	AutoReply    *mailer.Delivery
	// ArchiveURL is set under PolicyArchive.
	ArchiveURL string
}

// ContactService runs the contact intake pipeline.
type ContactService interface {
	// Submit rate-checks clientKey, validates in and performs the configured
	// side effect. Errors: *RateLimitError, *validation.Error,
	// ErrMisconfigured, ErrUpstreamUnavailable or a generic error.
	Submit(ctx context.Context, clientKey string, in validation.ContactInput) (*ContactResult, error)

	// List returns stored submissions, newest first.
	List(ctx context.Context, opts model.ListOptions) ([]*model.ContactSubmission, error)

	// Count returns the number of stored submissions.
	Count(ctx context.Context) (int, error)

	// Policy returns the configured side-effect policy.
	Policy() Policy
}
