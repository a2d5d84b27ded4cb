package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/freshdigital/backend/internal/logging"
	"github.com/freshdigital/backend/internal/mailer"
	"github.com/freshdigital/backend/internal/model"
	"github.com/freshdigital/backend/internal/repository"
	"github.com/freshdigital/backend/internal/storage"
	"github.com/freshdigital/backend/internal/validation"
)

const (
	// DefaultStoreTimeout bounds a single store or archive call.
	DefaultStoreTimeout = 30 * time.Second
	// DefaultMailTimeout bounds all the sends made for one submission or signup.
	DefaultMailTimeout = 60 * time.Second
)

// Mailer is satisfied by *mailer.Chain.
type Mailer interface {
	Send(ctx context.Context, msg *mailer.Message) (mailer.Delivery, error)
	// Names lists the transports in priority order.
	Names() []string
}

// ContactRenderer is satisfied by *mailer.Renderer.
type ContactRenderer interface {
	Notification(sub model.ContactSubmission, to string) (*mailer.Message, error)
	AutoReply(sub model.ContactSubmission) (*mailer.Message, error)
}

// ContactConfig holds the tunables of the contact pipeline.
type ContactConfig struct {
	Policy       Policy
	Schema       validation.Schema
	ContactEmail string        // operator address for PolicyNotify
	StoreTimeout time.Duration // default DefaultStoreTimeout
	MailTimeout  time.Duration // default DefaultMailTimeout
}

// ContactDeps are the collaborators of the contact pipeline. Only the ones
// required by the configured policy need to be set.
type ContactDeps struct {
	Limiter  RateLimiter
	Repo     repository.ContactRepository
	Mailer   Mailer
	Renderer ContactRenderer
	Archive  storage.Storage
	Recorder Recorder
}

// ContactServiceImpl is the production implementation of ContactService.
type ContactServiceImpl struct {
	cfg  ContactConfig
	deps ContactDeps
	now  func() time.Time
}

// NewContactService checks that deps cover cfg.Policy and builds the service.
func NewContactService(cfg ContactConfig, deps ContactDeps) (*ContactServiceImpl, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyPersist
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = DefaultMailTimeout
	}
	if deps.Limiter == nil {
		return nil, errors.New("contact service: rate limiter is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	switch cfg.Policy {
	case PolicyPersist:
		if deps.Repo == nil {
			return nil, errors.New("contact service: persist policy needs a repository")
		}
	case PolicyNotify:
		if deps.Mailer == nil || deps.Renderer == nil {
			return nil, errors.New("contact service: notify policy needs a mailer and renderer")
		}
		if cfg.ContactEmail == "" {
			return nil, errors.New("contact service: notify policy needs CONTACT_EMAIL")
		}
	case PolicyArchive:
		if deps.Archive == nil {
			return nil, errors.New("contact service: archive policy needs a storage backend")
		}
	default:
		return nil, fmt.Errorf("contact service: unknown policy %q", cfg.Policy)
	}

	return &ContactServiceImpl{cfg: cfg, deps: deps, now: time.Now}, nil
}

var _ ContactService = (*ContactServiceImpl)(nil)

// Policy implements ContactService.
func (s *ContactServiceImpl) Policy() Policy { return s.cfg.Policy }

// Submit implements ContactService.
func (s *ContactServiceImpl) Submit(ctx context.Context, clientKey string, in validation.ContactInput) (*ContactResult, error) {
	rec := s.deps.Recorder

	if err := checkRate(ctx, s.deps.Limiter, rec, "contact", clientKey); err != nil {
		rec.ObserveContact(OutcomeRateLimited)
		return nil, err
	}

	sub, err := s.cfg.Schema.Contact(in)
	if errors.Is(err, validation.ErrSpam) {
		rec.ObserveContact(OutcomeSpam)
		slog.InfoContext(ctx, "contact submission dropped as spam", "client", clientKey)
		return s.decoy(), nil
	}
	if err != nil {
		rec.ObserveContact(OutcomeInvalid)
		slog.DebugContext(ctx, "contact submission rejected", "error", err)
		return nil, err
	}

	result := &ContactResult{Policy: s.cfg.Policy, Submission: &sub}
	switch s.cfg.Policy {
	case PolicyPersist:
		err = s.persist(ctx, &sub)
	case PolicyNotify:
		err = s.notify(ctx, sub, result)
	case PolicyArchive:
		err = s.archive(ctx, &sub, result)
	}
	if err != nil {
		rec.ObserveContact(outcomeOf(err))
		return nil, err
	}

	rec.ObserveContact(OutcomeAccepted)
	slog.InfoContext(ctx, "contact submission accepted",
		"policy", s.cfg.Policy,
		"id", sub.ID,
		"email", logging.RedactEmail(sub.Email),
		"has_phone", sub.Phone != "",
		"service", sub.Service,
		"message_length", len(sub.Message),
	)
	return result, nil
}

// decoy is the result reported for a honeypot hit. Under PolicyNotify it
// carries the deliveries a real send through the primary transport would
// report, so the response body does not reveal the drop.
func (s *ContactServiceImpl) decoy() *ContactResult {
	result := &ContactResult{Policy: s.cfg.Policy, Spam: true}
	if s.cfg.Policy != PolicyNotify {
		return result
	}
	names := s.deps.Mailer.Names()
	if len(names) == 0 {
		return result
	}
	result.Notification = &mailer.Delivery{Transport: names[0]}
	result.AutoReply = &mailer.Delivery{Transport: names[0]}
	return result
}

func (s *ContactServiceImpl) persist(ctx context.Context, sub *model.ContactSubmission) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	err := s.deps.Repo.Save(ctx, sub)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrMisconfigured):
		slog.ErrorContext(ctx, "contact store misconfigured", "error", err)
		return fmt.Errorf("%w: %w", ErrMisconfigured, err)
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		slog.ErrorContext(ctx, "contact store unreachable", "error", err)
		return fmt.Errorf("%w: %w: %w", ErrUpstreamUnavailable, ErrStoreUnreachable, err)
	default:
		slog.ErrorContext(ctx, "contact store write failed", "error", err)
		return fmt.Errorf("save contact submission: %w", err)
	}
}

func (s *ContactServiceImpl) notify(ctx context.Context, sub model.ContactSubmission, result *ContactResult) error {
	notification, err := s.deps.Renderer.Notification(sub, s.cfg.ContactEmail)
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}
	autoReply, err := s.deps.Renderer.AutoReply(sub)
	if err != nil {
		return fmt.Errorf("render auto-reply: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()

	d, err := s.deps.Mailer.Send(ctx, notification)
	if err != nil {
		slog.ErrorContext(ctx, "contact notification failed", "error", err)
		return fmt.Errorf("%w: notification: %w", ErrUpstreamUnavailable, err)
	}
	result.Notification = &d

	d, err = s.deps.Mailer.Send(ctx, autoReply)
	if err != nil {
		slog.ErrorContext(ctx, "contact auto-reply failed", "error", err)
		return fmt.Errorf("%w: auto-reply: %w", ErrUpstreamUnavailable, err)
	}
	result.AutoReply = &d
	return nil
}

func (s *ContactServiceImpl) archive(ctx context.Context, sub *model.ContactSubmission, result *ContactResult) error {
	sub.CreatedAt = s.now().UTC()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(sub); err != nil {
		return fmt.Errorf("encode contact submission: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	url, err := s.deps.Archive.Save(ctx, storage.ArchiveKey("contact", sub.CreatedAt), &buf, "application/json")
	if err != nil {
		slog.ErrorContext(ctx, "contact archive write failed", "error", err)
		return fmt.Errorf("%w: archive: %w", ErrUpstreamUnavailable, err)
	}
	result.ArchiveURL = url
	return nil
}

// List implements ContactService.
func (s *ContactServiceImpl) List(ctx context.Context, opts model.ListOptions) ([]*model.ContactSubmission, error) {
	if s.deps.Repo == nil {
		return nil, fmt.Errorf("%w: contact listing requires the persist policy", ErrMisconfigured)
	}
	return s.deps.Repo.List(ctx, opts.Normalize())
}

// Count implements ContactService.
func (s *ContactServiceImpl) Count(ctx context.Context) (int, error) {
	if s.deps.Repo == nil {
		return 0, fmt.Errorf("%w: contact listing requires the persist policy", ErrMisconfigured)
	}
	return s.deps.Repo.Count(ctx)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrMisconfigured):
		return OutcomeMisconfigured
	case errors.Is(err, ErrUpstreamUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
