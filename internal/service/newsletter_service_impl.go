package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/freshdigital/backend/internal/logging"
	"github.com/freshdigital/backend/internal/mailer"
	"github.com/freshdigital/backend/internal/model"
	"github.com/freshdigital/backend/internal/repository"
	"github.com/freshdigital/backend/internal/validation"
	"github.com/freshdigital/backend/pkg/auth"
)

// WelcomeRenderer is satisfied by *mailer.Renderer.
type WelcomeRenderer interface {
	NewsletterWelcome(email, unsubscribeURL string) (*mailer.Message, error)
}

// NewsletterConfig holds the tunables of the newsletter flow.
type NewsletterConfig struct {
	Tokens       *auth.TokenManager // issues and checks unsubscribe tokens
	SiteURL      string             // base for unsubscribe links, e.g. https://example.com
	StoreTimeout time.Duration      // default DefaultStoreTimeout
	MailTimeout  time.Duration      // default DefaultMailTimeout
}

// NewsletterDeps are the collaborators of the newsletter flow. Mailer and
// Renderer are optional; without them no welcome email is sent.
type NewsletterDeps struct {
	Limiter  RateLimiter
	Repo     repository.NewsletterRepository
	Mailer   Mailer
	Renderer WelcomeRenderer
	Recorder Recorder
}

// NewsletterServiceImpl is the production implementation of NewsletterService.
type NewsletterServiceImpl struct {
	cfg  NewsletterConfig
	deps NewsletterDeps
	// welcomes tracks in-flight welcome emails.
	welcomes sync.WaitGroup
}

// NewNewsletterService builds the service.
func NewNewsletterService(cfg NewsletterConfig, deps NewsletterDeps) (*NewsletterServiceImpl, error) {
	if deps.Limiter == nil {
		return nil, errors.New("newsletter service: rate limiter is required")
	}
	if deps.Repo == nil {
		return nil, errors.New("newsletter service: repository is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("newsletter service: token manager is required")
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = DefaultMailTimeout
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &NewsletterServiceImpl{cfg: cfg, deps: deps}, nil
}

var _ NewsletterService = (*NewsletterServiceImpl)(nil)

// Subscribe implements NewsletterService.
func (s *NewsletterServiceImpl) Subscribe(ctx context.Context, clientKey, raw string) (*SubscribeResult, error) {
	rec := s.deps.Recorder

	if err := checkRate(ctx, s.deps.Limiter, rec, "newsletter", clientKey); err != nil {
		rec.ObserveNewsletter(OutcomeRateLimited)
		return nil, err
	}

	email, err := validation.Email(raw)
	if err != nil {
		rec.ObserveNewsletter(OutcomeInvalid)
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	existing, err := s.deps.Repo.FindByEmail(storeCtx, email)
	switch {
	case err == nil:
		rec.ObserveNewsletter(OutcomeAlreadySubscribed)
		return &SubscribeResult{AlreadySubscribed: true, Subscription: existing}, nil
	case !errors.Is(err, repository.ErrNotFound):
		rec.ObserveNewsletter(OutcomeError)
		slog.ErrorContext(ctx, "newsletter lookup failed", "error", err)
		return nil, fmt.Errorf("check newsletter subscription: %w", err)
	}

	sub := &model.NewsletterSubscription{Email: email}
	err = s.deps.Repo.Create(storeCtx, sub)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// A concurrent request inserted the same address first.
		rec.ObserveNewsletter(OutcomeAlreadySubscribed)
		return &SubscribeResult{AlreadySubscribed: true, Subscription: sub}, nil
	case err != nil:
		rec.ObserveNewsletter(OutcomeError)
		slog.ErrorContext(ctx, "newsletter insert failed", "error", err)
		return nil, fmt.Errorf("create newsletter subscription: %w", err)
	}

	rec.ObserveNewsletter(OutcomeAccepted)
	slog.InfoContext(ctx, "newsletter subscription created", "id", sub.ID, "email", logging.RedactEmail(email))
	s.sendWelcome(ctx, email)
	return &SubscribeResult{Subscription: sub}, nil
}

// sendWelcome is best effort and does not block the response. The send keeps
// the request's values but not its cancellation, bounded by MailTimeout.
func (s *NewsletterServiceImpl) sendWelcome(ctx context.Context, email string) {
	if s.deps.Mailer == nil || s.deps.Renderer == nil {
		return
	}
	link, err := s.unsubscribeURL(email)
	if err != nil {
		slog.ErrorContext(ctx, "sign unsubscribe token", "error", err)
		return
	}
	msg, err := s.deps.Renderer.NewsletterWelcome(email, link)
	if err != nil {
		slog.ErrorContext(ctx, "render newsletter welcome", "error", err)
		return
	}

	s.welcomes.Add(1)
	go func() {
		defer s.welcomes.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MailTimeout)
		defer cancel()
		if _, err := s.deps.Mailer.Send(ctx, msg); err != nil {
			slog.WarnContext(ctx, "newsletter welcome not sent", "email", logging.RedactEmail(email), "error", err)
		}
	}()
}

// Wait blocks until every welcome email started so far has finished.
func (s *NewsletterServiceImpl) Wait() {
	s.welcomes.Wait()
}

func (s *NewsletterServiceImpl) unsubscribeURL(email string) (string, error) {
	token, err := s.UnsubscribeToken(email)
	if err != nil {
		return "", err
	}
	return s.cfg.SiteURL + "/newsletter/unsubscribe?token=" + url.QueryEscape(token), nil
}

// UnsubscribeToken implements NewsletterService.
func (s *NewsletterServiceImpl) UnsubscribeToken(email string) (string, error) {
	return s.cfg.Tokens.Generate(email)
}

// Unsubscribe implements NewsletterService.
func (s *NewsletterServiceImpl) Unsubscribe(ctx context.Context, token string) error {
	email, err := s.cfg.Tokens.Validate(token)
	if err != nil {
		s.deps.Recorder.ObserveNewsletter(OutcomeInvalid)
		slog.DebugContext(ctx, "unsubscribe token rejected", "error", err)
		return ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	err = s.deps.Repo.DeleteByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.deps.Recorder.ObserveNewsletter(OutcomeError)
		slog.ErrorContext(ctx, "newsletter delete failed", "error", err)
		return fmt.Errorf("delete newsletter subscription: %w", err)
	}

	s.deps.Recorder.ObserveNewsletter(OutcomeUnsubscribed)
	slog.InfoContext(ctx, "newsletter subscription removed", "email", logging.RedactEmail(email))
	return nil
}

// List implements NewsletterService.
func (s *NewsletterServiceImpl) List(ctx context.Context, opts model.ListOptions) ([]*model.NewsletterSubscription, error) {
	return s.deps.Repo.List(ctx, opts.Normalize())
}

// Count implements NewsletterService.
func (s *NewsletterServiceImpl) Count(ctx context.Context) (int, error) {
	return s.deps.Repo.Count(ctx)
}
