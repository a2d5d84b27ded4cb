package service

import (
	"context"
	"log/slog"

	"github.com/freshdigital/backend/internal/ratelimit"
)

// Outcome labels shared by the contact and newsletter flows.
const (
	OutcomeAccepted          = "accepted"
	OutcomeSpam              = "spam"
	OutcomeInvalid           = "invalid"
	OutcomeRateLimited       = "rate_limited"
	OutcomeMisconfigured     = "misconfigured"
	OutcomeUnavailable       = "unavailable"
	OutcomeError             = "error"
	OutcomeAlreadySubscribed = "already_subscribed"
	OutcomeUnsubscribed      = "unsubscribed"
)

// Recorder receives one outcome per request. metrics.Metrics implements it.
type Recorder interface {
	ObserveContact(outcome string)
	ObserveNewsletter(outcome string)
	ObserveRateLimitError()
}

type nopRecorder struct{}

func (nopRecorder) ObserveContact(string)    {}
func (nopRecorder) ObserveNewsletter(string) {}
func (nopRecorder) ObserveRateLimitError()   {}

// RateLimiter is satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, clientKey string) (ratelimit.Decision, error)
}

// checkRate consults limiter for clientKey. A failing limiter store lets the
// request through so an outage of the counter backend does not take the
// forms down with it.
func checkRate(ctx context.Context, limiter RateLimiter, rec Recorder, flow, clientKey string) error {
	d, err := limiter.Allow(ctx, clientKey)
	if err != nil {
		rec.ObserveRateLimitError()
		slog.WarnContext(ctx, "rate limiter unavailable, allowing request", "flow", flow, "error", err)
		return nil
	}
	if !d.Allowed {
		slog.InfoContext(ctx, "rate limit exceeded", "flow", flow, "client", clientKey, "count", d.Count)
		return &RateLimitError{ResetAt: d.ResetAt}
	}
	return nil
}
