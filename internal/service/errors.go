package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited: the client exhausted its request budget for the current window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUpstreamUnavailable: the store or every email transport failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStoreUnreachable: the store could not be reached at all. Always
	// accompanied by ErrUpstreamUnavailable.
	ErrStoreUnreachable = errors.New("store unreachable")
	// ErrMisconfigured: the deployment is broken (missing table, missing privilege).
	ErrMisconfigured = errors.New("server misconfigured")
	// ErrInvalidToken: an unsubscribe token failed verification.
	ErrInvalidToken = errors.New("invalid unsubscribe token")
)

// RateLimitError carries the window reset time alongside ErrRateLimited.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (resets at %s)", ErrRateLimited, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the wait until the window resets, never negative.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	if d := e.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
