// Package ratelimit implements the fixed-window request limiter used by the
// public form endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultMax is the number of requests allowed per client per window.
	DefaultMax = 5
	// DefaultWindow is the length of a rate window.
	DefaultWindow = 15 * time.Minute

	unknownClient = "unknown"
)

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed bool
	// Count is the number of requests counted in the current window,
	// including this one when it was allowed.
	Count   int
	ResetAt time.Time
}

// RetryAfter returns how long the client should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Store keeps per-key window counters. Implementations must make Take
// atomic per key.
type Store interface {
	Take(ctx context.Context, key string, max int, window time.Duration) (Decision, error)
}

// Limiter applies one max/window policy to keys in a namespace.
type Limiter struct {
	store     Store
	max       int
	window    time.Duration
	namespace string
}

// New creates a Limiter. Non-positive max or window fall back to the defaults.
func New(store Store, max int, window time.Duration, namespace string) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("ratelimit: store is required")
	}
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, max: max, window: window, namespace: namespace}, nil
}

// Allow counts one request for clientKey and reports whether it may proceed.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	key := strings.TrimSpace(clientKey)
	if key == "" {
		key = unknownClient
	}
	if l.namespace != "" {
		key = l.namespace + ":" + key
	}
	return l.store.Take(ctx, key, l.max, l.window)
}

// Policy describes the limit in human terms, e.g. "5 requests per 15 minutes".
func (l *Limiter) Policy() string {
	return fmt.Sprintf("%d requests per %s", l.max, formatWindow(l.window))
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

func formatWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0 && d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0 && d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// ClientKey derives the rate-limit key for a request: the first
// X-Forwarded-For entry, else the host part of RemoteAddr, else "unknown".
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote != "" {
		return remote
	}
	return unknownClient
}
