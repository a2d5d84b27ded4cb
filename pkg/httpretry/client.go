// Package httpretry provides an HTTP client with bounded retries and linear
// backoff for calls to external mail and storage APIs.
package httpretry

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *Client satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps an HTTPDoer with retry logic.
type Client struct {
	client      HTTPDoer
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(d time.Duration) <-chan time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseDelay sets the delay unit; attempt n waits n*base before retrying.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// New creates a Client. If client is nil, an http.Client with a 30s timeout
// is used. maxAttempts counts the initial request (default 3).
func New(client HTTPDoer, maxAttempts int, opts ...Option) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	c := &Client{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   time.Second,
		sleep:       time.After,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request, retrying on transport errors and 5xx responses.
// Client errors are returned immediately. The final response is returned
// as-is so the caller can inspect the status and body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := c.baseDelay * time.Duration(attempt-1)
			slog.Debug("httpretry: retrying",
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
				"host", req.URL.Host,
				"path", req.URL.Path,
				"delay", delay.String(),
			)

			select {
			case <-c.sleep(delay):
			case <-req.Context().Done():
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 500 || attempt == c.maxAttempts {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned status %d", resp.StatusCode)
	}

	return nil, lastErr
}
