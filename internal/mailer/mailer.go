// Package mailer delivers transactional email through an ordered list of
// transports, falling back to the next one when a transport fails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/freshdigital/backend/internal/logging"
)

// ErrNoTransport is returned by a Chain with no configured transports.
var ErrNoTransport = errors.New("no email transport configured")

// Message is a single outgoing email.
type Message struct {
	To       string
	From     string
	FromName string
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
}

// PlainText returns Text, or the HTML with tags stripped when Text is empty.
func (m *Message) PlainText() string {
	if m.Text != "" {
		return m.Text
	}
	return StripTags(m.HTML)
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	blankPattern = regexp.MustCompile(`\n\s*\n+`)
)

// StripTags removes markup from an HTML body for the text alternative.
func StripTags(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = html.UnescapeString(out)
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out = strings.Join(lines, "\n")
	out = blankPattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Transport sends one message and returns the provider message id.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) (string, error)
}

// Delivery records which transport accepted a message.
type Delivery struct {
	Transport string `json:"transport"`
	MessageID string `json:"message_id,omitempty"`
}

// Failure is one transport's error inside a ChainError.
type Failure struct {
	Transport string
	Err       error
}

// ChainError is returned when every transport in a Chain failed.
type ChainError struct {
	Failures []Failure
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s failed: %v", f.Transport, f.Err))
	}
	return "all email transports failed: " + strings.Join(parts, ", ")
}

// Unwrap exposes the individual transport errors to errors.Is/As.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// DeliveryObserver is notified of each transport attempt.
type DeliveryObserver interface {
	ObserveDelivery(transport string, err error)
}

// Chain tries transports in priority order and stops at the first success.
type Chain struct {
	transports []Transport
	observer   DeliveryObserver
}

// NewChain creates a Chain. Nil transports are skipped.
func NewChain(transports ...Transport) *Chain {
	c := &Chain{}
	for _, t := range transports {
		if t != nil {
			c.transports = append(c.transports, t)
		}
	}
	return c
}

// WithObserver attaches an observer and returns the chain.
func (c *Chain) WithObserver(o DeliveryObserver) *Chain {
	c.observer = o
	return c
}

// Names returns the transport names in priority order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.transports))
	for _, t := range c.transports {
		names = append(names, t.Name())
	}
	return names
}

// Send delivers msg through the first transport that accepts it. When all
// transports fail it returns a *ChainError listing each failure.
func (c *Chain) Send(ctx context.Context, msg *Message) (Delivery, error) {
	if len(c.transports) == 0 {
		return Delivery{}, ErrNoTransport
	}

	chainErr := &ChainError{}
	for _, t := range c.transports {
		if err := ctx.Err(); err != nil {
			chainErr.Failures = append(chainErr.Failures, Failure{Transport: t.Name(), Err: err})
			break
		}

		id, err := t.Send(ctx, msg)
		if c.observer != nil {
			c.observer.ObserveDelivery(t.Name(), err)
		}
		if err == nil {
			slog.Info("email sent",
				"transport", t.Name(),
				"to", logging.RedactEmail(msg.To),
				"message_id", id,
			)
			return Delivery{Transport: t.Name(), MessageID: id}, nil
		}

		slog.Warn("email transport failed",
			"transport", t.Name(),
			"to", logging.RedactEmail(msg.To),
			"error", err,
		)
		chainErr.Failures = append(chainErr.Failures, Failure{Transport: t.Name(), Err: err})
	}
	return Delivery{}, chainErr
}
