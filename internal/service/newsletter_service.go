package service

import (
	"context"

	"github.com/freshdigital/backend/internal/model"
)

// SubscribeResult reports whether the address was already on the list.
type SubscribeResult struct {
	AlreadySubscribed bool
	Subscription      *model.NewsletterSubscription
}

// NewsletterService handles newsletter signups. Subscribing is idempotent.
type NewsletterService interface {
	// Subscribe rate-checks clientKey, validates email and inserts it unless
	// it already exists. Errors: *RateLimitError, *validation.Error or a
	// store error.
	Subscribe(ctx context.Context, clientKey, email string) (*SubscribeResult, error)

	// Unsubscribe verifies a signed token and removes the matching address.
	// Removing an address that is not subscribed is not an error.
	Unsubscribe(ctx context.Context, token string) error

	// UnsubscribeToken returns the signed token for email.
	UnsubscribeToken(email string) (string, error)

	List(ctx context.Context, opts model.ListOptions) ([]*model.NewsletterSubscription, error)
	Count(ctx context.Context) (int, error)
}
