package model

import "time"

// NewsletterSubscription is a single newsletter signup. Email is unique.
type NewsletterSubscription struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
