package repository

import (
	"context"
	"errors"

	"github.com/freshdigital/backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewsletterRepository defines the persistence interface for newsletter subscriptions.
type NewsletterRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.NewsletterSubscription, error)
	Create(ctx context.Context, sub *model.NewsletterSubscription) error
	DeleteByEmail(ctx context.Context, email string) error
	List(ctx context.Context, opts model.ListOptions) ([]*model.NewsletterSubscription, error)
	Count(ctx context.Context) (int, error)
}

// PgNewsletterRepository is the PostgreSQL implementation of NewsletterRepository.
type PgNewsletterRepository struct {
	pool *pgxpool.Pool
}

// NewPgNewsletterRepository creates a PgNewsletterRepository backed by the given pool.
func NewPgNewsletterRepository(pool *pgxpool.Pool) *PgNewsletterRepository {
	return &PgNewsletterRepository{pool: pool}
}

var _ NewsletterRepository = (*PgNewsletterRepository)(nil)

// FindByEmail returns ErrNotFound when no subscription exists.
func (r *PgNewsletterRepository) FindByEmail(ctx context.Context, email string) (*model.NewsletterSubscription, error) {
	var s model.NewsletterSubscription
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, created_at FROM newsletter_subscriptions WHERE email = $1`,
		email,
	).Scan(&s.ID, &s.Email, &s.CreatedAt)
	if err != nil {
		return nil, Classify(err)
	}
	return &s, nil
}

// Create inserts a subscription. A concurrent insert of the same email
// yields ErrDuplicate instead of a second row.
func (r *PgNewsletterRepository) Create(ctx context.Context, sub *model.NewsletterSubscription) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO newsletter_subscriptions (email)
		 VALUES ($1)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id, created_at`,
		sub.Email,
	).Scan(&sub.ID, &sub.CreatedAt)
	err = Classify(err)
	if errors.Is(err, ErrNotFound) {
		return ErrDuplicate
	}
	return err
}

// DeleteByEmail removes a subscription. Returns ErrNotFound when nothing was deleted.
func (r *PgNewsletterRepository) DeleteByEmail(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM newsletter_subscriptions WHERE email = $1`, email)
	if err != nil {
		return Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns subscriptions newest first.
func (r *PgNewsletterRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.NewsletterSubscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, created_at FROM newsletter_subscriptions
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var subs []*model.NewsletterSubscription
	for rows.Next() {
		var s model.NewsletterSubscription
		if err := rows.Scan(&s.ID, &s.Email, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}
	return subs, Classify(rows.Err())
}

// Count returns the number of subscriptions.
func (r *PgNewsletterRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM newsletter_subscriptions`).Scan(&n)
	return n, Classify(err)
}
