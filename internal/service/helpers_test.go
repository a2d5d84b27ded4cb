package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freshdigital/backend/internal/mailer"
	"github.com/freshdigital/backend/internal/model"
	"github.com/freshdigital/backend/internal/ratelimit"
	"github.com/freshdigital/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// Shared test doubles
// ---------------------------------------------------------------------------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, namespace string) (*ratelimit.Limiter, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	l, err := ratelimit.New(ratelimit.NewMemoryStore(ratelimit.WithClock(clock.Now)), 5, 15*time.Minute, namespace)
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	return l, clock
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

type recordingRecorder struct {
	mu         sync.Mutex
	contact    []string
	newsletter []string
	limitErrs  int
}

func (r *recordingRecorder) ObserveContact(o string) {
	r.mu.Lock()
	r.contact = append(r.contact, o)
	r.mu.Unlock()
}

func (r *recordingRecorder) ObserveNewsletter(o string) {
	r.mu.Lock()
	r.newsletter = append(r.newsletter, o)
	r.mu.Unlock()
}

func (r *recordingRecorder) ObserveRateLimitError() {
	r.mu.Lock()
	r.limitErrs++
	r.mu.Unlock()
}

type fakeTransport struct {
	name string
	err  error
	mu   sync.Mutex
	sent []*mailer.Message
	// deadlines holds the context deadline of every Send; zero when unset.
	deadlines []time.Time
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, _ := ctx.Deadline()
	f.deadlines = append(f.deadlines, deadline)
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return f.name + "-id", nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) sendDeadlines() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.deadlines...)
}

func newTestRenderer(t *testing.T) *mailer.Renderer {
	t.Helper()
	r, err := mailer.NewRenderer("Fresh Digital Creations", "ops@example.com")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

// ---------------------------------------------------------------------------
// mockContactRepository
// ---------------------------------------------------------------------------

type mockContactRepository struct {
	saveFunc  func(ctx context.Context, sub *model.ContactSubmission) error
	listFunc  func(ctx context.Context, opts model.ListOptions) ([]*model.ContactSubmission, error)
	countFunc func(ctx context.Context) (int, error)

	mu    sync.Mutex
	saved []*model.ContactSubmission
}

func (m *mockContactRepository) Save(ctx context.Context, sub *model.ContactSubmission) error {
	if m.saveFunc != nil {
		if err := m.saveFunc(ctx, sub); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = int64(len(m.saved) + 1)
	sub.CreatedAt = time.Now().UTC()
	m.saved = append(m.saved, sub)
	return nil
}

func (m *mockContactRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.ContactSubmission, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, opts)
	}
	return nil, nil
}

func (m *mockContactRepository) Count(ctx context.Context) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved), nil
}

func (m *mockContactRepository) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// ---------------------------------------------------------------------------
// memNewsletterRepository is an in-memory stub with a unique email constraint
// ---------------------------------------------------------------------------

type memNewsletterRepository struct {
	mu      sync.Mutex
	rows    map[string]*model.NewsletterSubscription
	nextID  int64
	findErr error
	// skipFind makes FindByEmail always miss, simulating a concurrent insert race.
	skipFind bool
}

func newMemNewsletterRepository() *memNewsletterRepository {
	return &memNewsletterRepository{rows: make(map[string]*model.NewsletterSubscription)}
}

func (m *memNewsletterRepository) FindByEmail(_ context.Context, email string) (*model.NewsletterSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if s, ok := m.rows[email]; ok && !m.skipFind {
		return s, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memNewsletterRepository) Create(_ context.Context, sub *model.NewsletterSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[sub.Email]; ok {
		return repository.ErrDuplicate
	}
	m.nextID++
	sub.ID = m.nextID
	sub.CreatedAt = time.Now().UTC()
	m.rows[sub.Email] = sub
	return nil
}

func (m *memNewsletterRepository) DeleteByEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[email]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, email)
	return nil
}

func (m *memNewsletterRepository) List(_ context.Context, _ model.ListOptions) ([]*model.NewsletterSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.NewsletterSubscription, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	return out, nil
}

func (m *memNewsletterRepository) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}
