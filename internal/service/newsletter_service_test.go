package service

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freshdigital/backend/internal/mailer"
	"github.com/freshdigital/backend/internal/validation"
	"github.com/freshdigital/backend/pkg/auth"
)

var unsubscribeLink = regexp.MustCompile(`https://freshdigital\.example/newsletter/unsubscribe\?token=([A-Za-z0-9_.%-]+)`)

func newTokenManager(t *testing.T, secret string) *auth.TokenManager {
	t.Helper()
	m, err := auth.NewTokenManager([]byte(secret), "newsletter-unsubscribe", 0)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return m
}

func newNewsletter(t *testing.T, repo *memNewsletterRepository, deps NewsletterDeps) (*NewsletterServiceImpl, *recordingRecorder) {
	t.Helper()
	if deps.Limiter == nil {
		deps.Limiter, _ = newTestLimiter(t, "newsletter")
	}
	rec := &recordingRecorder{}
	deps.Repo = repo
	deps.Recorder = rec
	svc, err := NewNewsletterService(NewsletterConfig{
		Tokens:      newTokenManager(t, "newsletter-test-secret-0123456789abcdef"),
		SiteURL:     "https://freshdigital.example",
		MailTimeout: 5 * time.Second,
	}, deps)
	if err != nil {
		t.Fatalf("NewNewsletterService: %v", err)
	}
	t.Cleanup(svc.Wait)
	return svc, rec
}

func TestNewsletterService_Subscribe_New(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, rec := newNewsletter(t, repo, NewsletterDeps{})

	res, err := svc.Subscribe(context.Background(), "k", "  Jane@Example.com ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlreadySubscribed {
		t.Error("expected a new subscription")
	}
	if res.Subscription.Email != "jane@example.com" {
		t.Errorf("expected normalized email, got %q", res.Subscription.Email)
	}
	if rec.newsletter[0] != OutcomeAccepted {
		t.Errorf("expected accepted, got %v", rec.newsletter)
	}
}

func TestNewsletterService_Subscribe_Idempotent(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, _ := newNewsletter(t, repo, NewsletterDeps{})
	ctx := context.Background()

	first, err := svc.Subscribe(ctx, "k", "jane@example.com")
	if err != nil || first.AlreadySubscribed {
		t.Fatalf("first subscribe: %+v, %v", first, err)
	}
	second, err := svc.Subscribe(ctx, "k", "jane@example.com")
	if err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if !second.AlreadySubscribed {
		t.Error("expected AlreadySubscribed on the second call")
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("expected exactly 1 row, got %d", n)
	}
}

func TestNewsletterService_Subscribe_InsertRaceReportsAlreadySubscribed(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, _ := newNewsletter(t, repo, NewsletterDeps{})
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, "a", "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	repo.skipFind = true

	res, err := svc.Subscribe(ctx, "b", "jane@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.AlreadySubscribed {
		t.Error("a unique violation on insert means already subscribed")
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("expected exactly 1 row, got %d", n)
	}
}

func TestNewsletterService_Subscribe_Concurrent(t *testing.T) {
	repo := newMemNewsletterRepository()
	limiter, _ := newTestLimiter(t, "newsletter")
	svc, _ := newNewsletter(t, repo, NewsletterDeps{Limiter: limiter})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Subscribe(context.Background(), string(rune('a'+i)), "jane@example.com"); err != nil {
				t.Errorf("subscribe: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := repo.Count(context.Background()); n != 1 {
		t.Errorf("expected exactly 1 row, got %d", n)
	}
}

func TestNewsletterService_Subscribe_InvalidEmail(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, _ := newNewsletter(t, repo, NewsletterDeps{})

	for _, email := range []string{"", "   ", "not-an-email", "a@b"} {
		_, err := svc.Subscribe(context.Background(), "k", email)
		var verr *validation.Error
		if !errors.As(err, &verr) {
			t.Errorf("%q: expected *validation.Error, got %v", email, err)
		}
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("expected zero rows, got %d", n)
	}
}

func TestNewsletterService_Subscribe_RateLimited(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, rec := newNewsletter(t, repo, NewsletterDeps{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Subscribe(ctx, "192.0.2.1", "jane@example.com"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, err := svc.Subscribe(ctx, "192.0.2.1", "jane@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if last := rec.newsletter[len(rec.newsletter)-1]; last != OutcomeRateLimited {
		t.Errorf("expected rate_limited outcome, got %s", last)
	}
}

func TestNewsletterService_Subscribe_StoreError(t *testing.T) {
	repo := newMemNewsletterRepository()
	repo.findErr = errors.New("connection reset by peer")
	svc, _ := newNewsletter(t, repo, NewsletterDeps{})

	_, err := svc.Subscribe(context.Background(), "k", "jane@example.com")
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestNewsletterService_Subscribe_SendsWelcomeWithUnsubscribeLink(t *testing.T) {
	repo := newMemNewsletterRepository()
	tr := &fakeTransport{name: "smtp"}
	svc, _ := newNewsletter(t, repo, NewsletterDeps{Mailer: mailer.NewChain(tr), Renderer: newTestRenderer(t)})

	if _, err := svc.Subscribe(context.Background(), "k", "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	svc.Wait()
	if tr.count() != 1 {
		t.Fatalf("expected one welcome email, got %d", tr.count())
	}
	m := unsubscribeLink.FindStringSubmatch(tr.sent[0].HTML)
	if m == nil {
		t.Fatalf("welcome email missing unsubscribe link:\n%s", tr.sent[0].HTML)
	}
	token, err := url.QueryUnescape(m[1])
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Unsubscribe(context.Background(), token); err != nil {
		t.Errorf("link token must unsubscribe: %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), "k", "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	svc.Wait()

	// Already subscribed: no further welcome.
	if _, err := svc.Subscribe(context.Background(), "k", "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	svc.Wait()
	if tr.count() != 2 {
		t.Errorf("expected no welcome for an existing subscriber, got %d", tr.count())
	}
}

func TestNewsletterService_Subscribe_WelcomeFailureIsNotFatal(t *testing.T) {
	repo := newMemNewsletterRepository()
	tr := &fakeTransport{name: "smtp", err: errors.New("relay denied")}
	svc, _ := newNewsletter(t, repo, NewsletterDeps{Mailer: mailer.NewChain(tr), Renderer: newTestRenderer(t)})

	if _, err := svc.Subscribe(context.Background(), "k", "jane@example.com"); err != nil {
		t.Errorf("welcome failure must not fail the subscription, got %v", err)
	}
}

func TestNewsletterService_Subscribe_WelcomeHasDeadlineAndOutlivesRequest(t *testing.T) {
	repo := newMemNewsletterRepository()
	tr := &fakeTransport{name: "smtp"}
	svc, _ := newNewsletter(t, repo, NewsletterDeps{Mailer: mailer.NewChain(tr), Renderer: newTestRenderer(t)})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	if _, err := svc.Subscribe(ctx, "k", "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	cancel()
	svc.Wait()

	if tr.count() != 1 {
		t.Fatalf("a finished request must not cancel the welcome, got %d sends", tr.count())
	}
	deadline := tr.sendDeadlines()[0]
	if deadline.IsZero() {
		t.Fatal("welcome send must carry a deadline")
	}
	if deadline.After(start.Add(5*time.Second + time.Second)) {
		t.Errorf("deadline %v exceeds the mail timeout", deadline)
	}
}

func TestNewsletterService_Unsubscribe(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, _ := newNewsletter(t, repo, NewsletterDeps{})
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, "k", "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	token, err := svc.UnsubscribeToken("jane@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Unsubscribe(ctx, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Errorf("expected zero rows, got %d", n)
	}

	// Second unsubscribe is a no-op.
	if err := svc.Unsubscribe(ctx, token); err != nil {
		t.Errorf("expected idempotent unsubscribe, got %v", err)
	}
}

func TestNewsletterService_Unsubscribe_InvalidToken(t *testing.T) {
	repo := newMemNewsletterRepository()
	svc, _ := newNewsletter(t, repo, NewsletterDeps{})

	forged, err := newTokenManager(t, "another-secret-0123456789abcdefghij").Generate("jane@example.com")
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range []string{"", "garbage", forged} {
		if err := svc.Unsubscribe(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestNewNewsletterService_RequiresTokenManager(t *testing.T) {
	limiter, _ := newTestLimiter(t, "newsletter")
	_, err := NewNewsletterService(NewsletterConfig{}, NewsletterDeps{Limiter: limiter, Repo: newMemNewsletterRepository()})
	if err == nil {
		t.Error("expected error without a token manager")
	}
}
