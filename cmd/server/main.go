package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshdigital/backend/internal/config"
	"github.com/freshdigital/backend/internal/handler"
	"github.com/freshdigital/backend/internal/logging"
	"github.com/freshdigital/backend/internal/mailer"
	"github.com/freshdigital/backend/internal/metrics"
	"github.com/freshdigital/backend/internal/ratelimit"
	"github.com/freshdigital/backend/internal/repository"
	"github.com/freshdigital/backend/internal/service"
	"github.com/freshdigital/backend/internal/storage"
	"github.com/freshdigital/backend/pkg/auth"
)

const janitorInterval = time.Minute

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.SetupWriter(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Rate limiter store (memory for a single instance, Redis when scaled out)
	var (
		store       ratelimit.Store
		sharedStore *ratelimit.RedisStore
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		rs, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisConfig{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		if err != nil {
			logging.Fatal("failed to connect to redis", "error", err)
		}
		defer rs.Close()
		store = rs
		sharedStore = rs
	default:
		ms := ratelimit.NewMemoryStore()
		ms.StartJanitor(ctx, janitorInterval)
		store = ms
	}

	contactLimiter, err := ratelimit.New(store, cfg.RateLimit.Max, cfg.RateLimit.Window, "contact")
	if err != nil {
		logging.Fatal("invalid rate limit", "error", err)
	}
	newsletterLimiter, err := ratelimit.New(store, cfg.RateLimit.Max, cfg.RateLimit.Window, "newsletter")
	if err != nil {
		logging.Fatal("invalid rate limit", "error", err)
	}

	// Mail transports in MAIL_TRANSPORTS order; unconfigured ones are skipped.
	var transports []mailer.Transport
	for _, name := range cfg.Mail.Transports {
		switch name {
		case "smtp":
			if t := mailer.NewSMTPTransport(mailer.SMTPConfig{
				Host:     cfg.Mail.SMTPHost,
				Port:     cfg.Mail.SMTPPort,
				Username: cfg.Mail.SMTPUsername,
				Password: cfg.Mail.SMTPPassword,
				From:     cfg.Mail.From,
				FromName: cfg.Mail.FromName,
				Timeout:  cfg.Mail.SMTPTimeout,
			}); t != nil {
				transports = append(transports, t)
			}
		case "sendgrid":
			if t := mailer.NewSendGridTransport(mailer.SendGridConfig{
				APIKey:   cfg.Mail.SendGridAPIKey,
				From:     cfg.Mail.SendGridFrom,
				FromName: cfg.Mail.FromName,
			}, nil); t != nil {
				transports = append(transports, t)
			}
		case "ses":
			t, err := mailer.NewSESTransport(ctx, mailer.SESConfig{
				Region:    cfg.AWS.Region,
				AccessKey: cfg.AWS.AccessKeyID,
				SecretKey: cfg.AWS.SecretAccessKey,
				From:      cfg.Mail.From,
				FromName:  cfg.Mail.FromName,
			})
			if err != nil {
				slog.Warn("ses transport disabled", "error", err)
				continue
			}
			transports = append(transports, t)
		default:
			slog.Warn("unknown mail transport ignored", "transport", name)
		}
	}
	chain := mailer.NewChain(transports...).WithObserver(m)
	slog.Info("mail transports", "order", chain.Names())

	renderer, err := mailer.NewRenderer(cfg.SiteName, cfg.Mail.ContactEmail)
	if err != nil {
		logging.Fatal("failed to parse email templates", "error", err)
	}

	// Database (newsletter and admin listing always need it). An unreachable
	// database is reported per request, not at startup.
	pool, err := repository.NewLazyPool(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout)
	if err != nil {
		logging.Fatal("invalid database configuration", "error", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		slog.Warn("database not reachable at startup", "error", err)
	}

	contactRepo := repository.NewPgContactRepository(pool)
	newsletterRepo := repository.NewPgNewsletterRepository(pool)

	var archive storage.Storage
	if cfg.ContactPolicy == service.PolicyArchive {
		if cfg.Archive.S3Bucket != "" {
			s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
				Bucket:    cfg.Archive.S3Bucket,
				Region:    cfg.AWS.Region,
				AccessKey: cfg.AWS.AccessKeyID,
				SecretKey: cfg.AWS.SecretAccessKey,
			})
			if err != nil {
				logging.Fatal("failed to configure archive bucket", "error", err)
			}
			archive = s3Store
		} else {
			archive = storage.NewLocalStorage(cfg.Archive.Dir)
		}
	}

	contactService, err := service.NewContactService(service.ContactConfig{
		Policy:       cfg.ContactPolicy,
		Schema:       cfg.Schema,
		ContactEmail: cfg.Mail.ContactEmail,
		StoreTimeout: cfg.StoreTimeout,
		MailTimeout:  cfg.Mail.Timeout,
	}, service.ContactDeps{
		Limiter:  contactLimiter,
		Repo:     contactRepo,
		Mailer:   chain,
		Renderer: renderer,
		Archive:  archive,
		Recorder: m,
	})
	if err != nil {
		logging.Fatal("failed to build contact service", "error", err)
	}

	tokens, err := auth.NewTokenManager([]byte(cfg.NewsletterSecret), "newsletter-unsubscribe", cfg.NewsletterTokenTTL)
	if err != nil {
		logging.Fatal("invalid newsletter token settings", "error", err)
	}
	newsletterService, err := service.NewNewsletterService(service.NewsletterConfig{
		Tokens:       tokens,
		SiteURL:      cfg.FrontendURL,
		StoreTimeout: cfg.StoreTimeout,
		MailTimeout:  cfg.Mail.Timeout,
	}, service.NewsletterDeps{
		Limiter:  newsletterLimiter,
		Repo:     newsletterRepo,
		Mailer:   chain,
		Renderer: renderer,
		Recorder: m,
	})
	if err != nil {
		logging.Fatal("failed to build newsletter service", "error", err)
	}

	h := handler.New(pool, cfg.FrontendURL)
	if sharedStore != nil {
		h.WithLimiterStore(sharedStore)
	}
	contactHandler := handler.NewContactHandler(contactService, handler.ContactConfig{
		RatePolicy: contactLimiter.Policy(),
		Debug:      cfg.IsDevelopment(),
	})
	newsletterHandler := handler.NewNewsletterHandler(newsletterService)
	adminHandler := handler.NewAdminHandler(contactService, newsletterService)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", m.Handler())

	mux.HandleFunc("GET /api/contact", contactHandler.Describe)
	mux.HandleFunc("POST /api/contact", contactHandler.Submit)
	mux.HandleFunc("POST /api/newsletter", newsletterHandler.Subscribe)
	mux.HandleFunc("POST /api/newsletter/unsubscribe", newsletterHandler.Unsubscribe)

	// Admin routes (bearer token; disabled when ADMIN_API_TOKEN is unset)
	requireAdmin := auth.RequireToken(cfg.AdminToken)
	mux.Handle("GET /api/admin/contacts", requireAdmin(http.HandlerFunc(adminHandler.Contacts)))
	mux.Handle("GET /api/admin/newsletter", requireAdmin(http.HandlerFunc(adminHandler.Newsletter)))

	root := handler.RequestLogger(
		handler.SecurityHeaders(
			h.CORS(
				handler.MaxBodyBytes(handler.DefaultMaxBodyBytes)(mux),
			),
		),
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// A submission waits on either the store or the mail budget.
		WriteTimeout: max(cfg.Mail.Timeout, cfg.StoreTimeout) + 10*time.Second,
	}

	go func() {
		slog.Info("server listening",
			"addr", server.Addr,
			"env", cfg.Env,
			"contact_policy", cfg.ContactPolicy,
			"rate_limit", contactLimiter.Policy(),
			"rate_limit_backend", cfg.RateLimit.Backend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	newsletterService.Wait()
}
