package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshdigital/backend/internal/service"
)

func lookup(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{"APP_ENV": "development"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, service.PolicyPersist, cfg.ContactPolicy)
	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, []string{"smtp", "sendgrid"}, cfg.Mail.Transports)
	assert.Equal(t, 587, cfg.Mail.SMTPPort)
	assert.Equal(t, 60*time.Second, cfg.Mail.SMTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.StoreTimeout)
	assert.Equal(t, service.DefaultMailTimeout, cfg.Mail.Timeout)
	assert.Zero(t, cfg.NewsletterTokenTTL)
	assert.NotEmpty(t, cfg.NewsletterSecret, "development gets a placeholder secret")
	assert.False(t, cfg.Schema.PhoneRequired)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"PORT":                 "9000",
		"FRONTEND_URL":         "https://freshdigital.example/",
		"CONTACT_POLICY":       "notify",
		"RATE_LIMIT_MAX":       "10",
		"RATE_LIMIT_WINDOW":    "1h",
		"RATE_LIMIT_BACKEND":   "redis",
		"REDIS_ADDR":           "localhost:6379",
		"MAIL_TRANSPORTS":      " SES , smtp ,",
		"SMTP_USERNAME":        "studio@gmail.com",
		"NEWSLETTER_SECRET":    "prod-secret-0123456789abcdefghijkl",
		"MAIL_TIMEOUT":         "45s",
		"NEWSLETTER_TOKEN_TTL": "720h",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://freshdigital.example", cfg.FrontendURL)
	assert.Equal(t, service.PolicyNotify, cfg.ContactPolicy)
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, []string{"ses", "smtp"}, cfg.Mail.Transports)
	assert.Equal(t, "studio@gmail.com", cfg.Mail.ContactEmail, "operator address falls back to the SMTP account")
	assert.Equal(t, "studio@gmail.com", cfg.Mail.From)
	assert.Equal(t, "studio@gmail.com", cfg.Mail.SendGridFrom)
	assert.Equal(t, 45*time.Second, cfg.Mail.Timeout)
	assert.Equal(t, 720*time.Hour, cfg.NewsletterTokenTTL)
}

func TestFromLookup_InvalidValuesReportedTogether(t *testing.T) {
	_, err := FromLookup(lookup(map[string]string{
		"APP_ENV":            "development",
		"RATE_LIMIT_MAX":     "five",
		"STORE_TIMEOUT":      "soon",
		"CONTACT_POLICY":     "log",
		"RATE_LIMIT_BACKEND": "redis",
	}))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "RATE_LIMIT_MAX")
	assert.Contains(t, msg, "STORE_TIMEOUT")
	assert.Contains(t, msg, "unknown contact policy")
	assert.Contains(t, msg, "REDIS_ADDR")
}

func TestFromLookup_ProductionNeedsNewsletterSecret(t *testing.T) {
	_, err := FromLookup(lookup(map[string]string{}))
	assert.ErrorContains(t, err, "NEWSLETTER_SECRET")
}

func TestFromLookup_ShortNewsletterSecretRejected(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		_, err := FromLookup(lookup(map[string]string{
			"APP_ENV":           env,
			"NEWSLETTER_SECRET": "too-short",
		}))
		assert.ErrorContains(t, err, "NEWSLETTER_SECRET must be at least 32 bytes", env)
	}

	cfg, err := FromLookup(lookup(map[string]string{
		"NEWSLETTER_SECRET": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)
	assert.Len(t, cfg.NewsletterSecret, 32)
}

func TestFromLookup_InvalidMailAndTokenDurations(t *testing.T) {
	_, err := FromLookup(lookup(map[string]string{
		"APP_ENV":              "development",
		"MAIL_TIMEOUT":         "0s",
		"NEWSLETTER_TOKEN_TTL": "-1h",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIL_TIMEOUT")
	assert.Contains(t, err.Error(), "NEWSLETTER_TOKEN_TTL")
}

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema([]byte(`
phone_required: true
service_required: true
services: [web-development, seo-local-seo]
`))
	require.NoError(t, err)

	assert.True(t, schema.PhoneRequired)
	assert.True(t, schema.ServiceRequired)
	assert.Equal(t, []string{"web-development", "seo-local-seo"}, schema.Services)
	assert.Equal(t, 100, schema.NameMax, "unset keys keep defaults")
	assert.Equal(t, 10, schema.MessageMin)
	assert.Equal(t, 1000, schema.MessageMax)
}

func TestParseSchema_Invalid(t *testing.T) {
	_, err := ParseSchema([]byte("message_min: 50\nmessage_max: 20\n"))
	assert.ErrorContains(t, err, "message_min")

	_, err = ParseSchema([]byte("services: {not: a list}"))
	assert.Error(t, err)
}

func TestFromLookup_SchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phone_required: true\n"), 0o600))

	cfg, err := FromLookup(lookup(map[string]string{"APP_ENV": "development", "FORM_SCHEMA_FILE": path}))
	require.NoError(t, err)
	assert.True(t, cfg.Schema.PhoneRequired)

	_, err = FromLookup(lookup(map[string]string{"APP_ENV": "development", "FORM_SCHEMA_FILE": path + ".missing"}))
	assert.ErrorContains(t, err, "FORM_SCHEMA_FILE")
}
