package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/freshdigital/backend/pkg/httpretry"
)

// SendGridConfig configures a SendGridTransport.
type SendGridConfig struct {
	APIKey   string
	From     string
	FromName string
	BaseURL  string // default https://api.sendgrid.com/v3
}

// SendGridTransport sends through the SendGrid v3 Mail Send API.
type SendGridTransport struct {
	cfg    SendGridConfig
	client httpretry.HTTPDoer
}

var _ Transport = (*SendGridTransport)(nil)

// NewSendGridTransport returns nil when no API key is configured. A nil
// client selects a retrying client with three attempts.
func NewSendGridTransport(cfg SendGridConfig, client httpretry.HTTPDoer) *SendGridTransport {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com/v3"
	}
	if client == nil {
		client = httpretry.New(nil, 3)
	}
	return &SendGridTransport{cfg: cfg, client: client}
}

// Name implements Transport.
func (t *SendGridTransport) Name() string { return "sendgrid" }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPayload struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress   `json:"from"`
	ReplyTo *sendGridAddress  `json:"reply_to,omitempty"`
	Subject string            `json:"subject"`
	Content []sendGridContent `json:"content"`
}

// Send implements Transport.
func (t *SendGridTransport) Send(ctx context.Context, msg *Message) (string, error) {
	from := msg.From
	if from == "" {
		from = t.cfg.From
	}
	if from == "" {
		return "", fmt.Errorf("sendgrid: sender address not configured")
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = t.cfg.FromName
	}

	payload := sendGridPayload{
		From:    sendGridAddress{Email: from, Name: fromName},
		Subject: msg.Subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.PlainText()},
			{Type: "text/html", Value: msg.HTML},
		},
	}
	payload.Personalizations = make([]struct {
		To []sendGridAddress `json:"to"`
	}, 1)
	payload.Personalizations[0].To = []sendGridAddress{{Email: msg.To}}
	if msg.ReplyTo != "" {
		payload.ReplyTo = &sendGridAddress{Email: msg.ReplyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sendgrid: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("sendgrid: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return messageID, nil
}
