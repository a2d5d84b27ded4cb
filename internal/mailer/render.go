package mailer

import (
	"embed"
	"fmt"
	"time"

	"github.com/osteele/liquid"

	"github.com/freshdigital/backend/internal/model"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// Renderer builds the operator notification and submitter auto-reply for a
// contact submission from Liquid templates.
type Renderer struct {
	siteName     string
	contactEmail string
	notification *liquid.Template
	autoReply    *liquid.Template
	welcome      *liquid.Template
	now          func() time.Time
}

// NewRenderer parses the embedded templates.
func NewRenderer(siteName, contactEmail string) (*Renderer, error) {
	engine := liquid.NewEngine()

	parse := func(name string) (*liquid.Template, error) {
		src, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, serr := engine.ParseTemplate(src)
		if serr != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, serr)
		}
		return tpl, nil
	}

	notification, err := parse("notification.html.liquid")
	if err != nil {
		return nil, err
	}
	autoReply, err := parse("autoreply.html.liquid")
	if err != nil {
		return nil, err
	}
	welcome, err := parse("welcome.html.liquid")
	if err != nil {
		return nil, err
	}

	return &Renderer{
		siteName:     siteName,
		contactEmail: contactEmail,
		notification: notification,
		autoReply:    autoReply,
		welcome:      welcome,
		now:          time.Now,
	}, nil
}

func (r *Renderer) bindings(sub model.ContactSubmission) liquid.Bindings {
	now := r.now()
	return liquid.Bindings{
		"site_name":     r.siteName,
		"contact_email": r.contactEmail,
		"name":          sub.Name,
		"email":         sub.Email,
		"phone":         sub.Phone,
		"service":       sub.Service,
		"message":       sub.Message,
		"submitted_at":  now.UTC().Format("2006-01-02 15:04 MST"),
		"year":          now.Year(),
	}
}

// Notification renders the email sent to the operator address.
func (r *Renderer) Notification(sub model.ContactSubmission, to string) (*Message, error) {
	body, serr := r.notification.RenderString(r.bindings(sub))
	if serr != nil {
		return nil, fmt.Errorf("render notification: %w", serr)
	}
	return &Message{
		To:      to,
		ReplyTo: sub.Email,
		Subject: fmt.Sprintf("New Contact from %s - %s", sub.Name, r.siteName),
		HTML:    body,
	}, nil
}

// AutoReply renders the confirmation sent to the submitter.
func (r *Renderer) AutoReply(sub model.ContactSubmission) (*Message, error) {
	body, serr := r.autoReply.RenderString(r.bindings(sub))
	if serr != nil {
		return nil, fmt.Errorf("render auto-reply: %w", serr)
	}
	return &Message{
		To:      sub.Email,
		ReplyTo: r.contactEmail,
		Subject: fmt.Sprintf("Thank you for contacting %s!", r.siteName),
		HTML:    body,
	}, nil
}

// NewsletterWelcome renders the confirmation sent to a new subscriber.
func (r *Renderer) NewsletterWelcome(email, unsubscribeURL string) (*Message, error) {
	body, serr := r.welcome.RenderString(liquid.Bindings{
		"site_name":       r.siteName,
		"email":           email,
		"unsubscribe_url": unsubscribeURL,
	})
	if serr != nil {
		return nil, fmt.Errorf("render welcome: %w", serr)
	}
	return &Message{
		To:      email,
		ReplyTo: r.contactEmail,
		Subject: fmt.Sprintf("Welcome to the %s newsletter", r.siteName),
		HTML:    body,
	}, nil
}
