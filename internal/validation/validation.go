// Package validation checks form payloads before any side effect runs.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/freshdigital/backend/internal/model"
)

// ErrSpam is returned when the honeypot field is filled in. Callers must
// respond as if the submission succeeded.
var ErrSpam = errors.New("honeypot field filled")

var phonePattern = regexp.MustCompile(`^[0-9+\-\s()]+$`)

const emailRules = "required,max=254,email"

var validate = newValidator()

type schemaKey struct{}

// newValidator registers the schema-aware tags. The active Schema travels in
// the validation context so one validator serves every rule set.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "phone", func(s Schema, value string) bool {
		if value == "" {
			return !s.PhoneRequired
		}
		return phonePattern.MatchString(value)
	})
	mustRegister(v, "service", func(s Schema, value string) bool {
		if value == "" {
			return !s.ServiceRequired
		}
		return len(s.Services) == 0 || slices.Contains(s.Services, value)
	})
	mustRegister(v, "namelen", func(s Schema, value string) bool {
		return s.NameMax <= 0 || utf8.RuneCountInString(value) <= s.NameMax
	})
	mustRegister(v, "messagelen", func(s Schema, value string) bool {
		n := utf8.RuneCountInString(value)
		return n >= s.MessageMin && (s.MessageMax <= 0 || n <= s.MessageMax)
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, rule func(Schema, string) bool) {
	err := v.RegisterValidationCtx(tag, func(ctx context.Context, fl validator.FieldLevel) bool {
		s, _ := ctx.Value(schemaKey{}).(Schema)
		return rule(s, fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// FieldError describes one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the validation failure for a whole payload.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed.
func (e *Error) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *Error) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// Schema is the contact form rule set.
type Schema struct {
	PhoneRequired   bool     `yaml:"phone_required"`
	ServiceRequired bool     `yaml:"service_required"`
	Services        []string `yaml:"services"`
	NameMax         int      `yaml:"name_max"`
	MessageMin      int      `yaml:"message_min"`
	MessageMax      int      `yaml:"message_max"`
}

// DefaultServices are the service identifiers offered on the site.
var DefaultServices = []string{
	"ui-ux-design",
	"web-development",
	"app-development",
	"seo-local-seo",
	"ai-automation",
	"graphics-design",
}

// DefaultSchema: phone optional, service optional but checked against the
// catalogue, name 1-100 chars, message 10-1000 chars.
func DefaultSchema() Schema {
	return Schema{
		Services:   slices.Clone(DefaultServices),
		NameMax:    100,
		MessageMin: 10,
		MessageMax: 1000,
	}
}

// ContactInput is the raw contact payload as decoded from the request.
type ContactInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Service  string `json:"service"`
	Message  string `json:"message"`
	Honeypot string `json:"honeypot"`
}

// contactFields is the normalized payload the rules run against.
type contactFields struct {
	Name    string `json:"name" validate:"required,namelen"`
	Email   string `json:"email" validate:"required,max=254,email"`
	Phone   string `json:"phone" validate:"phone"`
	Service string `json:"service" validate:"service"`
	Message string `json:"message" validate:"required,messagelen"`
}

// Contact validates in and returns the normalized submission. It returns
// ErrSpam when the honeypot is set, or *Error listing every failing field.
func (s Schema) Contact(in ContactInput) (model.ContactSubmission, error) {
	if strings.TrimSpace(in.Honeypot) != "" {
		return model.ContactSubmission{}, ErrSpam
	}

	fields := contactFields{
		Name:    strings.TrimSpace(in.Name),
		Email:   normalizeEmail(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Service: strings.TrimSpace(in.Service),
		Message: strings.TrimSpace(in.Message),
	}

	ctx := context.WithValue(context.Background(), schemaKey{}, s)
	if err := validate.StructCtx(ctx, fields); err != nil {
		return model.ContactSubmission{}, s.translate(err)
	}
	return model.ContactSubmission{
		Name:    fields.Name,
		Email:   fields.Email,
		Phone:   fields.Phone,
		Service: fields.Service,
		Message: fields.Message,
	}, nil
}

// translate maps validator failures onto the messages shown to visitors.
func (s Schema) translate(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	verr := &Error{}
	for _, fe := range ves {
		verr.add(fe.Field(), s.message(fe))
	}
	return verr
}

func (s Schema) message(fe validator.FieldError) string {
	value, _ := fe.Value().(string)
	switch fe.Field() {
	case "name":
		if fe.Tag() == "required" {
			return "Name is required"
		}
		return "Name too long"
	case "email":
		return emailMessage(fe)
	case "phone":
		if value == "" {
			return "Phone number is required"
		}
		return "Phone number must contain only numbers and valid characters"
	case "service":
		if value == "" {
			return "Service selection is required"
		}
		return "Unknown service"
	case "message":
		switch {
		case fe.Tag() == "required":
			return "Message is required"
		case utf8.RuneCountInString(value) < s.MessageMin:
			return fmt.Sprintf("Message must be at least %d characters", s.MessageMin)
		default:
			return "Message too long"
		}
	}
	return "Invalid value"
}

func emailMessage(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return "Email is required"
	}
	return "Invalid email address"
}

// Email validates a single address, as used by the newsletter form.
func Email(raw string) (string, error) {
	email := normalizeEmail(raw)
	if err := validate.Var(email, emailRules); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return "", err
		}
		return "", &Error{Fields: []FieldError{{Field: "email", Message: emailMessage(ves[0])}}}
	}
	return email, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
