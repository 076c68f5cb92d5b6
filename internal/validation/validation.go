// Package validation checks and sanitizes user-supplied chat input.
package validation

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
)

// ErrUnknownSender is wrapped by the ValidationError returned when a name
// is not in the active roster.
var ErrUnknownSender = errors.New("unauthorized sender")

var (
	validate = newValidator()
	strict   = bluemonday.StrictPolicy()
)

// ValidationError lists every constraint an input violated.
type ValidationError struct {
	Violations []string
	cause      error
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

// NewValidationError builds a ValidationError from the given violations.
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// Registration is the body of a participant registration.
type Registration struct {
	Name string `json:"name" validate:"required"`
}

// Sanitize strips markup from every field.
func (r *Registration) Sanitize() {
	r.Name = Sanitize(r.Name)
}

// MessageBody is the body of a posted message.
type MessageBody struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
	Type string `json:"type" validate:"required,oneof=message private_message"`
}

// Sanitize strips markup from every field.
func (m *MessageBody) Sanitize() {
	m.To = Sanitize(m.To)
	m.Text = Sanitize(m.Text)
	m.Type = Sanitize(m.Type)
}

// ValidateRegistration requires a non-empty name.
func ValidateRegistration(r Registration) error {
	return check(r)
}

// ValidateMessageBody requires to, text and a user-postable type,
// reporting all violations at once.
func ValidateMessageBody(m MessageBody) error {
	return check(m)
}

// ValidateSender requires name to be one of the active names.
func ValidateSender(name string, active []string) error {
	if name == "" {
		return &ValidationError{Violations: []string{`"user" is required`}, cause: ErrUnknownSender}
	}
	if !lo.Contains(active, name) {
		return &ValidationError{
			Violations: []string{fmt.Sprintf("%q is not an active participant", name)},
			cause:      ErrUnknownSender,
		}
	}
	return nil
}

// maxSanitizePasses bounds how many layers of entity encoding are peeled.
const maxSanitizePasses = 8

// Sanitize removes tags and surrounding whitespace from free text. Entity
// encoded markup is decoded and stripped again until nothing changes, so
// the result never contains tags and Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
		if next == s {
			return s
		}
		s = next
	}
	// Still changing: drop anything that could decode into a tag.
	return strings.TrimSpace(strict.Sanitize(s))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	violations := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, describe(fe))
	}
	return NewValidationError(violations...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%q failed on %s", fe.Field(), fe.Tag())
	}
}
