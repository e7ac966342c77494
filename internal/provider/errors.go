package provider

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/odyssey-erp/security-console/internal/platform/httpx"
)

var (
	// ErrValidation marks input the backend rejected.
	ErrValidation = fmt.Errorf("provider: %w", httpx.ErrValidation)
	// ErrTransport marks unreachable or failing backends.
	ErrTransport = fmt.Errorf("provider: %w", httpx.ErrUpstream)
	// ErrNotFound marks missing entities.
	ErrNotFound = fmt.Errorf("provider: %w", httpx.ErrNotFound)
	// ErrUnauthorized marks rejected credentials or tokens.
	ErrUnauthorized = fmt.Errorf("provider: %w", httpx.ErrUnauthorized)
)

// APIError is a failure reported by the backend.
type APIError struct {
	Status      int               `json:"-"`
	Kind        string            `json:"error"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("backend %d %s: %s", e.Status, e.Kind, msg)
}

// Unwrap classifies the failure.
func (e *APIError) Unwrap() error {
	switch {
	case e.Kind == "ValidationException" || e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity || e.Status == http.StatusConflict:
		return ErrValidation
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrTransport
	}
}

// UserMessage exposes the backend message for failures the operator can act on.
func (e *APIError) UserMessage() string {
	switch e.Unwrap() {
	case ErrValidation, ErrNotFound, ErrUnauthorized:
		if e.Message != "" {
			return e.Message
		}
		return strings.Join(fieldMessages(e.FieldErrors), "; ")
	}
	return ""
}

// Fields returns per-field validation messages.
func (e *APIError) Fields() map[string]string {
	return e.FieldErrors
}

func fieldMessages(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for _, v := range fields {
		out = append(out, v)
	}
	return out
}
