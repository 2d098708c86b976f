// Package apperrors holds the failure taxonomy shared by repositories,
// use cases and event consumers. Callers classify with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound means a referenced entity is absent. Surfaced, never retried.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the request is malformed or incomplete. Surfaced, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrTransient means storage or bus was temporarily unavailable.
	ErrTransient = errors.New("transient infrastructure failure")
	// ErrPermanent means consumer logic cannot succeed regardless of retries.
	ErrPermanent = errors.New("permanent processing failure")
)

type classified struct {
	kind error
	err  error
}

func (e *classified) Error() string   { return e.err.Error() }
func (e *classified) Unwrap() []error { return []error{e.kind, e.err} }

// Transient tags err as a retryable infrastructure failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrTransient, err: err}
}

// Permanent tags err as a failure that retrying will not fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrPermanent, err: err}
}

// NotFound builds an ErrNotFound-wrapping error for the given entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a ValidationError with a single field message.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Retryable reports whether redelivery could make err go away.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPermanent) &&
		!errors.Is(err, ErrValidation) &&
		!errors.Is(err, ErrNotFound)
}
