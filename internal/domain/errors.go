package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness violation in the remote store.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput indicates missing or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRemote indicates a transport failure or a non-2xx answer from the remote store.
	ErrRemote = errors.New("remote store error")
	// ErrDegraded marks a write that succeeded only after dropping a secondary representation.
	ErrDegraded = errors.New("degraded write")
)

// ValidationError reports caller input that failed validation before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is returned when discovery or resolution exhausted every strategy.
// Tried always lists what was attempted, in order.
type NotFoundError struct {
	Subject string
	Query   string
	Tried   []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	b.WriteString(e.Subject)
	if e.Query != "" {
		fmt.Fprintf(&b, " %q", e.Query)
	}
	b.WriteString(" not found")
	if len(e.Tried) > 0 {
		fmt.Fprintf(&b, " (tried: %s)", strings.Join(e.Tried, ", "))
	}
	return b.String()
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(subject, query string, tried ...string) *NotFoundError {
	return &NotFoundError{Subject: subject, Query: query, Tried: tried}
}

// RemoteError carries the raw status and server message of a failed remote call.
// Status is zero for transport failures and timeouts.
type RemoteError struct {
	Method   string
	Resource string
	Status   int
	Message  string
	ExcType  string
	Err      error
}

func (e *RemoteError) Error() string {
	target := strings.TrimSpace(e.Method + " " + e.Resource)
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("remote %s failed (status %d): %s", target, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("remote %s failed (status %d)", target, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("remote %s failed: %v", target, e.Err)
	default:
		return fmt.Sprintf("remote %s failed: %s", target, e.Message)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	if target == ErrRemote {
		return true
	}
	if target == ErrNotFound {
		return e.Status == 404
	}
	if target == ErrAlreadyExists {
		return e.Duplicate()
	}
	return false
}

// Duplicate reports whether the store rejected the write because of a uniqueness constraint.
func (e *RemoteError) Duplicate() bool {
	if e.Status == 409 {
		return true
	}
	switch e.ExcType {
	case "DuplicateEntryError", "UniqueValidationError":
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "must be unique") ||
		strings.Contains(msg, "duplicateentryerror") ||
		strings.Contains(msg, "duplicate entry")
}

// Client reports whether the store rejected the request itself (4xx) rather than failing.
func (e *RemoteError) Client() bool {
	return e.Status >= 400 && e.Status < 500
}

// ConflictError wraps a uniqueness violation on a business key. It is recovered by the
// upsert engine and never surfaced to callers.
type ConflictError struct {
	Resource string
	Field    string
	Value    string
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists: %v", e.Resource, e.Field, e.Value, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// DegradedWriteError records a secondary representation the store rejected and that was
// dropped so the primary write could go through.
type DegradedWriteError struct {
	Resource       string
	Representation string
	Err            error
}

func (e *DegradedWriteError) Error() string {
	return fmt.Sprintf("%s write degraded: dropped %s: %v", e.Resource, e.Representation, e.Err)
}

func (e *DegradedWriteError) Unwrap() error {
	return e.Err
}

func (e *DegradedWriteError) Is(target error) bool {
	return target == ErrDegraded
}

// ConfigError reports missing or invalid process configuration.
type ConfigError struct {
	Component string
	Message   string
}

func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// AsRemote extracts a RemoteError from an error chain.
func AsRemote(err error) (*RemoteError, bool) {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr, true
	}
	return nil, false
}
