package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a failure for dispatch decisions.
type ErrorKind string

const (
	// ErrKindRateLimited covers quota exhaustion and rate ceilings. Credential-level.
	ErrKindRateLimited ErrorKind = "rate_limited"
	// ErrKindAuthFailed covers invalid or revoked credentials. Credential-level.
	ErrKindAuthFailed ErrorKind = "auth_failed"
	// ErrKindTimeout covers per-call deadlines and network timeouts. Transient.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindOther covers server errors, transport faults and malformed responses. Transient.
	ErrKindOther ErrorKind = "other"
	// ErrKindMissingField marks a template/record mismatch. Never retried.
	ErrKindMissingField ErrorKind = "missing_field"
	// ErrKindAllExhausted marks total credential exhaustion. Fatal to the run.
	ErrKindAllExhausted ErrorKind = "all_keys_exhausted"
)

// ErrAllKeysExhausted is returned once every credential has been retired.
var ErrAllKeysExhausted = errors.New("all credentials exhausted")

// APIError is a classified model-call failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model call failed (%s, http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("model call failed (%s): %s", e.Kind, e.Message)
}

// NewAPIError builds a classified model-call error.
func NewAPIError(kind ErrorKind, statusCode int, message string) *APIError {
	return &APIError{Kind: kind, StatusCode: statusCode, Message: message}
}

// MissingFieldError reports template placeholders with no value in the record.
type MissingFieldError struct {
	RecordID string
	Category string
	Fields   []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record %q: template %q requires missing field(s): %s",
		e.RecordID, e.Category, strings.Join(e.Fields, ", "))
}

// KindOf maps any error to its dispatch classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		return ErrKindMissingField
	}
	if errors.Is(err, ErrAllKeysExhausted) {
		return ErrKindAllExhausted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	return ErrKindOther
}

// IsCredentialError reports whether the failure retires the credential that hit it.
func IsCredentialError(err error) bool {
	switch KindOf(err) {
	case ErrKindRateLimited, ErrKindAuthFailed:
		return true
	}
	return false
}

// IsTransient reports whether the failure is worth another attempt.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case ErrKindTimeout, ErrKindOther:
		return true
	}
	return false
}
