package convai

import (
	"errors"
	"fmt"
)

// Fatal failure reasons. A fatal error is a configuration or authentication
// problem that retrying cannot fix; the orchestrator must propagate it after
// a single attempt.
const (
	ReasonInvalidAPIKey = "invalid_api_key"
	ReasonInvalidAgent  = "invalid_agent"
	ReasonAuthorization = "authorization"
	ReasonHandshake     = "handshake"     // connection closed before initialization
	ReasonInvalidInput  = "invalid_input" // malformed audio payload, rejected before any upstream call
)

// Common errors for the conversational-audio service boundary.
var (
	// ErrEmptyAudio is returned when the audio payload is empty.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrInvalidBase64 is returned when the audio payload is not valid base64.
	ErrInvalidBase64 = errors.New("audio data is not valid base64")
)

// ServiceError represents a classified failure from the conversational-audio
// service. Classification happens here, at the boundary where the upstream
// error is translated, so callers never re-parse message strings.
type ServiceError struct {
	// Reason is a stable machine-readable code for fatal failures
	// (empty for retryable ones).
	Reason string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the request can be retried.
	Retryable bool
}

// NewFatalError creates a ServiceError that must never be retried.
func NewFatalError(reason, message string, cause error) *ServiceError {
	return &ServiceError{Reason: reason, Message: message, Cause: cause, Retryable: false}
}

// NewRetryableError creates a ServiceError eligible for bounded retry.
func NewRetryableError(message string, cause error) *ServiceError {
	return &ServiceError{Message: message, Cause: cause, Retryable: true}
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("audio service error [%s]: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("audio service error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err is a ServiceError that must not be retried.
// Unknown error types are treated as retryable, matching the taxonomy:
// everything that is not a recognized configuration failure is transient.
func IsFatal(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return !se.Retryable
	}
	return false
}

// ExhaustedError is returned when the retry loop runs out of attempts.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
