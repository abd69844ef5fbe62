package convai

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{
			name:  "invalid API key",
			err:   NewFatalError(ReasonInvalidAPIKey, "invalid API key", nil),
			fatal: true,
		},
		{
			name:  "invalid agent",
			err:   NewFatalError(ReasonInvalidAgent, "invalid agent ID", nil),
			fatal: true,
		},
		{
			name:  "authorization",
			err:   NewFatalError(ReasonAuthorization, "authorization failed", nil),
			fatal: true,
		},
		{
			name:  "handshake",
			err:   NewFatalError(ReasonHandshake, "connection closed before initialization", nil),
			fatal: true,
		},
		{
			name:  "retryable service error",
			err:   NewRetryableError("connection reset", nil),
			fatal: false,
		},
		{
			name:  "plain error",
			err:   errors.New("something broke"),
			fatal: false,
		},
		{
			name:  "wrapped fatal error",
			err:   fmt.Errorf("attempt failed: %w", NewFatalError(ReasonInvalidAPIKey, "invalid API key", nil)),
			fatal: true,
		},
		{
			name:  "wrapped retryable error",
			err:   fmt.Errorf("attempt failed: %w", NewRetryableError("timeout", nil)),
			fatal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewRetryableError("wrapper", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the underlying cause")
	}
}

func TestServiceErrorMessage(t *testing.T) {
	err := NewFatalError(ReasonInvalidAgent, "invalid agent ID \"abc\"", nil)
	if !strings.Contains(err.Error(), "invalid agent ID") {
		t.Errorf("Unexpected error message: %s", err.Error())
	}
}

func TestExhaustedError(t *testing.T) {
	last := NewRetryableError("connection reset", nil)
	err := &ExhaustedError{Attempts: 3, Last: last}

	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("Expected attempt count in message, got: %s", err.Error())
	}
	if !errors.Is(err, last) {
		t.Error("Expected errors.Is to find the last underlying error")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatal("Expected errors.As to match ExhaustedError")
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", exhausted.Attempts)
	}
}
