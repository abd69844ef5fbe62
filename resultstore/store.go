// Package resultstore persists the eventual outcome of audio requests that
// already returned a partial "still processing" response, so callers can poll
// for the finished workflow.
package resultstore

import (
	"context"
	"errors"
	"time"

	"github.com/synclabs/voiceflow/workflow"
)

// Status values for a stored result.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// Common errors returned by Store implementations.
var (
	ErrNotFound      = errors.New("result not found")
	ErrInvalidID     = errors.New("invalid result ID")
	ErrInvalidResult = errors.New("invalid result")
)

// Result is the stored outcome of one audio request.
type Result struct {
	RequestID string                      `json:"request_id"`
	Status    string                      `json:"status"`
	Workflow  *workflow.Spec              `json:"workflow,omitempty"`
	Messages  []workflow.ConversationTurn `json:"messages,omitempty"`
	Error     string                      `json:"error,omitempty"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Store persists request results for later polling. Implementations must be
// safe for concurrent use and expire entries after a bounded TTL.
type Store interface {
	// Load retrieves a result by request ID. Returns ErrNotFound when the
	// ID is unknown or the entry has expired.
	Load(ctx context.Context, requestID string) (*Result, error)

	// Save persists a result, refreshing its TTL.
	Save(ctx context.Context, result *Result) error

	// Delete removes a result by request ID.
	Delete(ctx context.Context, requestID string) error
}
