// Package convai is the boundary to the external conversational-audio
// service. It defines the service contract, a WebSocket client speaking the
// upstream conversation protocol, classified boundary errors, and the bounded
// retry orchestrator that wraps one logical audio-processing call.
package convai

import (
	"context"
	"time"

	"github.com/synclabs/voiceflow/workflow"
)

// Default knobs for one audio-processing call.
const (
	// DefaultCallTimeout bounds a single service invocation.
	DefaultCallTimeout = 60 * time.Second

	// DefaultMaxAttempts bounds the retry loop.
	DefaultMaxAttempts = 3
)

// Options configures one audio-processing call.
type Options struct {
	// AgentID selects the conversational persona. Falls back to the
	// orchestrator's configured default when empty.
	AgentID string

	// ModelParams are forwarded verbatim to the upstream service
	// (model name, temperature, max tokens).
	ModelParams map[string]any

	// VoiceParams are forwarded verbatim to the upstream service
	// (stability, similarity boost, style).
	VoiceParams map[string]any

	// Timeout overrides the per-call timeout. Zero means DefaultCallTimeout.
	Timeout time.Duration
}

// Result is the outcome of one audio-processing call: the conversation
// transcript accumulated during the exchange and, when the upstream produced
// one, the generated workflow. Workflow is nil when the service finished the
// conversation without emitting a workflow document; the caller then
// synthesizes one from the transcript.
type Result struct {
	Workflow     *workflow.Spec
	Conversation []workflow.ConversationTurn
}

// Service processes a base64-encoded audio command into a workflow-shaped
// result. Implementations may return *ServiceError to classify failures;
// any other error is treated as retryable.
type Service interface {
	// Name returns the provider identifier (for logging/metrics).
	Name() string

	// ProcessAudio runs one conversation exchange with the upstream
	// service. The context carries the per-call timeout; implementations
	// must observe cancellation at every network operation.
	ProcessAudio(ctx context.Context, audioBase64 string, opts Options) (*Result, error)
}
