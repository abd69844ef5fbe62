// Package logger provides structured logging with automatic credential redaction.
package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyRequestID identifies the individual inbound request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyAgentID identifies the conversational-audio agent in use.
	ContextKeyAgentID contextKey = "agent_id"

	// ContextKeyStage identifies the pipeline stage (e.g., "route", "audio", "synthesis").
	ContextKeyStage contextKey = "stage"

	// ContextKeyBackend identifies the upstream backend (e.g., "elevenlabs", "openai").
	ContextKeyBackend contextKey = "backend"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeyRequestID,
	ContextKeyAgentID,
	ContextKeyStage,
	ContextKeyBackend,
	ContextKeyEnvironment,
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithAgentID returns a new context with the agent ID set.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, ContextKeyAgentID, agentID)
}

// WithStage returns a new context with the pipeline stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithBackend returns a new context with the upstream backend name set.
func WithBackend(ctx context.Context, backend string) context.Context {
	return context.WithValue(ctx, ContextKeyBackend, backend)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// RequestIDFromContext extracts the request ID from a context, if present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		id, _ := v.(string)
		return id
	}
	return ""
}
