// Package logger provides structured logging with automatic credential redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Upstream API call logging (synthesis requests, audio attempts, errors)
//   - Automatic API key and bearer token redaction
//   - Contextual logging with request tracing
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger
)

func init() {
	// Check LOG_LEVEL environment variable
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	DefaultLogger = slog.New(newHandler(os.Stderr, level))
}

// newHandler builds the handler stack: a text handler wrapped in a
// ContextHandler so request_id, agent_id, stage, backend and environment
// stored in context appear on every log line.
func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(newHandler(os.Stderr, level))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
// Debug messages are only output when the log level is set to LevelDebug or lower.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// SynthCall logs a workflow-generation backend call with structured fields.
// Additional attributes can be passed as key-value pairs after the required parameters.
func SynthCall(ctx context.Context, backend, model string, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"backend", backend,
		"model", model,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "workflow synthesis call", allAttrs...)
}

// SynthResponse logs a successful workflow-generation response.
func SynthResponse(ctx context.Context, backend string, steps int, latency time.Duration, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"backend", backend,
		"steps", steps,
		"latency", latency,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "workflow synthesis response", allAttrs...)
}

// SynthFallback logs that the deterministic fallback workflow was substituted.
func SynthFallback(ctx context.Context, backend string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"backend", backend,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	WarnContext(ctx, "workflow synthesis fell back to deterministic workflow", allAttrs...)
}

// AudioAttempt logs one attempt of the audio-processing retry loop.
// The agent ID rides on the context; see WithAgentID.
func AudioAttempt(ctx context.Context, attempt, maxAttempts int, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"attempt", attempt,
		"max_attempts", maxAttempts,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "processing audio attempt", allAttrs...)
}

// AudioError logs a failed audio-processing attempt.
func AudioError(ctx context.Context, attempt int, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"attempt", attempt,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	ErrorContext(ctx, "audio processing attempt failed", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	// Patterns match common API key formats from the providers this service talks to.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),     // OpenAI API keys
		regexp.MustCompile(`xi-[a-zA-Z0-9]{16,}`),     // ElevenLabs-style API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
// It replaces matched patterns with a redacted form that preserves the first few
// characters for debugging while hiding the sensitive portion.
//
// This function is safe for concurrent use as it only reads from the compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			// Show first 4 characters for debugging context
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}

// APIRequest logs HTTP API request details at debug level with automatic redaction.
// This function is a no-op when debug logging is disabled for performance.
func APIRequest(provider, method, url string, headers map[string]string, body interface{}) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"provider", provider,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redactedHeaders := make(map[string]string, len(headers))
		for key, value := range headers {
			redactedHeaders[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redactedHeaders)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("API request", attrs...)
}

// APIResponse logs HTTP API response details at debug level with automatic redaction.
func APIResponse(provider string, statusCode int, body string, err error) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 6)
	attrs = append(attrs,
		"provider", provider,
		"status_code", statusCode,
	)

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		Error("API response error", attrs...)
		return
	}

	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}

	Debug("API response", attrs...)
}
