package convai

import (
	"context"
	"math"
	"time"

	"github.com/synclabs/voiceflow/logger"
	"github.com/synclabs/voiceflow/metrics"
)

// Orchestrator wraps a Service with bounded retries. Transient failures are
// retried with exponential backoff; fatal failures propagate immediately.
// The zero value is not usable; construct with NewOrchestrator.
type Orchestrator struct {
	service        Service
	maxAttempts    int
	defaultAgentID string
	callTimeout    time.Duration
	backoffBase    time.Duration
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxAttempts bounds the number of attempts per request.
func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithDefaultAgentID sets the agent used when a request names none.
func WithDefaultAgentID(id string) OrchestratorOption {
	return func(o *Orchestrator) {
		if id != "" {
			o.defaultAgentID = id
		}
	}
}

// WithCallTimeout bounds each individual service call.
func WithCallTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithBackoffBase scales the exponential backoff unit. Tests shrink it to
// keep retry runs fast.
func WithBackoffBase(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.backoffBase = d
		}
	}
}

// NewOrchestrator creates a retry orchestrator around the given service.
func NewOrchestrator(service Service, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		service:     service,
		maxAttempts: DefaultMaxAttempts,
		callTimeout: DefaultCallTimeout,
		backoffBase: time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessAudio runs the audio exchange with retries. Attempts are strictly
// sequential: attempt N+1 never starts before attempt N resolves. The delay
// before attempt N+1 is 2^N times the backoff base, so with the default base
// the schedule is 2s, 4s, 8s.
func (o *Orchestrator) ProcessAudio(ctx context.Context, audioBase64 string, opts Options) (*Result, error) {
	agentID := opts.AgentID
	if agentID == "" {
		agentID = o.defaultAgentID
	}
	opts.AgentID = agentID
	if opts.Timeout == 0 {
		opts.Timeout = o.callTimeout
	}
	ctx = logger.WithAgentID(ctx, agentID)

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		logger.AudioAttempt(ctx, attempt, o.maxAttempts)

		start := time.Now()
		result, err := o.service.ProcessAudio(ctx, audioBase64, opts)
		metrics.ObserveAudioAttempt(time.Since(start), err == nil)

		if err == nil {
			logger.InfoContext(ctx, "audio processing succeeded",
				"attempt", attempt)
			metrics.RecordAudioOutcome(metrics.OutcomeSuccess)
			return result, nil
		}

		lastErr = err
		logger.AudioError(ctx, attempt, err)

		if IsFatal(err) {
			logger.ErrorContext(ctx, "fatal audio error, aborting retries",
				"attempt", attempt,
				"error", logger.RedactSensitiveData(err.Error()))
			metrics.RecordAudioOutcome(metrics.OutcomeFatal)
			return nil, err
		}
		if ctx.Err() != nil {
			metrics.RecordAudioOutcome(metrics.OutcomeCancelled)
			return nil, &ExhaustedError{Attempts: attempt, Last: lastErr}
		}
		if attempt == o.maxAttempts {
			break
		}

		delay := o.backoffDelay(attempt)
		logger.DebugContext(ctx, "waiting before next attempt",
			"attempt", attempt,
			"delay", delay)
		select {
		case <-ctx.Done():
			metrics.RecordAudioOutcome(metrics.OutcomeCancelled)
			return nil, &ExhaustedError{Attempts: attempt, Last: lastErr}
		case <-time.After(delay):
		}
	}

	metrics.RecordAudioOutcome(metrics.OutcomeExhausted)
	return nil, &ExhaustedError{Attempts: o.maxAttempts, Last: lastErr}
}

func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * o.backoffBase
}
