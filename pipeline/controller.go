// Package pipeline coordinates the audio synthesis path: it races the full
// retry-and-synthesize pipeline against a partial-response timer under a hard
// latency ceiling, guaranteeing exactly one response per request.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/synclabs/voiceflow/convai"
	"github.com/synclabs/voiceflow/logger"
	"github.com/synclabs/voiceflow/metrics"
	"github.com/synclabs/voiceflow/resultstore"
	"github.com/synclabs/voiceflow/workflow"
)

// Default race timings.
const (
	DefaultPartialAfter = 20 * time.Second
	DefaultHardDeadline = 90 * time.Second
)

// AudioProcessor runs the retried audio exchange.
type AudioProcessor interface {
	ProcessAudio(ctx context.Context, audioBase64 string, opts convai.Options) (*convai.Result, error)
}

// Synthesizer generates a workflow from a text command and conversation
// history. It must never fail.
type Synthesizer interface {
	Synthesize(ctx context.Context, request string, history []workflow.ConversationTurn) *workflow.Spec
}

// Outcome is the controller's answer for one request.
type Outcome struct {
	RequestID string
	Workflow  *workflow.Spec
	Messages  []workflow.ConversationTurn

	// Partial reports that the partial-response timer won the race; the
	// full pipeline keeps running in the background and deposits its
	// eventual result in the result store.
	Partial bool
}

// TimeoutError is returned when the hard deadline expires before either race
// branch produced a usable result. Workflow carries whatever partial state
// accumulated, possibly an empty placeholder.
type TimeoutError struct {
	Deadline time.Duration
	Workflow *workflow.Spec
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %d seconds", int(e.Deadline.Seconds()))
}

// PartialWorkflow is the placeholder returned with a hard-deadline timeout.
func PartialWorkflow() *workflow.Spec {
	return &workflow.Spec{
		Name:        "Partial Workflow",
		Description: "This workflow was partially generated before the request timed out.",
		Steps:       []workflow.Step{},
	}
}

// Controller bounds the total latency of the audio path. Safe for concurrent
// use; each request gets its own race.
type Controller struct {
	processor    AudioProcessor
	synthesizer  Synthesizer
	store        resultstore.Store
	partialAfter time.Duration
	hardDeadline time.Duration
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPartialAfter sets the delay before the partial-response sentinel wins.
func WithPartialAfter(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.partialAfter = d
		}
	}
}

// WithHardDeadline sets the hard latency ceiling for the whole request.
func WithHardDeadline(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.hardDeadline = d
		}
	}
}

// NewController creates a race controller. The store receives the eventual
// result of requests answered with a partial response.
func NewController(processor AudioProcessor, synthesizer Synthesizer, store resultstore.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		processor:    processor,
		synthesizer:  synthesizer,
		store:        store,
		partialAfter: DefaultPartialAfter,
		hardDeadline: DefaultHardDeadline,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pipelineResult struct {
	workflow *workflow.Spec
	messages []workflow.ConversationTurn
	err      error
}

// Process runs one audio request through the race. Exactly one of the return
// values is meaningful: a full outcome, a partial outcome, or an error
// (*TimeoutError on hard-deadline expiry).
func (c *Controller) Process(ctx context.Context, requestID, audioBase64 string, opts convai.Options) (*Outcome, error) {
	// The pipeline context is detached from the inbound request so a
	// partial response does not cancel the background work; the hard
	// deadline is the only bound.
	ctx = logger.WithRequestID(ctx, requestID)
	raceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.hardDeadline)

	c.deposit(raceCtx, &resultstore.Result{
		RequestID: requestID,
		Status:    resultstore.StatusProcessing,
	})

	resultCh := make(chan pipelineResult, 1)
	go func() {
		resultCh <- c.runPipeline(raceCtx, audioBase64, opts)
	}()

	partialTimer := time.NewTimer(c.partialAfter)
	defer partialTimer.Stop()

	select {
	case res := <-resultCh:
		cancel()
		if res.err != nil {
			metrics.RecordRaceOutcome(metrics.RaceError)
			c.deposit(context.WithoutCancel(ctx), &resultstore.Result{
				RequestID: requestID,
				Status:    resultstore.StatusFailed,
				Error:     res.err.Error(),
			})
			return nil, res.err
		}
		metrics.RecordRaceOutcome(metrics.RaceFull)
		c.deposit(context.WithoutCancel(ctx), &resultstore.Result{
			RequestID: requestID,
			Status:    resultstore.StatusComplete,
			Workflow:  res.workflow,
			Messages:  res.messages,
		})
		return &Outcome{
			RequestID: requestID,
			Workflow:  res.workflow,
			Messages:  res.messages,
		}, nil

	case <-partialTimer.C:
		// The caller gets the sentinel now; the pipeline finishes in the
		// background and deposits its result for polling.
		metrics.RecordRaceOutcome(metrics.RacePartial)
		logger.InfoContext(ctx, "returning partial response, processing continues",
			"partial_after", c.partialAfter)
		go c.awaitBackground(context.WithoutCancel(ctx), requestID, resultCh, cancel)
		return &Outcome{RequestID: requestID, Partial: true}, nil

	case <-raceCtx.Done():
		cancel()
		metrics.RecordRaceOutcome(metrics.RaceTimeout)
		timeoutErr := &TimeoutError{Deadline: c.hardDeadline, Workflow: PartialWorkflow()}
		c.deposit(context.WithoutCancel(ctx), &resultstore.Result{
			RequestID: requestID,
			Status:    resultstore.StatusFailed,
			Workflow:  timeoutErr.Workflow,
			Error:     timeoutErr.Error(),
		})
		return nil, timeoutErr
	}
}

// awaitBackground drains the pipeline after a partial response won the race.
// The pipeline goroutine always sends: its context expires at the hard
// deadline at the latest. ctx must outlive the inbound request; it carries
// the request ID for log correlation and is passed to the store.
func (c *Controller) awaitBackground(ctx context.Context, requestID string, resultCh <-chan pipelineResult, cancel context.CancelFunc) {
	defer cancel()

	res := <-resultCh
	if res.err != nil {
		logger.WarnContext(ctx, "background processing failed after partial response",
			"error", logger.RedactSensitiveData(res.err.Error()))
		c.deposit(ctx, &resultstore.Result{
			RequestID: requestID,
			Status:    resultstore.StatusFailed,
			Error:     res.err.Error(),
		})
		return
	}

	logger.InfoContext(ctx, "background processing completed after partial response")
	c.deposit(ctx, &resultstore.Result{
		RequestID: requestID,
		Status:    resultstore.StatusComplete,
		Workflow:  res.workflow,
		Messages:  res.messages,
	})
}

// runPipeline executes the retried audio exchange and, when the upstream did
// not deliver a structured workflow, synthesizes one from the transcript.
func (c *Controller) runPipeline(ctx context.Context, audioBase64 string, opts convai.Options) pipelineResult {
	result, err := c.processor.ProcessAudio(ctx, audioBase64, opts)
	if err != nil {
		return pipelineResult{err: err}
	}

	spec := result.Workflow
	if spec == nil {
		spec = c.synthesizer.Synthesize(ctx, transcriptRequest(result.Conversation), result.Conversation)
	}
	return pipelineResult{workflow: spec, messages: result.Conversation}
}

// transcriptRequest extracts the synthesis command from the conversation:
// the last user turn, or a generic prompt when no transcription arrived.
func transcriptRequest(conversation []workflow.ConversationTurn) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == workflow.RoleUser && conversation[i].Content != "" {
			return conversation[i].Content
		}
	}
	return "a workflow based on the user's voice request"
}

// deposit saves a result snapshot, tolerating a missing or failing store.
func (c *Controller) deposit(ctx context.Context, result *resultstore.Result) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, result); err != nil {
		logger.WarnContext(ctx, "failed to store request result",
			"request_id", result.RequestID,
			"error", err)
	}
}
