package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/synclabs/voiceflow/convai"
	"github.com/synclabs/voiceflow/logger"
	"github.com/synclabs/voiceflow/metrics"
	"github.com/synclabs/voiceflow/pipeline"
	"github.com/synclabs/voiceflow/resultstore"
	"github.com/synclabs/voiceflow/workflow"
)

// partialMessage is the assistant text returned when the partial sentinel
// wins the race.
const partialMessage = "Still processing your request. Please wait for the complete response."

// synthesizeRequest is the inbound request body. Exactly one of Test,
// AudioData, or Message classifies the request; they are checked in that
// priority order.
type synthesizeRequest struct {
	Test        bool           `json:"test,omitempty"`
	AudioData   string         `json:"audioData,omitempty"`
	Message     string         `json:"message,omitempty"`
	AgentID     string         `json:"agentId,omitempty"`
	ModelParams map[string]any `json:"modelParams,omitempty"`
	VoiceParams map[string]any `json:"voiceParams,omitempty"`
}

// errorDetails carries extra failure context, exposed only in development.
type errorDetails struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// envelope is the response body for every endpoint.
type envelope struct {
	Success      bool                        `json:"success"`
	Workflow     *workflow.Spec              `json:"workflow,omitempty"`
	Messages     []workflow.ConversationTurn `json:"messages,omitempty"`
	Error        string                      `json:"error,omitempty"`
	ErrorDetails *errorDetails               `json:"errorDetails,omitempty"`
	Partial      bool                        `json:"partial,omitempty"`
	Message      string                      `json:"message,omitempty"`
	RequestID    string                      `json:"requestId,omitempty"`
	Status       string                      `json:"status,omitempty"`
}

// handleSynthesize classifies the request body and dispatches to the test,
// audio, or text path.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	ctx := logger.WithRequestID(r.Context(), requestID)
	if env := s.cfg.Environment; env != "" {
		ctx = logger.WithEnvironment(ctx, env)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "rejecting malformed request body", "error", err)
		writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Error:   "invalid JSON request body",
		})
		return
	}

	switch {
	case req.Test:
		s.handleTest(ctx, w, requestID)
	case req.AudioData != "":
		s.handleAudio(w, r.WithContext(ctx), requestID, &req)
	case req.Message != "":
		s.handleText(w, requestID, req.Message)
	default:
		writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Error:   "no audio data or message provided",
		})
	}
}

// handleTest returns a canned workflow with no upstream calls.
func (s *Server) handleTest(ctx context.Context, w http.ResponseWriter, requestID string) {
	logger.DebugContext(ctx, "test request, returning canned workflow")
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		RequestID: requestID,
		Workflow: &workflow.Spec{
			Name:        "Mock Workflow",
			Description: "This is a mock workflow for testing purposes.",
			Steps: []workflow.Step{
				{
					ID:          "trigger-1",
					Type:        "trigger",
					Title:       "Start Workflow",
					Description: "Beginning of the workflow",
					Parameters:  map[string]any{},
				},
				{
					ID:          "action-1",
					Type:        "action",
					Title:       "Test Action",
					Description: "This is a test action",
					Parameters:  map[string]any{"param1": "value1", "param2": "value2"},
				},
			},
			Parameters: map[string]any{},
			IsComplete: true,
		},
		Messages: []workflow.ConversationTurn{
			{Role: workflow.RoleUser, Content: "Test message"},
			{Role: workflow.RoleAssistant, Content: "This is a test response from the assistant."},
		},
	})
}

// handleAudio runs the race controller and maps its outcome onto the
// response envelope.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request, requestID string, req *synthesizeRequest) {
	ctx := logger.WithStage(r.Context(), "audio")

	// Malformed audio is an input error; reject it before any upstream
	// work is scheduled.
	if _, err := base64.StdEncoding.DecodeString(req.AudioData); err != nil {
		logger.WarnContext(ctx, "rejecting malformed audio payload", "error", err)
		writeJSON(w, http.StatusBadRequest, envelope{
			Success:   false,
			Error:     "audio data is not valid base64",
			RequestID: requestID,
		})
		return
	}

	metrics.RequestStarted()
	start := time.Now()

	opts := convai.Options{
		AgentID:     req.AgentID,
		ModelParams: req.ModelParams,
		VoiceParams: req.VoiceParams,
	}
	outcome, err := s.controller.Process(ctx, requestID, req.AudioData, opts)
	if err != nil {
		var timeout *pipeline.TimeoutError
		if errors.As(err, &timeout) {
			metrics.RequestFinished("audio", "timeout", time.Since(start))
			writeJSON(w, http.StatusRequestTimeout, envelope{
				Success:   false,
				Error:     timeout.Error(),
				Partial:   true,
				Workflow:  timeout.Workflow,
				RequestID: requestID,
			})
			return
		}

		metrics.RequestFinished("audio", "error", time.Since(start))
		logger.ErrorContext(ctx, "audio processing failed",
			"error", logger.RedactSensitiveData(err.Error()))
		writeJSON(w, http.StatusInternalServerError, envelope{
			Success:      false,
			Error:        err.Error(),
			ErrorDetails: s.detailsFor(err),
			RequestID:    requestID,
		})
		return
	}

	if outcome.Partial {
		metrics.RequestFinished("audio", "partial", time.Since(start))
		writeJSON(w, http.StatusOK, envelope{
			Success:   true,
			Partial:   true,
			Message:   partialMessage,
			Status:    resultstore.StatusProcessing,
			RequestID: requestID,
		})
		return
	}

	metrics.RequestFinished("audio", "success", time.Since(start))
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Workflow:  outcome.Workflow,
		Messages:  outcome.Messages,
		RequestID: requestID,
	})
}

// handleText answers plain-text commands with a two-turn acknowledgment.
// This path does not synthesize; callers are prompted for more detail.
func (s *Server) handleText(w http.ResponseWriter, requestID, message string) {
	now := time.Now().UnixMilli()
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		RequestID: requestID,
		Messages: []workflow.ConversationTurn{
			{Role: workflow.RoleUser, Content: message, Timestamp: now},
			{
				Role:      workflow.RoleAssistant,
				Content:   "I'll help you create a workflow. Can you provide more details about what you'd like to build?",
				Timestamp: now,
			},
		},
	})
}

// handleResult serves the deposited outcome of a request that was answered
// with a partial response.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	ctx := logger.WithRequestID(r.Context(), requestID)
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, envelope{
			Success: false,
			Error:   "result not found",
		})
		return
	}

	result, err := s.store.Load(ctx, requestID)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) || errors.Is(err, resultstore.ErrInvalidID) {
			writeJSON(w, http.StatusNotFound, envelope{
				Success: false,
				Error:   "result not found",
			})
			return
		}
		logger.ErrorContext(ctx, "result lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{
			Success: false,
			Error:   "failed to load result",
		})
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success:   result.Status == resultstore.StatusComplete,
		Workflow:  result.Workflow,
		Messages:  result.Messages,
		Error:     result.Error,
		Status:    result.Status,
		RequestID: requestID,
	})
}

// handlePreflight answers CORS preflight requests.
func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// detailsFor exposes error internals only in the development profile.
func (s *Server) detailsFor(err error) *errorDetails {
	if !s.cfg.Development() {
		return nil
	}
	details := &errorDetails{Name: "ProcessingError"}

	var svcErr *convai.ServiceError
	var exhausted *convai.ExhaustedError
	switch {
	case errors.As(err, &svcErr):
		details.Name = "ServiceError"
		details.Detail = svcErr.Reason
	case errors.As(err, &exhausted):
		details.Name = "ExhaustedError"
		if exhausted.Last != nil {
			details.Detail = exhausted.Last.Error()
		}
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}
