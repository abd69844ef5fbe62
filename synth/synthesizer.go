// Package synth converts natural-language commands into structured workflow
// specifications using a chat-completions backend constrained to a fixed JSON
// schema. Generation failures of any kind degrade to a deterministic fallback
// workflow; the caller always receives a usable result.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/synclabs/voiceflow/logger"
	"github.com/synclabs/voiceflow/metrics"
	"github.com/synclabs/voiceflow/workflow"
)

const (
	// DefaultModel is the generation model used when none is configured.
	DefaultModel = "gpt-4o"

	defaultBaseURL = "https://api.openai.com/v1"
	backendName    = "openai"

	requestTimeout = 60 * time.Second
)

// systemPrompt fixes the generation domain and output contract.
const systemPrompt = `You are Sync, an AI specialized in creating detailed, professional workflow designs.
When a user describes a workflow they need, you'll create:
1. A clear workflow name (10 words or less)
2. A concise workflow description (20-30 words)
3. 3-6 detailed workflow steps, each with:
   - Descriptive title (5 words or less)
   - Brief description (15-20 words)
   - Appropriate type (e.g., trigger, action, condition)
   - Provider name (e.g., 'elevenlabs', 'openai', 'internal')
   - Action name (e.g., 'generate_text', 'process_audio', 'validate_input')
   - Relevant parameters with realistic values (3-6 parameters)
   - Logical connections to other steps

Focus on practical, implementable workflows for business processes, marketing campaigns, lead qualification, and data processing.
Your response should be JSON-formatted with the following structure:
{
  "workflowName": "Name of the workflow",
  "workflowDescription": "Brief description of what the workflow does",
  "parameters": {},
  "steps": [
    {
      "id": "step-id",
      "type": "step-type",
      "title": "Step Title",
      "description": "What this step does",
      "provider": "provider-name",
      "action": "action-name",
      "edges": [{"target_node_id": "next-step-id", "edge_type": "success"}],
      "parameters": {"key1": "value1", "key2": "value2"}
    }
  ],
  "assistantMessage": "A helpful, encouraging message to the user about the workflow you've created (100-150 words)"
}`

// chatMessage is one turn of a chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

// chatResponse is the subset of the chat-completions response we consume.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// generation is the schema-validated backend output.
type generation struct {
	WorkflowName        string          `json:"workflowName"`
	WorkflowDescription string          `json:"workflowDescription"`
	Parameters          map[string]any  `json:"parameters"`
	Steps               []workflow.Step `json:"steps"`
	AssistantMessage    string          `json:"assistantMessage"`
}

// Synthesizer generates workflow specifications from text commands.
// Safe for concurrent use.
type Synthesizer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	schema  *gojsonschema.Schema
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		if model != "" {
			s.model = model
		}
	}
}

// WithBaseURL overrides the backend endpoint (used in tests).
func WithBaseURL(url string) Option {
	return func(s *Synthesizer) { s.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Synthesizer) { s.client = client }
}

// NewSynthesizer creates a workflow synthesizer.
func NewSynthesizer(apiKey string, opts ...Option) *Synthesizer {
	schema, err := compileSchema()
	if err != nil {
		// The schema is a compile-time constant; failing to parse it is a
		// programming error.
		panic(err)
	}

	s := &Synthesizer{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
		schema:  schema,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize converts a free-text command into a workflow specification.
// It never fails: any backend, parse, or validation error is absorbed and
// replaced by the deterministic fallback workflow.
func (s *Synthesizer) Synthesize(ctx context.Context, request string, history []workflow.ConversationTurn) *workflow.Spec {
	ctx = logger.WithStage(logger.WithBackend(ctx, backendName), "synthesis")
	logger.SynthCall(ctx, backendName, s.model)

	start := time.Now()
	spec, err := s.generate(ctx, request, history)
	metrics.ObserveSynthesis(backendName, time.Since(start), err == nil)

	if err != nil {
		logger.SynthFallback(ctx, backendName, err)
		metrics.RecordFallback(backendName)
		return Fallback(request)
	}

	logger.SynthResponse(ctx, backendName, len(spec.Steps), time.Since(start))
	return spec
}

// generate performs one backend call and maps the output into a Spec.
func (s *Synthesizer) generate(ctx context.Context, request string, history []workflow.ConversationTurn) (*workflow.Spec, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: fmt.Sprintf("Create a workflow for: %s", request),
	})

	body := chatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.7,
	}
	body.ResponseFormat.Type = "json_object"

	content, err := s.complete(ctx, body)
	if err != nil {
		return nil, err
	}

	if err := validateGeneration(s.schema, content); err != nil {
		return nil, err
	}

	var gen generation
	if err := json.Unmarshal(content, &gen); err != nil {
		return nil, fmt.Errorf("failed to parse generated workflow: %w", err)
	}

	spec := &workflow.Spec{
		Name:             gen.WorkflowName,
		Description:      gen.WorkflowDescription,
		Steps:            gen.Steps,
		Parameters:       gen.Parameters,
		AssistantMessage: gen.AssistantMessage,
		IsComplete:       true,
	}
	if spec.Parameters == nil {
		spec.Parameters = map[string]any{}
	}

	repaired, dropped := workflow.Repair(spec)
	if dropped > 0 {
		logger.WarnContext(ctx, "dropped dangling workflow edges",
			"workflow", spec.Name,
			"dropped", dropped)
	}
	return repaired, nil
}

// complete posts the chat-completions request and returns the first choice's
// content.
func (s *Synthesizer) complete(ctx context.Context, request chatRequest) ([]byte, error) {
	reqBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	logger.APIRequest(backendName, http.MethodPost, url,
		map[string]string{"Authorization": "***"}, json.RawMessage(reqBytes))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	logger.APIResponse(backendName, resp.StatusCode, string(respBytes), nil)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBytes))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBytes, &chat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("backend error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("empty response from backend")
	}

	return []byte(chat.Choices[0].Message.Content), nil
}

// Fallback builds the deterministic last-resort workflow: a single step of
// type "workflow" carrying the raw request, with an apologetic assistant
// message. It is always schema-valid and never fails.
func Fallback(request string) *workflow.Spec {
	return &workflow.Spec{
		Name:        "Generated Workflow",
		Description: "Workflow generated from conversation",
		Steps: []workflow.Step{{
			ID:          "workflow-design",
			Type:        "workflow",
			Title:       "Workflow Design",
			Description: "Design a workflow based on the conversation",
			Edges:       []workflow.Edge{},
			Parameters:  map[string]any{"requirements": request},
		}},
		Parameters: map[string]any{},
		AssistantMessage: "I wasn't able to generate a detailed workflow this time, " +
			"but I've captured your requirements so you can refine the design. " +
			"Please try again or add more detail about what you want to accomplish.",
		IsComplete: true,
	}
}
