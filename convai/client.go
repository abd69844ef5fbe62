package convai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synclabs/voiceflow/logger"
	"github.com/synclabs/voiceflow/workflow"
)

// WebSocket connection constants.
const (
	defaultBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	wsDialTimeout    = 10 * time.Second
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 64 * 1024 * 1024 // 64MB for audio
)

// closeCodeMessages maps WebSocket close codes to human-readable reasons,
// used when the upstream closes before delivering a complete response.
var closeCodeMessages = map[int]string{
	websocket.CloseNormalClosure:           "normal closure",
	websocket.CloseGoingAway:               "going away",
	websocket.CloseProtocolError:           "protocol error",
	websocket.CloseUnsupportedData:         "unsupported data",
	websocket.CloseNoStatusReceived:        "no status received",
	websocket.CloseAbnormalClosure:         "abnormal closure",
	websocket.CloseInvalidFramePayloadData: "invalid frame payload data",
	websocket.ClosePolicyViolation:         "policy violation",
	websocket.CloseMessageTooBig:           "message too big",
	websocket.CloseInternalServerErr:       "internal server error",
	websocket.CloseServiceRestart:          "service restart",
	websocket.CloseTryAgainLater:           "try again later",
}

// wsMessage is the envelope for every message on the conversation socket.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsWorkflowData is the payload of a "workflow" message.
type wsWorkflowData struct {
	Nodes      []workflow.Step `json:"nodes"`
	Parameters map[string]any  `json:"parameters"`
	Name       string          `json:"name"`
	Desc       string          `json:"description"`
	IsComplete bool            `json:"isComplete"`
}

// wsTranscriptionData is the payload of a "transcription" message.
type wsTranscriptionData struct {
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
}

// wsErrorData is the payload of an "error" message.
type wsErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client speaks the conversational-audio WebSocket protocol. It is stateless
// across calls; every ProcessAudio invocation opens its own connection, so a
// single Client is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom WebSocket endpoint (used in tests).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// NewClient creates a conversational-audio client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: wsDialTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "elevenlabs-convai"
}

// ProcessAudio runs one conversation exchange: connect, configure, send the
// audio payload, then consume protocol messages until the upstream delivers a
// workflow, the conversation ends, or the context expires.
func (c *Client) ProcessAudio(ctx context.Context, audioBase64 string, opts Options) (*Result, error) {
	if audioBase64 == "" {
		return nil, NewFatalError(ReasonInvalidInput, "audio data is empty", ErrEmptyAudio)
	}
	if _, err := base64.StdEncoding.DecodeString(audioBase64); err != nil {
		return nil, NewFatalError(ReasonInvalidInput, "audio data is not valid base64", ErrInvalidBase64)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx, opts.AgentID)
	if err != nil {
		return nil, err
	}

	sess := &session{conn: conn}
	defer sess.close()

	// The user turn is recorded immediately; a final transcription
	// replaces the placeholder content later.
	sess.appendTurn(workflow.RoleUser, "Audio message (audio data not stored)")

	if err := sess.send(wsMessage{
		Type: "configuration",
		Data: mustJSON(map[string]any{
			"api_key":      c.apiKey,
			"model_params": orEmpty(opts.ModelParams),
			"voice_params": orEmpty(opts.VoiceParams),
		}),
	}); err != nil {
		return nil, NewRetryableError("failed to send configuration", err)
	}

	return sess.run(ctx, audioBase64)
}

// dial opens the WebSocket connection and translates handshake failures into
// classified boundary errors.
func (c *Client) dial(ctx context.Context, agentID string) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s?agent_id=%s", c.baseURL, agentID)
	logger.DebugContext(ctx, "connecting to conversational-audio service", "url", url)

	conn, resp, err := c.dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, NewFatalError(ReasonInvalidAPIKey, "invalid API key", err)
			case http.StatusForbidden:
				return nil, NewFatalError(ReasonAuthorization, "authorization failed", err)
			case http.StatusNotFound:
				return nil, NewFatalError(ReasonInvalidAgent, fmt.Sprintf("invalid agent ID %q", agentID), err)
			}
			return nil, NewRetryableError(
				fmt.Sprintf("connection failed with status %d", resp.StatusCode), err)
		}
		return nil, NewRetryableError("connection failed", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(wsMaxMessageSize)
	return conn, nil
}

// session holds the connection-scoped state of one exchange.
type session struct {
	conn         *websocket.Conn
	conversation []workflow.ConversationTurn
	initialized  bool
	closed       bool
}

func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = s.conn.Close()
}

func (s *session) send(msg wsMessage) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// receive reads one message with context support. The read runs in its own
// goroutine so cancellation can interrupt a blocked read.
func (s *session) receive(ctx context.Context) ([]byte, error) {
	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		_, data, err := s.conn.ReadMessage()
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		return result.data, result.err
	}
}

// run consumes protocol messages until a terminal condition.
func (s *session) run(ctx context.Context, audioBase64 string) (*Result, error) {
	for {
		data, err := s.receive(ctx)
		if err != nil {
			return s.handleReadError(ctx, err)
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WarnContext(ctx, "ignoring malformed conversation message", "error", err)
			continue
		}
		logger.DebugContext(ctx, "received conversation message", "type", msg.Type)

		switch msg.Type {
		case "conversation_initiation_metadata":
			s.initialized = true
			if err := s.send(wsMessage{
				Type: "audio",
				Data: mustJSON(map[string]any{
					"audio":    audioBase64,
					"encoding": "BASE64",
				}),
			}); err != nil {
				return nil, NewRetryableError("failed to send audio data", err)
			}

		case "ping":
			if err := s.send(wsMessage{Type: "pong", Data: mustJSON(map[string]any{})}); err != nil {
				logger.WarnContext(ctx, "pong failed", "error", err)
			}

		case "transcription":
			s.handleTranscription(msg.Data)

		case "audio":
			// Audio responses are not stored by this service.

		case "agent_response":
			s.handleAgentResponse(msg.Data)

		case "workflow":
			return s.handleWorkflow(ctx, msg.Data)

		case "error":
			var errData wsErrorData
			_ = json.Unmarshal(msg.Data, &errData)
			return nil, s.classifyProtocolError(errData)
		}
	}
}

// handleReadError maps read failures to classified errors or, when the
// conversation already produced usable turns, a fallback result.
func (s *session) handleReadError(ctx context.Context, err error) (*Result, error) {
	if ctx.Err() != nil {
		return nil, NewRetryableError(
			fmt.Sprintf("audio processing timed out: %v", ctx.Err()), ctx.Err())
	}

	if !s.initialized {
		reason := "connection closed before initialization"
		if ce, ok := err.(*websocket.CloseError); ok {
			if text, known := closeCodeMessages[ce.Code]; known {
				reason = fmt.Sprintf("connection closed before initialization with code %d (%s)", ce.Code, text)
			}
		}
		return nil, NewFatalError(ReasonHandshake, reason+"; check your API key and agent ID", err)
	}

	// Initialized but closed without a workflow message: resolve with what
	// the conversation gave us rather than failing the request.
	logger.WarnContext(ctx, "conversation closed before workflow response, using fallback", "error", err)
	return s.fallbackResult(), nil
}

// handleTranscription updates the user turn once the final transcription of
// the audio arrives.
func (s *session) handleTranscription(data json.RawMessage) {
	var t wsTranscriptionData
	if err := json.Unmarshal(data, &t); err != nil || t.Text == "" || t.IsPartial {
		return
	}
	for i := range s.conversation {
		if s.conversation[i].Role == workflow.RoleUser {
			s.conversation[i].Content = t.Text
			return
		}
	}
	s.appendTurn(workflow.RoleUser, t.Text)
}

// handleAgentResponse records the assistant turn.
func (s *session) handleAgentResponse(data json.RawMessage) {
	var payload struct {
		Message  string          `json:"message"`
		Text     string          `json:"text"`
		Response json.RawMessage `json:"response"`
	}
	content := ""
	if err := json.Unmarshal(data, &payload); err == nil {
		switch {
		case payload.Message != "":
			content = payload.Message
		case payload.Text != "":
			content = payload.Text
		case len(payload.Response) > 0:
			content = string(payload.Response)
		}
	}
	if content == "" {
		content = string(data)
	}

	s.appendTurn(workflow.RoleAssistant, content)
}

// handleWorkflow parses the terminal workflow message.
func (s *session) handleWorkflow(ctx context.Context, data json.RawMessage) (*Result, error) {
	if len(data) == 0 {
		return s.fallbackResult(), nil
	}

	var wf wsWorkflowData
	if err := json.Unmarshal(data, &wf); err != nil {
		logger.WarnContext(ctx, "malformed workflow payload, using fallback", "error", err)
		return s.fallbackResult(), nil
	}

	spec := &workflow.Spec{
		Name:        wf.Name,
		Description: wf.Desc,
		Steps:       wf.Nodes,
		Parameters:  orEmpty(wf.Parameters),
		IsComplete:  wf.IsComplete,
	}
	if spec.Name == "" {
		spec.Name = "Generated Workflow"
	}
	if spec.Description == "" {
		spec.Description = "A workflow generated from conversation"
	}

	return &Result{Workflow: spec, Conversation: s.conversation}, nil
}

// classifyProtocolError translates an upstream error message into a
// boundary error.
func (s *session) classifyProtocolError(errData wsErrorData) error {
	msg := errData.Message
	if msg == "" {
		msg = "unknown upstream error"
	}
	switch errData.Code {
	case "invalid_api_key":
		return NewFatalError(ReasonInvalidAPIKey, msg, nil)
	case "invalid_agent", "agent_not_found":
		return NewFatalError(ReasonInvalidAgent, msg, nil)
	case "authorization_failed", "unauthorized":
		return NewFatalError(ReasonAuthorization, msg, nil)
	}
	return NewRetryableError(fmt.Sprintf("upstream error: %s", msg), nil)
}

// fallbackResult resolves the exchange from conversation state alone. A nil
// Workflow signals the caller to synthesize one from the transcript.
func (s *session) fallbackResult() *Result {
	if !hasRole(s.conversation, workflow.RoleAssistant) {
		s.appendTurn(workflow.RoleAssistant,
			"I understand you want to create a workflow. Could you please describe what you want to accomplish in more detail?")
	}
	return &Result{Conversation: s.conversation}
}

func (s *session) appendTurn(role, content string) {
	s.conversation = append(s.conversation, workflow.ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
}

func hasRole(conversation []workflow.ConversationTurn, role string) bool {
	for _, turn := range conversation {
		if turn.Role == role {
			return true
		}
	}
	return false
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// mustJSON marshals a value known to be representable as JSON.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
