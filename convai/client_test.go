package convai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synclabs/voiceflow/workflow"
)

var testAudio = base64.StdEncoding.EncodeToString([]byte("audio payload"))

// mockConvaiServer runs the server side of the conversation protocol.
type mockConvaiServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	handler  func(t *testing.T, conn *websocket.Conn)
}

func newMockConvaiServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) *mockConvaiServer {
	t.Helper()
	mcs := &mockConvaiServer{
		upgrader: websocket.Upgrader{},
		handler:  handler,
	}
	mcs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("agent_id") == "" {
			t.Error("Expected agent_id query parameter")
		}
		conn, err := mcs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mcs.handler(t, conn)
	}))
	return mcs
}

func (mcs *mockConvaiServer) Close() {
	mcs.server.Close()
}

func (mcs *mockConvaiServer) URL() string {
	return "ws" + strings.TrimPrefix(mcs.server.URL, "http")
}

func sendServerMessage(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal server message: %v", err)
	}
	if err := conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		t.Errorf("Failed to write server message: %v", err)
	}
}

// readClientMessage reads and decodes one message from the client.
func readClientMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read client message: %v", err)
	}
	return msg
}

func TestProcessAudioFullExchange(t *testing.T) {
	server := newMockConvaiServer(t, func(t *testing.T, conn *websocket.Conn) {
		cfg := readClientMessage(t, conn)
		if cfg.Type != "configuration" {
			t.Errorf("Expected configuration message first, got %q", cfg.Type)
		}

		sendServerMessage(t, conn, "conversation_initiation_metadata", map[string]any{})

		audio := readClientMessage(t, conn)
		if audio.Type != "audio" {
			t.Errorf("Expected audio message, got %q", audio.Type)
		}
		var audioData struct {
			Audio    string `json:"audio"`
			Encoding string `json:"encoding"`
		}
		if err := json.Unmarshal(audio.Data, &audioData); err != nil {
			t.Fatalf("Failed to decode audio payload: %v", err)
		}
		if audioData.Audio != testAudio || audioData.Encoding != "BASE64" {
			t.Error("Audio payload was not forwarded intact")
		}

		sendServerMessage(t, conn, "transcription", map[string]any{
			"text": "send a welcome email to new signups", "is_partial": false,
		})
		sendServerMessage(t, conn, "agent_response", map[string]any{
			"message": "I'll set up a welcome email workflow for you.",
		})
		sendServerMessage(t, conn, "workflow", map[string]any{
			"name":        "Welcome Email",
			"description": "Sends a welcome email to new signups",
			"isComplete":  true,
			"nodes": []map[string]any{
				{"id": "trigger-1", "type": "trigger", "title": "New Signup"},
				{"id": "action-1", "type": "action", "title": "Send Email"},
			},
		})
	})
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL()))
	result, err := client.ProcessAudio(context.Background(), testAudio, Options{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Workflow == nil {
		t.Fatal("Expected a workflow result")
	}
	if result.Workflow.Name != "Welcome Email" {
		t.Errorf("Expected workflow name 'Welcome Email', got %q", result.Workflow.Name)
	}
	if len(result.Workflow.Steps) != 2 {
		t.Errorf("Expected 2 steps, got %d", len(result.Workflow.Steps))
	}

	if len(result.Conversation) != 2 {
		t.Fatalf("Expected 2 conversation turns, got %d", len(result.Conversation))
	}
	if result.Conversation[0].Role != workflow.RoleUser ||
		result.Conversation[0].Content != "send a welcome email to new signups" {
		t.Errorf("Expected transcribed user turn, got %+v", result.Conversation[0])
	}
	if result.Conversation[1].Role != workflow.RoleAssistant {
		t.Errorf("Expected assistant turn, got %+v", result.Conversation[1])
	}
}

func TestProcessAudioPingPong(t *testing.T) {
	server := newMockConvaiServer(t, func(t *testing.T, conn *websocket.Conn) {
		readClientMessage(t, conn) // configuration
		sendServerMessage(t, conn, "ping", map[string]any{})

		pong := readClientMessage(t, conn)
		if pong.Type != "pong" {
			t.Errorf("Expected pong reply, got %q", pong.Type)
		}

		sendServerMessage(t, conn, "conversation_initiation_metadata", map[string]any{})
		readClientMessage(t, conn) // audio
		sendServerMessage(t, conn, "workflow", map[string]any{
			"name":  "Pinged Workflow",
			"nodes": []map[string]any{{"id": "s1", "type": "action"}},
		})
	})
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL()))
	result, err := client.ProcessAudio(context.Background(), testAudio, Options{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Workflow == nil || result.Workflow.Name != "Pinged Workflow" {
		t.Error("Expected the workflow delivered after the ping exchange")
	}
}

func TestProcessAudioCloseBeforeInitIsFatal(t *testing.T) {
	server := newMockConvaiServer(t, func(t *testing.T, conn *websocket.Conn) {
		readClientMessage(t, conn) // configuration
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rejected")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	})
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL()))
	_, err := client.ProcessAudio(context.Background(), testAudio, Options{AgentID: "agent-1"})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !IsFatal(err) {
		t.Errorf("Expected close-before-init to be fatal, got: %v", err)
	}
}

func TestProcessAudioCloseAfterInitFallsBack(t *testing.T) {
	server := newMockConvaiServer(t, func(t *testing.T, conn *websocket.Conn) {
		readClientMessage(t, conn) // configuration
		sendServerMessage(t, conn, "conversation_initiation_metadata", map[string]any{})
		readClientMessage(t, conn) // audio
		sendServerMessage(t, conn, "agent_response", map[string]any{
			"message": "Tell me more about the workflow you need.",
		})
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	})
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL()))
	result, err := client.ProcessAudio(context.Background(), testAudio, Options{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("Expected a fallback result, got error: %v", err)
	}
	if result.Workflow != nil {
		t.Error("Expected nil workflow so the caller synthesizes from the transcript")
	}
	if len(result.Conversation) == 0 {
		t.Fatal("Expected conversation turns in the fallback result")
	}
}

func TestProcessAudioUpstreamErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		fatal bool
	}{
		{"invalid api key", "invalid_api_key", true},
		{"agent not found", "agent_not_found", true},
		{"unauthorized", "unauthorized", true},
		{"transient", "overloaded", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newMockConvaiServer(t, func(t *testing.T, conn *websocket.Conn) {
				readClientMessage(t, conn) // configuration
				sendServerMessage(t, conn, "error", map[string]any{
					"code": tt.code, "message": "upstream rejected the request",
				})
			})
			defer server.Close()

			client := NewClient("test-key", WithBaseURL(server.URL()))
			_, err := client.ProcessAudio(context.Background(), testAudio, Options{AgentID: "agent-1"})
			if err == nil {
				t.Fatal("Expected an error")
			}
			if IsFatal(err) != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v for code %q", IsFatal(err), tt.fatal, tt.code)
			}
		})
	}
}

func TestProcessAudioTimeout(t *testing.T) {
	server := newMockConvaiServer(t, func(t *testing.T, conn *websocket.Conn) {
		readClientMessage(t, conn) // configuration
		// Never respond; the client's deadline must fire.
		time.Sleep(2 * time.Second)
	})
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL()))
	start := time.Now()
	_, err := client.ProcessAudio(context.Background(), testAudio, Options{
		AgentID: "agent-1",
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if IsFatal(err) {
		t.Errorf("Timeouts must stay retryable, got fatal: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestProcessAudioRejectsBadInput(t *testing.T) {
	client := NewClient("test-key")

	for name, audio := range map[string]string{
		"empty audio":    "",
		"invalid base64": "not base64!!",
	} {
		_, err := client.ProcessAudio(context.Background(), audio, Options{AgentID: "a"})
		if err == nil {
			t.Fatalf("%s: expected an error", name)
		}
		if !IsFatal(err) {
			t.Errorf("%s: malformed input must not be retried, got %v", name, err)
		}
		var svcErr *ServiceError
		if !errors.As(err, &svcErr) || svcErr.Reason != ReasonInvalidInput {
			t.Errorf("%s: expected reason %q, got %v", name, ReasonInvalidInput, err)
		}
	}
}
