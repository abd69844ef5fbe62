// Package workflow defines the typed automation graph produced by the
// synthesis pipeline.
//
// A workflow is a directed graph of typed steps. Each step carries outgoing
// edges to other step IDs, tagged with an edge kind such as "success" or
// "failure", plus an open parameter map of realistic example values.
package workflow

// Edge is one outgoing connection from a step to another step in the
// same workflow.
type Edge struct {
	TargetNodeID string `json:"target_node_id"`
	EdgeType     string `json:"edge_type"`
}

// Step is one node in a generated automation.
type Step struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Provider    string         `json:"provider,omitempty"`
	Action      string         `json:"action,omitempty"`
	Edges       []Edge         `json:"edges"`
	Parameters  map[string]any `json:"parameters"`
}

// Spec is the synthesis result. Created once per successful synthesis call
// and treated as immutable afterwards. Not persisted by this service.
type Spec struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Steps            []Step         `json:"steps"`
	Parameters       map[string]any `json:"parameters"`
	AssistantMessage string         `json:"assistantMessage,omitempty"`
	IsComplete       bool           `json:"isComplete"`
}

// Conversation turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in the request-scoped conversation
// transcript. Timestamp is milliseconds since the Unix epoch, matching the
// upstream wire format.
type ConversationTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
