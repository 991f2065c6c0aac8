package schemas

import "time"

// ToolCall records one tool invocation requested by the model during a turn.
// Immutable once recorded; the Result string is kept even when the tool
// itself failed (failures are string results, not errors).
type ToolCall struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result string         `json:"result"`
}

// ConversationTurn is one persisted query/response exchange, including any
// tool calls executed while producing the response.
type ConversationTurn struct {
	ConversationID string     `json:"conversation_id"`
	Timestamp      time.Time  `json:"timestamp"`
	Query          string     `json:"query"`
	Response       string     `json:"response"`
	RepoPath       string     `json:"repo_path,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
}

// ConversationSummary identifies a stored conversation by its first query.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}
