// Package llm provides the completion service client used by the
// reasoning engine.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned ID (required by Anthropic for
	// tool_result correlation).
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the provider-neutral response to a completion request.
// Wire format conversion happens at the provider boundary (anthropic.go).
type ChatResponse struct {
	Model   string
	Message Message

	// StopReason is the provider's end-of-turn reason ("end_turn",
	// "tool_use", "max_tokens").
	StopReason string

	// Token usage.
	InputTokens  int
	OutputTokens int
}
