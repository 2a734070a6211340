package llm

import "context"

// Client is the interface the reasoning engine depends on. The concrete
// implementation talks to an external completion service; tests swap in
// fakes.
type Client interface {
	// Chat sends a completion request and returns the response.
	// tools carries the declared tool set in the registry's declaration
	// format (name, description, input schema).
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDeclaration) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// ToolDeclaration describes one callable tool to the model.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}
