package llm

import (
	"testing"
)

func TestConvertToAnthropicExtractsSystem(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "you are an analyst"},
		{Role: "user", Content: "hello"},
	}

	converted, system := convertToAnthropic(msgs)

	if system != "you are an analyst" {
		t.Errorf("system = %q, want the system message content", system)
	}
	if len(converted) != 1 {
		t.Fatalf("got %d messages, want 1 (system extracted)", len(converted))
	}
	if converted[0].Role != "user" || converted[0].Content != "hello" {
		t.Errorf("unexpected message: %+v", converted[0])
	}
}

func TestConvertToAnthropicJoinsMultipleSystemMessages(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "first"},
		{Role: "system", Content: "second"},
	}

	_, system := convertToAnthropic(msgs)
	if system != "first\n\nsecond" {
		t.Errorf("system = %q", system)
	}
}

func TestConvertToAnthropicToolCalls(t *testing.T) {
	msgs := []Message{
		{
			Role:    "assistant",
			Content: "let me check",
			ToolCalls: []ToolCall{
				{ID: "toolu_123", Name: "query", Arguments: map[string]any{"dataset_id": "orders"}},
			},
		},
		{Role: "tool", ToolCallID: "toolu_123", Content: `{"status":"success"}`},
	}

	converted, _ := convertToAnthropic(msgs)
	if len(converted) != 2 {
		t.Fatalf("got %d messages, want 2", len(converted))
	}

	blocks, ok := converted[0].Content.([]anthropicContent)
	if !ok {
		t.Fatalf("assistant content is %T, want content blocks", converted[0].Content)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want text + tool_use", len(blocks))
	}
	if blocks[0].Type != "text" || blocks[0].Text != "let me check" {
		t.Errorf("first block = %+v", blocks[0])
	}
	if blocks[1].Type != "tool_use" || blocks[1].ID != "toolu_123" || blocks[1].Name != "query" {
		t.Errorf("second block = %+v", blocks[1])
	}

	// Tool results travel back on a user message.
	if converted[1].Role != "user" {
		t.Errorf("tool result role = %q, want user", converted[1].Role)
	}
	results, ok := converted[1].Content.([]anthropicContent)
	if !ok || len(results) != 1 {
		t.Fatalf("tool result content = %+v", converted[1].Content)
	}
	if results[0].Type != "tool_result" || results[0].ToolUseID != "toolu_123" {
		t.Errorf("tool_result block = %+v", results[0])
	}
}

func TestConvertToAnthropicSynthesizesMissingToolCallID(t *testing.T) {
	msgs := []Message{
		{
			Role:      "assistant",
			ToolCalls: []ToolCall{{Name: "chart", Arguments: map[string]any{}}},
		},
	}

	converted, _ := convertToAnthropic(msgs)
	blocks := converted[0].Content.([]anthropicContent)
	if blocks[0].ID == "" {
		t.Error("tool_use block must always carry an id")
	}
}

func TestConvertToolsToAnthropicNilSchema(t *testing.T) {
	out := convertToolsToAnthropic([]ToolDeclaration{{Name: "list_datasets"}})
	if len(out) != 1 {
		t.Fatalf("got %d tools", len(out))
	}
	if out[0].InputSchema == nil {
		t.Error("nil schema must be replaced with an empty object schema")
	}

	if convertToolsToAnthropic(nil) != nil {
		t.Error("no declarations should produce no tools field")
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	resp := &anthropicResponse{
		Role:  "assistant",
		Model: "claude-sonnet-4-20250514",
		Content: []anthropicContent{
			{Type: "text", Text: "checking "},
			{Type: "text", Text: "orders"},
			{Type: "tool_use", ID: "toolu_9", Name: "statistic", Input: map[string]any{"op": "sum"}},
		},
		StopReason: "tool_use",
		Usage:      anthropicUsage{InputTokens: 10, OutputTokens: 20},
	}

	out := convertFromAnthropic(resp)

	if out.Message.Content != "checking orders" {
		t.Errorf("content = %q", out.Message.Content)
	}
	if len(out.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls", len(out.Message.ToolCalls))
	}
	tc := out.Message.ToolCalls[0]
	if tc.ID != "toolu_9" || tc.Name != "statistic" || tc.Arguments["op"] != "sum" {
		t.Errorf("tool call = %+v", tc)
	}
	if out.StopReason != "tool_use" || out.InputTokens != 10 || out.OutputTokens != 20 {
		t.Errorf("metadata = %+v", out)
	}
}
