// Package engine runs single reasoning steps: one model call, with the
// response classified into an answer, a batch of tool calls, or a
// clarification question.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cartlens/cartlens/internal/llm"
	"github.com/cartlens/cartlens/internal/tools"
)

// AskUserTool is the built-in meta-tool the model calls to ask the user
// a clarifying question instead of guessing. It is declared alongside
// the analysis tools but never executed: the engine intercepts it and
// surfaces the question as a clarification outcome.
const AskUserTool = "ask_user"

// OutcomeKind classifies what the model produced in one step.
type OutcomeKind string

const (
	// OutcomeAnswer is a final textual answer for the user.
	OutcomeAnswer OutcomeKind = "answer"
	// OutcomeToolCalls is a batch of validated tool calls to execute.
	OutcomeToolCalls OutcomeKind = "tool_calls"
	// OutcomeClarification is a question back to the user.
	OutcomeClarification OutcomeKind = "clarification"
)

// Outcome is the classified result of one reasoning step. Assistant is
// the raw assistant message, appended to the conversation before any
// tool results so the provider sees a coherent transcript.
type Outcome struct {
	Kind      OutcomeKind
	Assistant llm.Message

	Answer   string       // OutcomeAnswer
	Question string       // OutcomeClarification
	Ask      *llm.ToolCall // the intercepted ask_user call, for result correlation
	Calls    []llm.ToolCall

	InputTokens  int
	OutputTokens int
}

// MalformedResponseError reports a model response that cannot be acted
// on: no content and no tool calls, an undeclared tool name, or
// arguments that fail validation. The caller may re-prompt once with
// CorrectivePrompt before giving up.
type MalformedResponseError struct {
	Detail string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %s", e.Detail)
}

// CorrectivePrompt is sent as a user message after a malformed
// response, giving the model one chance to repair itself.
const CorrectivePrompt = "Your previous response could not be processed. " +
	"Respond with either a plain-text answer, a call to one of the declared tools " +
	"with valid arguments, or an ask_user call if you need more information."

// Engine drives individual reasoning steps against the model.
type Engine struct {
	client   llm.Client
	model    string
	registry *tools.Registry
	logger   *slog.Logger
}

// New creates an engine over the given client and tool registry.
func New(client llm.Client, model string, registry *tools.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:   client,
		model:    model,
		registry: registry,
		logger:   logger.With("component", "engine"),
	}
}

// Declarations returns the tool set presented to the model: the
// registry's tools plus the ask_user meta-tool.
func (e *Engine) Declarations() []llm.ToolDeclaration {
	decls := e.registry.Declarations()
	return append(decls, llm.ToolDeclaration{
		Name: AskUserTool,
		Description: "Ask the user a clarifying question when their request is ambiguous " +
			"or missing information you need. Do not guess; ask.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The question to ask the user",
				},
			},
			"required": []string{"question"},
		},
	})
}

// Step performs one model call over the conversation and classifies
// the response. Transport errors pass through unwrapped so the caller
// can decide on retry; unusable responses come back as
// *MalformedResponseError.
func (e *Engine) Step(ctx context.Context, history []llm.Message) (*Outcome, error) {
	resp, err := e.client.Chat(ctx, e.model, history, e.Declarations())
	if err != nil {
		return nil, err
	}

	e.logger.Debug("model step",
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.Message.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)

	out := &Outcome{
		Assistant:    resp.Message,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}

	if len(resp.Message.ToolCalls) > 0 {
		return e.classifyToolCalls(resp, out)
	}

	answer := strings.TrimSpace(resp.Message.Content)
	if answer == "" {
		return nil, &MalformedResponseError{Detail: "empty response with no tool calls"}
	}

	out.Kind = OutcomeAnswer
	out.Answer = answer
	return out, nil
}

func (e *Engine) classifyToolCalls(resp *llm.ChatResponse, out *Outcome) (*Outcome, error) {
	calls := resp.Message.ToolCalls

	askIdx := -1
	for i := range calls {
		if calls[i].Name == AskUserTool {
			askIdx = i
			break
		}
	}

	if askIdx >= 0 {
		// ask_user must come alone. A mixed batch would leave the other
		// tool_use blocks without results while the loop waits on the
		// user, producing a transcript the provider rejects.
		if len(calls) > 1 {
			return nil, &MalformedResponseError{
				Detail: "ask_user batched with other tool calls",
			}
		}

		question, _ := calls[askIdx].Arguments["question"].(string)
		if strings.TrimSpace(question) == "" {
			return nil, &MalformedResponseError{Detail: "ask_user call without a question"}
		}
		out.Kind = OutcomeClarification
		out.Question = question
		out.Ask = &calls[askIdx]
		return out, nil
	}

	for _, call := range calls {
		if err := e.registry.Validate(call.Name, call.Arguments); err != nil {
			return nil, &MalformedResponseError{
				Detail: fmt.Sprintf("tool call %q: %v", call.Name, err),
			}
		}
	}

	out.Kind = OutcomeToolCalls
	out.Calls = calls
	return out, nil
}
