package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/cartlens/cartlens/internal/dataset"
	"github.com/cartlens/cartlens/internal/engine"
	"github.com/cartlens/cartlens/internal/llm"
	"github.com/cartlens/cartlens/internal/tools"
)

// fakeClient returns scripted responses in order, then a plain answer.
type fakeClient struct {
	responses   []*llm.ChatResponse
	calls       int
	transcripts [][]llm.Message
}

func (c *fakeClient) Chat(ctx context.Context, model string, messages []llm.Message, decls []llm.ToolDeclaration) (*llm.ChatResponse, error) {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	c.transcripts = append(c.transcripts, snapshot)

	i := c.calls
	c.calls++
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return answer("fallback"), nil
}

func (c *fakeClient) Ping(ctx context.Context) error { return nil }

func answer(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:    llm.Message{Role: "assistant", Content: text},
		StopReason: "end_turn",
	}
}

func toolCall(id, name string, args map[string]any) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message: llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
		},
		StopReason: "tool_use",
	}
}

type csvSource struct {
	files map[string][]byte
}

func (s *csvSource) List(ctx context.Context) ([]dataset.FileInfo, error) {
	var out []dataset.FileInfo
	for name, data := range s.files {
		id := strings.TrimSuffix(name, ".csv")
		out = append(out, dataset.FileInfo{ID: id, Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func (s *csvSource) Fetch(ctx context.Context, id string) (string, []byte, error) {
	if data, ok := s.files[id+".csv"]; ok {
		return id + ".csv", data, nil
	}
	return "", nil, &dataset.NotFoundError{ID: id}
}

func newTestManager(t *testing.T, client llm.Client, opts ...LoopOption) *Manager {
	t.Helper()

	src := &csvSource{files: map[string][]byte{
		"orders.csv": []byte("order_id,amount\n1,10.0\n2,20.0\n"),
	}}
	registry := tools.NewRegistry(dataset.NewProvider(src, nil), nil, nil)
	eng := engine.New(client, "test-model", registry, nil)
	loop := NewLoop(eng, registry, nil, opts...)
	return NewManager(loop, DefaultSystemPrompt, 0, nil)
}

func TestAnswerAfterToolCycle(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{
		toolCall("toolu_1", "statistic", map[string]any{
			"dataset_id": "orders", "column": "amount", "op": "sum",
		}),
		answer("total revenue is 30"),
	}}
	m := newTestManager(t, client)
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "what is total revenue?")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if reply.Kind != ReplyAnswer || reply.Content != "total revenue is 30" {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Turns != 2 {
		t.Errorf("turns = %d, want 2", reply.Turns)
	}
	if s.State() != StateAwaitingInput {
		t.Errorf("state = %s", s.State())
	}

	// The second model call must see the tool result.
	second := client.transcripts[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "toolu_1" {
		t.Errorf("last message before second call = %+v", last)
	}
	if !strings.Contains(last.Content, "30") {
		t.Errorf("tool result content = %q", last.Content)
	}
}

func TestToolFailureFeedsBackAndLoopContinues(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{
		toolCall("toolu_1", "statistic", map[string]any{
			"dataset_id": "ghost", "column": "amount", "op": "sum",
		}),
		answer("that dataset does not exist"),
	}}
	m := newTestManager(t, client)
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "sum of ghost?")
	if err != nil {
		t.Fatalf("tool failure must not abort the loop: %v", err)
	}
	if reply.Kind != ReplyAnswer {
		t.Fatalf("reply = %+v", reply)
	}

	second := client.transcripts[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "failure") {
		t.Errorf("failure result must reach the model: %q", last.Content)
	}
}

func TestClarificationRoundTrip(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{
		toolCall("toolu_ask", engine.AskUserTool, map[string]any{
			"question": "which dataset do you mean?",
		}),
		answer("orders has 2 rows"),
	}}
	m := newTestManager(t, client)
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "how many rows?")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if reply.Kind != ReplyClarification {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Content != "which dataset do you mean?" {
		t.Errorf("question = %q", reply.Content)
	}
	if s.State() != StateClarificationNeeded {
		t.Errorf("state = %s", s.State())
	}

	// The reply resolves the pending question as its tool result.
	reply, err = m.PostMessage(context.Background(), s.ID, "orders")
	if err != nil {
		t.Fatalf("clarification reply: %v", err)
	}
	if reply.Kind != ReplyAnswer || reply.Content != "orders has 2 rows" {
		t.Fatalf("reply = %+v", reply)
	}

	second := client.transcripts[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "toolu_ask" || last.Content != "orders" {
		t.Errorf("clarification reply message = %+v", last)
	}
}

func TestMalformedResponseGetsOneCorrectiveReprompt(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{
		toolCall("toolu_1", "no_such_tool", nil),
		answer("recovered"),
	}}
	m := newTestManager(t, client)
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "hello")
	if err != nil {
		t.Fatalf("one malformed response must be recoverable: %v", err)
	}
	if reply.Content != "recovered" {
		t.Errorf("reply = %+v", reply)
	}

	second := client.transcripts[1]
	last := second[len(second)-1]
	if last.Role != "user" || last.Content != engine.CorrectivePrompt {
		t.Errorf("expected corrective prompt, got %+v", last)
	}
}

func TestSecondMalformedResponseAbortsWithFailureAnswer(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{
		toolCall("toolu_1", "no_such_tool", nil),
		toolCall("toolu_2", "still_wrong", nil),
	}}
	m := newTestManager(t, client)
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "hello")
	if err != nil {
		t.Fatalf("repeated malformed responses must surface as an answer, not an error: %v", err)
	}
	if reply.Kind != ReplyAnswer {
		t.Fatalf("reply = %+v", reply)
	}
	if !strings.Contains(reply.Content, "could not complete") {
		t.Errorf("content = %q, want a generic failure answer", reply.Content)
	}
	if s.State() != StateAborted {
		t.Errorf("state = %s, want aborted", s.State())
	}

	// The failure answer is part of the transcript.
	h := s.History()
	last := h[len(h)-1]
	if last.Role != "assistant" || !strings.Contains(last.Content, "could not complete") {
		t.Errorf("last message = %+v", last)
	}
}

func TestAskUserBatchedWithToolsGetsCorrectiveReprompt(t *testing.T) {
	// ask_user mixed into a tool batch would strand the other tool_use
	// blocks without results; the loop must re-prompt instead of
	// surfacing the question.
	mixed := &llm.ChatResponse{
		Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{ID: "toolu_q", Name: "statistic", Arguments: map[string]any{
					"dataset_id": "orders", "column": "amount", "op": "sum",
				}},
				{ID: "toolu_ask", Name: engine.AskUserTool, Arguments: map[string]any{
					"question": "which year?",
				}},
			},
		},
		StopReason: "tool_use",
	}
	client := &fakeClient{responses: []*llm.ChatResponse{
		mixed,
		answer("recovered"),
	}}
	m := newTestManager(t, client)
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "total for which year?")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if reply.Kind != ReplyAnswer || reply.Content != "recovered" {
		t.Fatalf("reply = %+v", reply)
	}

	// The mixed batch never enters the transcript; the second model
	// call sees only the corrective prompt.
	second := client.transcripts[1]
	last := second[len(second)-1]
	if last.Role != "user" || last.Content != engine.CorrectivePrompt {
		t.Errorf("expected corrective prompt, got %+v", last)
	}
	for _, msg := range second {
		if len(msg.ToolCalls) > 0 {
			t.Errorf("dangling tool_use in transcript: %+v", msg)
		}
	}
}

func TestTurnBudgetExhaustion(t *testing.T) {
	// Every turn requests another tool call; the loop must stop on its
	// own and close the turn with a visible answer.
	var responses []*llm.ChatResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, toolCall("toolu_1", "list_datasets", map[string]any{}))
	}
	client := &fakeClient{responses: responses}
	m := newTestManager(t, client, WithTurnBudget(3))
	s := m.StartSession()

	reply, err := m.PostMessage(context.Background(), s.ID, "loop forever")
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}
	if reply.Kind != ReplyAnswer {
		t.Fatalf("reply = %+v", reply)
	}
	if !strings.Contains(reply.Content, "could not complete") {
		t.Errorf("content = %q", reply.Content)
	}
	if client.calls != 3 {
		t.Errorf("model calls = %d, want 3", client.calls)
	}
	if s.State() != StateAwaitingInput {
		t.Errorf("state = %s, session must stay usable", s.State())
	}
}

func TestUnknownSession(t *testing.T) {
	m := newTestManager(t, &fakeClient{})

	if _, err := m.PostMessage(context.Background(), "nope", "hi"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestEndSession(t *testing.T) {
	m := newTestManager(t, &fakeClient{})
	s := m.StartSession()

	if !m.EndSession(s.ID) {
		t.Error("EndSession should report the session existed")
	}
	if m.EndSession(s.ID) {
		t.Error("second EndSession should report not found")
	}
	if m.Session(s.ID) != nil {
		t.Error("ended session must be gone")
	}
}

func TestHistoryTrimKeepsSystemPrompt(t *testing.T) {
	client := &fakeClient{}
	m := newTestManager(t, client)
	m.maxHistory = 4
	s := m.StartSession()

	for i := 0; i < 5; i++ {
		if _, err := m.PostMessage(context.Background(), s.ID, "ping"); err != nil {
			t.Fatalf("PostMessage: %v", err)
		}
	}

	h := s.History()
	if len(h) > 4 {
		t.Errorf("history length = %d, want <= 4", len(h))
	}
	if h[0].Role != "system" {
		t.Errorf("first message role = %s, system prompt must survive trimming", h[0].Role)
	}
}
