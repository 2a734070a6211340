// Package agent implements the conversational agent: sessions, the
// reasoning loop, and the tool execution cycle around it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartlens/cartlens/internal/llm"
)

// State is the lifecycle state of a session between messages.
type State string

const (
	// StateAwaitingInput means the session is idle, waiting for the user.
	StateAwaitingInput State = "awaiting_input"
	// StateReasoning means a model call is in flight.
	StateReasoning State = "reasoning"
	// StateExecutingTools means tool calls from the last step are running.
	StateExecutingTools State = "executing_tools"
	// StateClarificationNeeded means the agent asked the user a question
	// and is blocked on the reply.
	StateClarificationNeeded State = "clarification_needed"
	// StateAborted means the last message processing failed terminally.
	StateAborted State = "aborted"
)

// Session is one conversation. History is append-only; concurrent
// messages to the same session are serialized on the session mutex.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	history    []llm.Message
	pendingAsk *llm.ToolCall
	lastActive time.Time
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) append(m llm.Message) {
	s.history = append(s.history, m)
	s.lastActive = time.Now()
}

// Manager owns the live sessions and routes user messages through the
// reasoning loop.
type Manager struct {
	loop         *Loop
	systemPrompt string
	maxHistory   int
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. maxHistory bounds the messages
// kept per session; 0 means unbounded.
func NewManager(loop *Loop, systemPrompt string, maxHistory int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loop:         loop,
		systemPrompt: systemPrompt,
		maxHistory:   maxHistory,
		logger:       logger.With("component", "agent"),
		sessions:     make(map[string]*Session),
	}
}

// StartSession creates a new session seeded with the system prompt.
func (m *Manager) StartSession() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		state:     StateAwaitingInput,
	}
	s.history = append(s.history, llm.Message{Role: "system", Content: m.systemPrompt})
	s.lastActive = s.CreatedAt

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session started", "session", s.ID)
	return s
}

// Session returns the live session for id, or nil.
func (m *Manager) Session(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// EndSession removes a session. Its history is discarded.
func (m *Manager) EndSession(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.logger.Info("session ended", "session", id)
	}
	return ok
}

// PostMessage feeds one user message into a session and runs the
// reasoning loop until it produces an answer or a clarification
// question. A message arriving while the session awaits a
// clarification reply is treated as that reply.
func (m *Manager) PostMessage(ctx context.Context, id, text string) (*Reply, error) {
	s := m.Session(id)
	if s == nil {
		return nil, fmt.Errorf("unknown session %q", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ask := s.pendingAsk; ask != nil {
		// The reply resolves the intercepted ask_user call, fed back as
		// its tool result so the transcript stays coherent.
		s.append(llm.Message{Role: "tool", ToolCallID: ask.ID, Content: text})
		s.pendingAsk = nil
	} else {
		s.append(llm.Message{Role: "user", Content: text})
	}

	reply, err := m.loop.run(ctx, s)
	if err != nil {
		s.state = StateAborted
		return nil, err
	}

	m.trim(s)
	return reply, nil
}

// trim drops the oldest turns once history exceeds the bound, keeping
// the system prompt in place.
func (m *Manager) trim(s *Session) {
	if m.maxHistory <= 0 || len(s.history) <= m.maxHistory {
		return
	}
	// Advance past orphaned tool results so the window never starts
	// with a result whose call was dropped.
	start := 1 + len(s.history) - m.maxHistory
	for start < len(s.history) && s.history[start].Role == "tool" {
		start++
	}

	trimmed := make([]llm.Message, 0, m.maxHistory)
	trimmed = append(trimmed, s.history[0])
	trimmed = append(trimmed, s.history[start:]...)
	m.logger.Debug("history trimmed", "session", s.ID, "dropped", start-1)
	s.history = trimmed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
