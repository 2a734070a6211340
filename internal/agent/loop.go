package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cartlens/cartlens/internal/engine"
	"github.com/cartlens/cartlens/internal/llm"
	"github.com/cartlens/cartlens/internal/tools"
)

// budgetExhaustedAnswer is returned when the loop spends its whole turn
// budget without the model concluding.
const budgetExhaustedAnswer = "I could not complete this request within my reasoning budget. " +
	"Try narrowing the question or splitting it into smaller steps."

// abortedAnswer closes the turn when the model keeps producing
// responses the loop cannot act on, even after a corrective re-prompt.
const abortedAnswer = "I could not complete this request. " +
	"Please try rephrasing the question."

// Reply is what one processed user message produces: a final answer or
// a clarification question, plus accounting.
type Reply struct {
	Kind     ReplyKind `json:"kind"`
	Content  string    `json:"content"`
	Turns    int       `json:"turns"`
	Duration float64   `json:"duration_seconds"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ReplyKind distinguishes answers from clarification questions.
type ReplyKind string

const (
	// ReplyAnswer is a final answer; the session is idle again.
	ReplyAnswer ReplyKind = "answer"
	// ReplyClarification is a question; the next user message resolves it.
	ReplyClarification ReplyKind = "clarification"
)

// Loop drives the reason-act cycle for one user message: call the
// model, execute whatever tools it requests, feed results back, repeat
// until it answers, asks, or runs out of turns.
type Loop struct {
	engine     *engine.Engine
	registry   *tools.Registry
	logger     *slog.Logger
	turnBudget int
	llmTimeout time.Duration
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTurnBudget bounds model calls per user message (default 8).
func WithTurnBudget(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.turnBudget = n
		}
	}
}

// WithLLMTimeout bounds one model call (default 120s).
func WithLLMTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.llmTimeout = d
		}
	}
}

// NewLoop creates the reasoning loop.
func NewLoop(eng *engine.Engine, registry *tools.Registry, logger *slog.Logger, opts ...LoopOption) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		engine:     eng,
		registry:   registry,
		logger:     logger.With("component", "loop"),
		turnBudget: 8,
		llmTimeout: 120 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// run processes the session's pending input. The caller holds the
// session lock.
//
// Tool failures never abort the loop: they become failure results in
// the transcript for the model to work around. The loop ends only on
// a final answer, a clarification, an unrecoverable model error, or
// the turn budget.
func (l *Loop) run(ctx context.Context, s *Session) (*Reply, error) {
	started := time.Now()
	reply := &Reply{}
	corrected := false

	for turn := 1; turn <= l.turnBudget; turn++ {
		s.state = StateReasoning
		reply.Turns = turn

		out, err := l.step(ctx, s.history)
		if err != nil {
			var malformed *engine.MalformedResponseError
			if errors.As(err, &malformed) {
				if !corrected {
					// One corrective re-prompt, then give up.
					l.logger.Warn("malformed model response, re-prompting",
						"session", s.ID, "turn", turn, "error", malformed)
					s.append(llm.Message{Role: "user", Content: engine.CorrectivePrompt})
					corrected = true
					continue
				}
				// A second unusable response aborts the turn, but the
				// user still gets an answer rather than a transport
				// error.
				l.logger.Error("repeated malformed model response, aborting turn",
					"session", s.ID, "turn", turn, "error", malformed)
				s.state = StateAborted
				s.append(llm.Message{Role: "assistant", Content: abortedAnswer})
				reply.Kind = ReplyAnswer
				reply.Content = abortedAnswer
				reply.Duration = time.Since(started).Seconds()
				return reply, nil
			}
			return nil, err
		}

		reply.InputTokens += out.InputTokens
		reply.OutputTokens += out.OutputTokens
		s.append(out.Assistant)

		switch out.Kind {
		case engine.OutcomeAnswer:
			s.state = StateAwaitingInput
			reply.Kind = ReplyAnswer
			reply.Content = out.Answer
			reply.Duration = time.Since(started).Seconds()
			l.logger.Info("answered", "session", s.ID, "turns", turn,
				"input_tokens", reply.InputTokens, "output_tokens", reply.OutputTokens)
			return reply, nil

		case engine.OutcomeClarification:
			s.state = StateClarificationNeeded
			s.pendingAsk = out.Ask
			reply.Kind = ReplyClarification
			reply.Content = out.Question
			reply.Duration = time.Since(started).Seconds()
			l.logger.Info("clarification requested", "session", s.ID, "turns", turn)
			return reply, nil

		case engine.OutcomeToolCalls:
			s.state = StateExecutingTools
			for _, call := range out.Calls {
				result := l.registry.Execute(ctx, call.Name, call.Arguments)
				s.append(llm.Message{
					Role:       "tool",
					ToolCallID: call.ID,
					Content:    result.Content(),
				})
			}
		}
	}

	// Budget spent. Close the turn with an honest answer rather than an
	// error so the session stays usable.
	s.state = StateAwaitingInput
	s.append(llm.Message{Role: "assistant", Content: budgetExhaustedAnswer})
	reply.Kind = ReplyAnswer
	reply.Content = budgetExhaustedAnswer
	reply.Duration = time.Since(started).Seconds()
	l.logger.Warn("turn budget exhausted", "session", s.ID, "budget", l.turnBudget)
	return reply, nil
}

// step runs one engine step under the model-call timeout, retrying
// transport-level failures with bounded backoff. Malformed responses
// and context cancellation are not retried.
func (l *Loop) step(ctx context.Context, history []llm.Message) (*engine.Outcome, error) {
	var out *engine.Outcome

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		stepCtx, cancel := context.WithTimeout(ctx, l.llmTimeout)
		defer cancel()

		var stepErr error
		out, stepErr = l.engine.Step(stepCtx, history)
		if stepErr == nil {
			return nil
		}

		var malformed *engine.MalformedResponseError
		if errors.As(stepErr, &malformed) || ctx.Err() != nil {
			return backoff.Permanent(stepErr)
		}
		l.logger.Warn("model call failed, retrying", "error", stepErr)
		return stepErr
	}, bo)

	return out, err
}
