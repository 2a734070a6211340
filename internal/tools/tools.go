// Package tools defines the analysis tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/cartlens/cartlens/internal/artifact"
	"github.com/cartlens/cartlens/internal/dataset"
	"github.com/cartlens/cartlens/internal/llm"
)

// Handler executes one validated tool call and returns its payload.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool represents a callable tool: a declaration the model sees plus the
// handler that runs it.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Result is the structured outcome of one tool execution. Failures are
// results too: they are appended to the conversation so the model can
// correct itself.
type Result struct {
	Tool    string `json:"tool"`
	Status  string `json:"status"` // "success" or "failure"
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Content serializes the result for the tool_result message fed back to
// the model.
func (r Result) Content() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"failure","error":"unserializable tool result"}`
	}
	return string(b)
}

// Table is the tabular payload shape shared by query results and chart
// inputs.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Registry holds the closed, statically declared tool set. Dispatch is a
// lookup into this registry, never arbitrary invocation.
type Registry struct {
	tools     map[string]*Tool
	provider  *dataset.Provider
	artifacts *artifact.Store
	logger    *slog.Logger
}

// NewRegistry creates the registry with all built-in analysis tools.
// artifacts may be nil, in which case the chart tool is not registered.
func NewRegistry(provider *dataset.Provider, artifacts *artifact.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:     make(map[string]*Tool),
		provider:  provider,
		artifacts: artifacts,
		logger:    logger.With("component", "tools"),
	}
	r.registerQueryTools()
	r.registerDescribeTools()
	if artifacts != nil {
		r.registerChartTool()
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Declarations returns the declared tool set for the model, in stable
// name order.
func (r *Registry) Declarations() []llm.ToolDeclaration {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]llm.ToolDeclaration, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		decls = append(decls, llm.ToolDeclaration{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return decls
}

// Validate checks a tool call against its declaration without executing
// it. Returns *ErrToolUnavailable for an undeclared name and a
// description of the first schema violation otherwise.
func (r *Registry) Validate(name string, args map[string]any) error {
	t := r.tools[name]
	if t == nil {
		return &ErrToolUnavailable{ToolName: name}
	}
	return validateArgs(t.Parameters, args)
}

// Execute validates and runs a tool call, always returning a Result.
// Validation is total: a request either validates and executes or is
// rejected before the handler runs, never partially applied.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	if err := r.Validate(name, args); err != nil {
		r.logger.Warn("tool call rejected", "tool", name, "error", err)
		return Result{Tool: name, Status: "failure", Error: err.Error()}
	}

	payload, err := r.tools[name].Handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return Result{Tool: name, Status: "failure", Error: err.Error()}
	}

	r.logger.Debug("tool executed", "tool", name)
	return Result{Tool: name, Status: "success", Payload: payload}
}

// argument accessors shared by the tool handlers

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
