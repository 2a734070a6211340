// Package tools provides the tool registry and execution framework.
//
// This file defines sentinel error types for tool execution.
package tools

import "fmt"

// ErrToolUnavailable is returned when a tool call targets a tool that is
// not present in the registry. This indicates a capability mismatch, not
// a transient execution failure; callers should not retry.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// QueryError reports a caller mistake in a query or statistic request:
// an unknown column, a filter that does not parse, or an op applied to
// an incompatible column type. It is reported back into the
// conversation for the model to self-correct, never retried.
type QueryError struct {
	Clause string // the offending clause or column
	Detail string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Clause == "" {
		return fmt.Sprintf("query error: %s", e.Detail)
	}
	return fmt.Sprintf("query error in %q: %s", e.Clause, e.Detail)
}

// RenderError reports a chart request whose tabular input or fields
// cannot be rendered. Like QueryError, it is fed back for
// self-correction.
type RenderError struct {
	Detail string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("render error: %s", e.Detail)
}
