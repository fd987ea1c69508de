// Package tool implements the capability layer of the engine: the Tool
// interface local and remote capabilities implement, provider-executed
// server tool descriptors, the per-run registry, and the batch executor
// that dispatches one backend turn's tool invocations.
package tool

import "context"

// Tool is one callable capability exposed to the backend.
//
// Implementations must convert foreseeable failure modes (missing file,
// malformed input) into a returned error rather than panicking; the
// executor still recovers panics as a safety net. Execute must be safe for
// concurrent use, since a single turn may dispatch several invocations of
// the same tool at once.
type Tool interface {
	// Name returns the unique identifier for this tool. Identity within a
	// registry is the name; a later registration replaces an earlier one.
	Name() string

	// Description returns the natural-language description shown to the
	// backend to guide tool selection.
	Description() string

	// InputSchema returns a JSON schema describing the accepted arguments.
	InputSchema() map[string]any

	// Execute runs the tool and returns its textual result.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Wire renders a tool as the {name, description, input_schema} descriptor
// sent to the backend.
func Wire(t Tool) map[string]any {
	return map[string]any{
		"name":         t.Name(),
		"description":  t.Description(),
		"input_schema": t.InputSchema(),
	}
}
