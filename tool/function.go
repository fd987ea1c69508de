package tool

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/internal/util"
)

// FunctionTool adapts a plain Go function into a Tool. Arguments are
// validated against the declared schema before the function runs, so the
// wrapped function may assume required fields are present.
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// function.
//
// Example:
//
//	echo := tool.NewFunctionTool(
//	  "echo",
//	  "Echo the input back",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "text": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"text"},
//	  },
//	  func(_ context.Context, args map[string]any) (string, error) {
//	    return args["text"].(string), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	schema map[string]any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *FunctionTool {
	return &FunctionTool{name: name, description: description, schema: schema, fn: fn}
}

// NewFunctionToolFromStruct derives the argument schema from a struct via
// reflection. Field json tags name the properties and `description` tags
// document them.
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to the backend.
func (t *FunctionTool) Description() string { return t.description }

// InputSchema returns the JSON schema describing expected arguments.
func (t *FunctionTool) InputSchema() map[string]any { return t.schema }

// Execute validates args against the declared schema and invokes the
// wrapped function.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if err := util.ValidateParameters(args, t.schema); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}
	return t.fn(ctx, args)
}
