package mcp

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// noTextContent is returned when a tool reply carries no text-typed item.
const noTextContent = "No text content in tool response"

// RemoteTool exposes one server-advertised capability as a dispatchable
// tool. It holds a non-owning back-reference to the connection it was
// discovered through; the connection's lifetime is managed by the run,
// never by the tool.
type RemoteTool struct {
	name        string
	description string
	schema      map[string]any
	conn        *Connection
}

func newRemoteTool(info *mcpsdk.Tool, conn *Connection) *RemoteTool {
	description := info.Description
	if description == "" {
		description = fmt.Sprintf("MCP tool: %s", info.Name)
	}
	return &RemoteTool{
		name:        info.Name,
		description: description,
		schema:      normalizeSchema(info.InputSchema),
		conn:        conn,
	}
}

// normalizeSchema converts the SDK's schema representation to the plain
// map the wire descriptor needs, defaulting to an empty object schema.
func normalizeSchema(schema any) map[string]any {
	fallback := map[string]any{"type": "object", "properties": map[string]any{}}
	if schema == nil {
		return fallback
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fallback
	}
	// A nil *jsonschema.Schema arrives as a non-nil interface and
	// marshals to JSON null, leaving m nil; apply the same default.
	if m == nil {
		return fallback
	}
	return m
}

// Name returns the tool name as advertised by the server.
func (t *RemoteTool) Name() string { return t.name }

// Description returns the advertised description.
func (t *RemoteTool) Description() string { return t.description }

// InputSchema returns the advertised argument schema.
func (t *RemoteTool) InputSchema() map[string]any { return t.schema }

// Execute forwards the invocation to the connection and extracts the
// first text-typed content item of the reply. A transport fault is
// converted to a textual error so dispatch can feed it back to the
// backend instead of failing the turn.
func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.conn.CallTool(ctx, t.name, args)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", t.name, err), nil
	}
	for _, item := range result.Content {
		if tc, ok := item.(*mcpsdk.TextContent); ok {
			return tc.Text, nil
		}
	}
	return noTextContent, nil
}
