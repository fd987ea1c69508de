package tool

// ServerTool describes a capability executed by the backend provider
// itself. It is advertised as a reduced {type, name, ...options} wire
// descriptor and deliberately does not implement Tool: with no Execute
// body it can never be registered or become a dispatch target.
type ServerTool struct {
	Type    string
	Name    string
	Options map[string]any
}

// Wire renders the provider-specific descriptor.
func (t ServerTool) Wire() map[string]any {
	wire := map[string]any{"type": t.Type, "name": t.Name}
	for k, v := range t.Options {
		wire[k] = v
	}
	return wire
}

// NewWebSearchTool returns the provider-executed web search capability.
// maxUses bounds the number of searches per request; 0 leaves the
// provider default in place.
func NewWebSearchTool(maxUses int) ServerTool {
	t := ServerTool{Type: "web_search_20250305", Name: "web_search"}
	if maxUses > 0 {
		t.Options = map[string]any{"max_uses": maxUses}
	}
	return t
}

// NewCodeExecutionTool returns the provider-executed code execution
// capability. Requests advertising it must carry the matching beta header;
// the agent's default header map already does.
func NewCodeExecutionTool() ServerTool {
	return ServerTool{Type: "code_execution_20250522", Name: "code_execution"}
}
