package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/mcp"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/tool"
)

func quietOptions(backend model.Model) func(o *Options) {
	return func(o *Options) {
		o.Model = backend
		o.Logger = logging.NoOpLogger{}
	}
}

func textResponse(text string, cumulativeInput, output int64) *model.Response {
	return &model.Response{
		Blocks:     []core.Block{core.TextBlock{Text: text}},
		Usage:      core.Usage{InputTokens: cumulativeInput, OutputTokens: output},
		StopReason: "end_turn",
	}
}

func toolUseResponse(id, name string, input map[string]any, cumulativeInput, output int64) *model.Response {
	return &model.Response{
		Blocks: []core.Block{
			core.TextBlock{Text: "working on it"},
			core.ToolUseBlock{ID: id, Name: name, Input: input},
		},
		Usage:      core.Usage{InputTokens: cumulativeInput, OutputTokens: output},
		StopReason: "tool_use",
	}
}

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echo x back", map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprint(args["x"]), nil
		})
}

func TestRunReturnsFinalResponse(t *testing.T) {
	backend := &model.MockModel{
		SystemTokens: 20,
		Responses:    []*model.Response{textResponse("hello there", 50, 10)},
	}
	a := New("tester", "You are terse.", quietOptions(backend))

	resp, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text())

	require.Len(t, backend.Requests, 1)
	req := backend.Requests[0]
	assert.Equal(t, "You are terse.", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, core.RoleUser, req.Messages[0].Role)

	// history retains both turns and the seeded system cost
	assert.Equal(t, 2, a.History().Len())
	assert.Equal(t, int64(60), a.History().TotalTokens())
}

func TestRunDispatchesToolsAndLoops(t *testing.T) {
	backend := &model.MockModel{
		SystemTokens: 20,
		Responses: []*model.Response{
			toolUseResponse("t1", "echo", map[string]any{"x": 1}, 50, 10),
			textResponse("done", 120, 5),
		},
	}
	a := New("tester", "system", quietOptions(backend), func(o *Options) {
		o.Tools = []tool.Tool{echoTool()}
	})

	resp, err := a.Run(context.Background(), "please echo 1")
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())

	require.Len(t, backend.Requests, 2)

	// second request carries the tool result as a user turn
	second := backend.Requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, core.RoleUser, second.Messages[2].Role)
	require.Len(t, second.Messages[2].Blocks, 1)
	result := second.Messages[2].Blocks[0].(core.ToolResultBlock)
	assert.Equal(t, "t1", result.ToolUseID)
	assert.Equal(t, "1", result.Content)
	assert.False(t, result.IsError)
	assert.True(t, result.Cache, "final rendered turn is the cache boundary")

	// earlier turns are not cache-annotated
	for _, msg := range second.Messages[:2] {
		for _, b := range msg.Blocks {
			switch block := b.(type) {
			case core.TextBlock:
				assert.False(t, block.Cache)
			case core.ToolUseBlock:
				assert.False(t, block.Cache)
			}
		}
	}

	assert.Equal(t, 4, a.History().Len())
}

func TestRunFeedsToolErrorsBack(t *testing.T) {
	backend := &model.MockModel{
		Responses: []*model.Response{
			toolUseResponse("t1", "missing", map[string]any{}, 50, 10),
			textResponse("recovered", 120, 5),
		},
	}
	a := New("tester", "system", quietOptions(backend))

	resp, err := a.Run(context.Background(), "go")
	require.NoError(t, err, "a failing tool call never fails the run")
	assert.Equal(t, "recovered", resp.Text())

	second := backend.Requests[1]
	result := second.Messages[2].Blocks[0].(core.ToolResultBlock)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Tool 'missing' not found")
}

func TestRequestAssemblyPrecedence(t *testing.T) {
	backend := &model.MockModel{Responses: []*model.Response{textResponse("ok", 10, 1)}}
	a := New("tester", "system", quietOptions(backend), func(o *Options) {
		o.Tools = []tool.Tool{echoTool()}
		o.ServerTools = []tool.ServerTool{tool.NewWebSearchTool(2)}
		o.RequestOverrides = map[string]any{"temperature": 0.2, "top_k": 5}
		o.Headers = map[string]string{"x-request-tag": "ci"}
	})

	_, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)

	req := backend.Requests[0]

	// registry descriptors first, then server tools
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "echo", req.Tools[0]["name"])
	assert.Equal(t, "web_search_20250305", req.Tools[1]["type"])

	// default header survives a disjoint caller header (key-by-key merge)
	assert.Equal(t, "code-execution-2025-05-22", req.Headers["anthropic-beta"])
	assert.Equal(t, "ci", req.Headers["x-request-tag"])

	// body overrides pass through untouched for last-write-wins application
	assert.Equal(t, map[string]any{"temperature": 0.2, "top_k": 5}, req.Overrides)
}

// A partially populated config gets every zero field back-filled,
// temperature included.
func TestPartialConfigBackfill(t *testing.T) {
	backend := &model.MockModel{Responses: []*model.Response{textResponse("ok", 10, 1)}}
	a := New("tester", "system", quietOptions(backend), func(o *Options) {
		o.Config = ModelConfig{Model: "claude-custom"}
	})

	_, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)

	req := backend.Requests[0]
	assert.Equal(t, "claude-custom", req.Model)
	assert.Equal(t, DefaultModelConfig().MaxTokens, req.MaxTokens)
	assert.Equal(t, DefaultModelConfig().Temperature, req.Temperature)
}

func TestCallerHeaderOverridesDefault(t *testing.T) {
	backend := &model.MockModel{Responses: []*model.Response{textResponse("ok", 10, 1)}}
	a := New("tester", "system", quietOptions(backend), func(o *Options) {
		o.Headers = map[string]string{"anthropic-beta": "custom-beta"}
	})

	_, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "custom-beta", backend.Requests[0].Headers["anthropic-beta"])
}

func TestRunMaxIterations(t *testing.T) {
	backend := &model.MockModel{
		Responses: []*model.Response{
			toolUseResponse("t1", "echo", map[string]any{"x": 1}, 50, 10),
			toolUseResponse("t2", "echo", map[string]any{"x": 2}, 120, 10),
		},
	}
	a := New("tester", "system", quietOptions(backend), func(o *Options) {
		o.Tools = []tool.Tool{echoTool()}
		o.Config = DefaultModelConfig()
		o.Config.MaxIterations = 2
	})

	_, err := a.Run(context.Background(), "loop forever")
	require.Error(t, err)
	assert.ErrorContains(t, err, "2 iterations")
}

func TestRunBackendErrorIsFatal(t *testing.T) {
	backend := &model.MockModel{Err: fmt.Errorf("quota exceeded")}
	a := New("tester", "system", quietOptions(backend))

	_, err := a.Run(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorContains(t, err, "backend call failed")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestSystemCostEstimateFallback(t *testing.T) {
	system := "a system prompt that is forty chars long!"
	backend := &model.MockModel{
		CountErr:  fmt.Errorf("offline"),
		Responses: []*model.Response{textResponse("ok", 100, 1)},
	}
	a := New("tester", system, quietOptions(backend))

	_, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)

	// total = len(system)/4 estimate + incremental input + output
	estimate := int64(len(system) / 4)
	assert.Equal(t, estimate+(100-estimate)+1, a.History().TotalTokens())
}

// -------------------- connection lifecycle --------------------

// remoteEcho registers a server tool that always replies "remote result".
func remoteEcho(s *mcpsdk.Server) {
	s.AddTool(&mcpsdk.Tool{
		Name:        "remote_echo",
		Description: "Echo",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, func(context.Context, *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "remote result"}},
		}, nil
	})
}

// scriptConnections swaps the connection setup for one backed by an
// in-process MCP server over the in-memory transport pair, restoring it
// when the test ends. It returns a pointer through which the test can
// observe the connection the run used.
func scriptConnections(t *testing.T, register func(*mcpsdk.Server)) **mcp.Connection {
	t.Helper()
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "test"}, nil)
	if register != nil {
		register(server)
	}

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	srvCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		session, err := server.Connect(srvCtx, serverTransport, nil)
		if err != nil {
			return
		}
		<-srvCtx.Done()
		_ = session.Close()
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var used *mcp.Connection
	original := setupConnections
	setupConnections = func(_ context.Context, _ []mcp.ServerConfig, logger logging.Logger) ([]tool.Tool, []*mcp.Connection) {
		conn := mcp.NewConnection(mcp.ServerConfig{Command: "inmemory"}, func(o *mcp.ConnectionOptions) {
			o.Logger = logger
			o.Transport = func(context.Context) (mcpsdk.Transport, error) { return clientTransport, nil }
		})
		require.NoError(t, conn.Open(context.Background()))
		discovered, err := conn.Discover(context.Background())
		require.NoError(t, err)
		tools := make([]tool.Tool, 0, len(discovered))
		for _, d := range discovered {
			tools = append(tools, d)
		}
		used = conn
		return tools, []*mcp.Connection{conn}
	}
	t.Cleanup(func() { setupConnections = original })
	return &used
}

func TestRunClosesConnectionsOnSuccess(t *testing.T) {
	conn := scriptConnections(t, remoteEcho)

	backend := &model.MockModel{
		Responses: []*model.Response{
			toolUseResponse("t1", "remote_echo", map[string]any{}, 50, 10),
			textResponse("done", 120, 5),
		},
	}
	a := New("tester", "system", quietOptions(backend))

	resp, err := a.Run(context.Background(), "use the remote tool")
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())
	assert.Equal(t, mcp.StateClosed, (*conn).State())

	// the discovered tool reached the backend and produced a result
	result := backend.Requests[1].Messages[2].Blocks[0].(core.ToolResultBlock)
	assert.Equal(t, "remote result", result.Content)
}

func TestRunClosesConnectionsOnBackendError(t *testing.T) {
	conn := scriptConnections(t, nil)

	backend := &model.MockModel{Err: fmt.Errorf("network down")}
	a := New("tester", "system", quietOptions(backend))

	_, err := a.Run(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, mcp.StateClosed, (*conn).State())
}

func TestRunClosesConnectionsOnCancellation(t *testing.T) {
	conn := scriptConnections(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &model.MockModel{Err: ctx.Err()}
	a := New("tester", "system", quietOptions(backend))

	_, err := a.Run(ctx, "hi")
	require.Error(t, err)
	assert.Equal(t, mcp.StateClosed, (*conn).State())
}

// Remote tools live in a run-scoped overlay: after the run the static
// registry is unchanged.
func TestRunDiscardsRemoteToolsAfterRun(t *testing.T) {
	scriptConnections(t, remoteEcho)

	backend := &model.MockModel{
		SystemTokens: 0,
		Responses: []*model.Response{
			textResponse("first", 50, 5),
			textResponse("second", 120, 5),
		},
	}
	a := New("tester", "system", quietOptions(backend), func(o *Options) {
		o.Tools = []tool.Tool{echoTool()}
	})

	_, err := a.Run(context.Background(), "one")
	require.NoError(t, err)
	// first run advertised static + discovered tools
	assert.Len(t, backend.Requests[0].Tools, 2)

	// second run rebuilds the overlay from scratch; the static set alone
	// remains when discovery yields nothing
	scriptConnections(t, nil)
	_, err = a.Run(context.Background(), "two")
	require.NoError(t, err)
	assert.Len(t, backend.Requests[1].Tools, 1)
	assert.Equal(t, "echo", backend.Requests[1].Tools[0]["name"])
}
