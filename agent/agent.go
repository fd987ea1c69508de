// Package agent ties history, registry, dispatch and the backend into the
// request/response loop that drives one conversational session.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/history"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/mcp"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/model/anthropic"
	"github.com/agentloop/agentloop/tool"
)

// defaultHeaders are merged under caller-supplied headers on every
// backend call. This is the one nested field merged key-by-key instead of
// replaced wholesale.
var defaultHeaders = map[string]string{
	"anthropic-beta": "code-execution-2025-05-22",
}

// setupConnections is swapped out by tests to script connection setup.
var setupConnections = mcp.SetupConnections

// ModelConfig holds the backend call parameters and loop limits.
type ModelConfig struct {
	Model               string
	MaxTokens           int64
	Temperature         float64
	ContextWindowTokens int64
	// MaxIterations bounds backend round trips per run; 0 means no bound
	// beyond what the backend imposes.
	MaxIterations int
}

// DefaultModelConfig returns the stock configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:               "claude-sonnet-4-20250514",
		MaxTokens:           4096,
		Temperature:         1.0,
		ContextWindowTokens: 180000,
	}
}

// Options configures an Agent.
type Options struct {
	// Tools are the statically configured dispatchable tools.
	Tools []tool.Tool
	// ServerTools are provider-executed capabilities advertised on every
	// request; they never enter the registry.
	ServerTools []tool.ServerTool
	// MCPServers are opened at the start of each run and closed at its
	// end; their discovered tools live in a run-scoped registry overlay.
	MCPServers []mcp.ServerConfig
	// Config holds backend parameters; zero fields fall back to
	// DefaultModelConfig.
	Config ModelConfig
	// Model overrides the default Anthropic backend.
	Model model.Model
	// Logger defaults to slog.
	Logger logging.Logger
	// RequestOverrides are merged over the computed request body, last
	// write wins on any colliding key, structural ones included.
	RequestOverrides map[string]any
	// Headers are merged key-by-key over the default header map.
	Headers map[string]string
	// SequentialTools forces strictly ordered tool execution instead of
	// the default parallel fan-out.
	SequentialTools bool
}

// Agent owns one conversational session: a history that accumulates
// across runs, the static tool registry, and the remote backend
// configuration. Runs are not re-entrant; overlapping Run calls against
// the same Agent race on registry and history state, and serializing them
// is the caller's obligation.
type Agent struct {
	name   string
	system string

	registry    *tool.Registry
	serverTools []tool.ServerTool
	mcpServers  []mcp.ServerConfig

	config     ModelConfig
	backend    model.Model
	history    *history.History
	logger     logging.Logger
	overrides  map[string]any
	headers    map[string]string
	sequential bool

	systemCostSeeded bool
}

// New creates an Agent with the given identity and system prompt.
func New(name, system string, optFns ...func(o *Options)) *Agent {
	opts := Options{Config: DefaultModelConfig(), Logger: logging.NewDefaultSlogLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.Model == "" {
		opts.Config.Model = DefaultModelConfig().Model
	}
	if opts.Config.MaxTokens == 0 {
		opts.Config.MaxTokens = DefaultModelConfig().MaxTokens
	}
	if opts.Config.Temperature == 0 {
		opts.Config.Temperature = DefaultModelConfig().Temperature
	}
	if opts.Config.ContextWindowTokens == 0 {
		opts.Config.ContextWindowTokens = DefaultModelConfig().ContextWindowTokens
	}
	if opts.Model == nil {
		opts.Model = anthropic.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDefaultSlogLogger()
	}

	return &Agent{
		name:        name,
		system:      system,
		registry:    tool.NewRegistry(opts.Tools...),
		serverTools: opts.ServerTools,
		mcpServers:  opts.MCPServers,
		config:      opts.Config,
		backend:     opts.Model,
		history:     history.New(opts.Config.ContextWindowTokens),
		logger:      opts.Logger,
		overrides:   opts.RequestOverrides,
		headers:     opts.Headers,
		sequential:  opts.SequentialTools,
	}
}

// Name returns the agent identifier used in log lines.
func (a *Agent) Name() string { return a.name }

// History exposes the session history; it accumulates across runs.
func (a *Agent) History() *history.History { return a.history }

// Run processes one user input to completion: it opens the configured
// remote backends into a run-scoped registry, loops backend calls and
// tool dispatch until a turn arrives without tool requests, and returns
// that final response. Every connection opened for the run is closed on
// exit, whether the run returns, fails, or is cancelled.
func (a *Agent) Run(ctx context.Context, input string) (*model.Response, error) {
	runID := uuid.NewString()
	a.logger.Info("run started", "agent", a.name, "run_id", runID)

	a.seedSystemCost(ctx)

	remoteTools, conns := setupConnections(ctx, a.mcpServers, a.logger)
	defer func() {
		for _, conn := range conns {
			if err := conn.Close(); err != nil {
				a.logger.Warn("connection teardown failed", "agent", a.name, "run_id", runID, "error", err.Error())
			}
		}
	}()

	registry := a.registry.WithOverlay(remoteTools...)
	a.logger.Debug("registry assembled", "agent", a.name, "run_id", runID,
		"tools", registry.Len(), "remote", len(remoteTools), "server_tools", len(a.serverTools))

	if err := a.history.AppendText(core.RoleUser, input, nil); err != nil {
		return nil, err
	}

	for iteration := 1; ; iteration++ {
		if a.config.MaxIterations > 0 && iteration > a.config.MaxIterations {
			return nil, fmt.Errorf("agent: aborted after %d iterations without a final response", a.config.MaxIterations)
		}

		a.history.EnforceBudget()

		resp, err := a.backend.Generate(ctx, a.buildRequest(registry))
		if err != nil {
			return nil, fmt.Errorf("agent: backend call failed: %w", err)
		}
		if err := a.history.Append(core.RoleAssistant, resp.Blocks, &resp.Usage); err != nil {
			return nil, err
		}

		calls := resp.ToolUses()
		if len(calls) == 0 {
			a.logger.Info("run finished", "agent", a.name, "run_id", runID,
				"iterations", iteration, "total_tokens", a.history.TotalTokens())
			return resp, nil
		}

		a.logger.Debug("dispatching tools", "agent", a.name, "run_id", runID,
			"iteration", iteration, "calls", len(calls))
		results := tool.ExecuteBatch(ctx, calls, registry, func(o *tool.ExecutorOptions) {
			o.Sequential = a.sequential
			o.Logger = a.logger
		})

		blocks := make([]core.Block, len(results))
		for i, r := range results {
			blocks[i] = r
		}
		if err := a.history.Append(core.RoleUser, blocks, nil); err != nil {
			return nil, err
		}
	}
}

// buildRequest assembles the backend call: computed defaults first, then
// the caller's override layers. Body overrides replace colliding keys
// wholesale; only the header map merges key-by-key over its defaults.
func (a *Agent) buildRequest(registry *tool.Registry) model.Request {
	wire := registry.Wire()
	for _, st := range a.serverTools {
		wire = append(wire, st.Wire())
	}

	headers := make(map[string]string, len(defaultHeaders)+len(a.headers))
	for k, v := range defaultHeaders {
		headers[k] = v
	}
	for k, v := range a.headers {
		headers[k] = v
	}

	return model.Request{
		Model:       a.config.Model,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
		System:      a.system,
		Messages:    a.history.Render(),
		Tools:       wire,
		Headers:     headers,
		Overrides:   a.overrides,
	}
}

// seedSystemCost initializes the history's running total with the system
// prompt cost, once per agent. When the backend cannot count tokens the
// cost falls back to a length-based estimate.
func (a *Agent) seedSystemCost(ctx context.Context) {
	if a.systemCostSeeded {
		return
	}
	cost, err := a.backend.CountSystemTokens(ctx, a.config.Model, a.system)
	if err != nil {
		cost = int64(len(a.system) / 4)
		a.logger.Warn("token counting unavailable, estimating system prompt cost",
			"agent", a.name, "estimate", cost, "error", err.Error())
	}
	a.history.SetSystemCost(cost)
	a.systemCostSeeded = true
}
