// Package mcp connects the engine to Model Context Protocol servers: it
// wraps the official MCP SDK client behind the Connection lifecycle the
// agent manages per run, and exposes each server-advertised capability
// as a dispatchable RemoteTool.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentloop/agentloop/logging"
)

// clientInfo identifies this engine to MCP servers during the handshake.
var clientInfo = &mcpsdk.Implementation{Name: "agentloop", Version: "0.1.0"}

// State is the lifecycle state of a Connection.
type State int

const (
	// StateClosed covers both never-opened and closed connections.
	StateClosed State = iota
	// StateOpen means the session is live and the handshake completed.
	StateOpen
)

// Connection manages the lifecycle of one remote tool backend: a
// config-derived transport plus the SDK session layered on top. The
// state machine is Closed -(Open)-> Open -(Close)-> Closed and is not
// re-enterable; reconnecting requires a fresh Connection.
type Connection struct {
	cfg      ServerConfig
	logger   logging.Logger
	session  *mcpsdk.ClientSession
	state    State
	finished bool

	// newTransport is the config-derived factory unless overridden.
	newTransport func(ctx context.Context) (mcpsdk.Transport, error)
}

// ConnectionOptions configures a Connection.
type ConnectionOptions struct {
	// Logger receives lifecycle and teardown diagnostics. Defaults to slog.
	Logger logging.Logger
	// Transport overrides the config-derived transport factory. Mainly
	// for tests.
	Transport func(ctx context.Context) (mcpsdk.Transport, error)
}

// NewConnection builds a closed connection for the given server config.
func NewConnection(cfg ServerConfig, optFns ...func(o *ConnectionOptions)) *Connection {
	opts := ConnectionOptions{Logger: logging.NewDefaultSlogLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}
	c := &Connection{cfg: cfg, logger: opts.Logger}
	if opts.Transport != nil {
		c.newTransport = opts.Transport
	} else {
		c.newTransport = cfg.newTransport
	}
	return c
}

// Open establishes the transport channel and performs the handshake. A
// failed handshake leaves the connection closed; the SDK releases the
// channel before Connect returns its error, so a failed Open never
// leaks it.
func (c *Connection) Open(ctx context.Context) error {
	if c.state == StateOpen {
		return fmt.Errorf("mcp: connection already open")
	}
	if c.finished {
		return fmt.Errorf("mcp: connection cannot be reopened after close")
	}

	transport, err := c.newTransport(ctx)
	if err != nil {
		return fmt.Errorf("mcp: connect %s: %w", c.cfg.Describe(), err)
	}

	session, err := mcpsdk.NewClient(clientInfo, nil).Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp: handshake with %s: %w", c.cfg.Describe(), err)
	}

	c.session = session
	c.state = StateOpen
	c.logger.Debug("mcp connection open", "server", c.cfg.Describe())
	return nil
}

// Close releases the session and with it the underlying channel. Close
// is terminal and idempotent; failures are logged and returned.
func (c *Connection) Close() error {
	if c.state != StateOpen {
		c.finished = true
		return nil
	}
	c.state = StateClosed
	c.finished = true

	err := c.session.Close()
	if err != nil {
		c.logger.Warn("mcp session close failed", "server", c.cfg.Describe(), "error", err.Error())
	}
	c.session = nil
	return err
}

// State reports the current lifecycle state.
func (c *Connection) State() State { return c.state }

// Discover queries the backend for its available tools and wraps each
// descriptor into a dispatchable RemoteTool bound to this connection.
func (c *Connection) Discover(ctx context.Context) ([]*RemoteTool, error) {
	if c.state != StateOpen {
		return nil, fmt.Errorf("mcp: connection is not open")
	}

	var tools []*RemoteTool
	for info, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp: discover %s: %w", c.cfg.Describe(), err)
		}
		tools = append(tools, newRemoteTool(info, c))
	}
	return tools, nil
}

// CallTool forwards an invocation to the backend.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	if c.state != StateOpen {
		return nil, fmt.Errorf("mcp: connection is not open")
	}
	return c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
}
