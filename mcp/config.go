package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport kinds accepted by ServerConfig.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ServerConfig declares how to reach one MCP server. Type defaults to
// stdio when empty.
type ServerConfig struct {
	Type string

	// Stdio binding: process command, arguments, extra environment.
	Command string
	Args    []string
	Env     map[string]string

	// SSE binding: endpoint URL and extra HTTP headers.
	URL     string
	Headers map[string]string
}

// Validate checks that the config carries the fields its transport kind
// requires.
func (c ServerConfig) Validate() error {
	switch c.kind() {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp: command is required for stdio connections")
		}
	case TransportSSE:
		if c.URL == "" {
			return fmt.Errorf("mcp: url is required for sse connections")
		}
	default:
		return fmt.Errorf("mcp: unsupported connection type %q", c.Type)
	}
	return nil
}

// Describe returns a short label for log lines.
func (c ServerConfig) Describe() string {
	if c.kind() == TransportSSE {
		return fmt.Sprintf("sse %s", c.URL)
	}
	return fmt.Sprintf("stdio %s", c.Command)
}

func (c ServerConfig) kind() string {
	if c.Type == "" {
		return TransportStdio
	}
	return c.Type
}

// newTransport builds the SDK transport for the configured binding:
// a spawned subprocess speaking stdio, or the HTTP+SSE endpoint.
func (c ServerConfig) newTransport(ctx context.Context) (mcpsdk.Transport, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.kind() {
	case TransportSSE:
		transport := &mcpsdk.SSEClientTransport{Endpoint: c.URL}
		if len(c.Headers) > 0 {
			transport.HTTPClient = &http.Client{
				Transport: headerRoundTripper{headers: c.Headers, base: http.DefaultTransport},
			}
		}
		return transport, nil
	default:
		cmd := exec.CommandContext(ctx, c.Command, c.Args...)
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	}
}

// headerRoundTripper injects the configured headers into every request
// the SSE transport makes, stream and message posts alike.
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
