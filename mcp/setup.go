package mcp

import (
	"context"

	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/tool"
)

// SetupConnections opens every configured server and discovers its tools.
// A server that fails to open or discover is logged and skipped; one bad
// backend never aborts the registry build. Every successfully opened
// connection is returned, including those whose discovery later failed,
// so the caller can guarantee each is closed exactly once on run exit.
func SetupConnections(ctx context.Context, configs []ServerConfig, logger logging.Logger) ([]tool.Tool, []*Connection) {
	var tools []tool.Tool
	var conns []*Connection

	for _, cfg := range configs {
		conn := NewConnection(cfg, func(o *ConnectionOptions) { o.Logger = logger })
		if err := conn.Open(ctx); err != nil {
			logger.Warn("skipping mcp server", "server", cfg.Describe(), "error", err.Error())
			continue
		}
		conns = append(conns, conn)

		discovered, err := conn.Discover(ctx)
		if err != nil {
			logger.Warn("tool discovery failed", "server", cfg.Describe(), "error", err.Error())
			continue
		}
		for _, t := range discovered {
			tools = append(tools, t)
		}
	}

	logger.Info("mcp tools loaded", "tools", len(tools), "servers", len(configs))
	return tools, conns
}
