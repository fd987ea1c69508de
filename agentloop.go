// Package agentloop implements a single-session conversational
// orchestration engine: it drives a turn-based dialogue with an Anthropic
// reasoning backend that can request tool invocations, executes those
// invocations concurrently with per-call fault isolation, folds the
// results back into a token-budgeted conversation history, and repeats
// until the backend produces a final answer. Tools can be local Go
// functions, provider-executed server tools, or capabilities discovered
// from MCP servers over stdio or SSE transports.
//
// Most applications interact with the engine by:
//  1. Creating an agent.Agent with New (tools, MCP servers, model config)
//  2. Calling Run with the user input
//  3. Reading the final model.Response
//
// This package re-exports the entry points; the subpackages carry the
// full surface (agent, tool, mcp, history, model, core, logging).
package agentloop

import (
	"github.com/agentloop/agentloop/agent"
	"github.com/agentloop/agentloop/mcp"
	"github.com/agentloop/agentloop/tool"
)

// Agent is the session orchestrator. See agent.Agent.
type Agent = agent.Agent

// Options configures an Agent. See agent.Options.
type Options = agent.Options

// ModelConfig holds backend call parameters. See agent.ModelConfig.
type ModelConfig = agent.ModelConfig

// ServerConfig declares one MCP server. See mcp.ServerConfig.
type ServerConfig = mcp.ServerConfig

// Tool is the capability interface. See tool.Tool.
type Tool = tool.Tool

// New creates an Agent; see agent.New.
var New = agent.New

// NewFunctionTool adapts a Go function into a Tool; see
// tool.NewFunctionTool.
var NewFunctionTool = tool.NewFunctionTool

// DefaultModelConfig returns the stock configuration; see
// agent.DefaultModelConfig.
var DefaultModelConfig = agent.DefaultModelConfig
