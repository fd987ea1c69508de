// Package model defines the narrow interface the orchestrator drives the
// reasoning backend through, plus a deterministic in-memory mock for
// tests and examples.
package model

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/core"
)

// Request captures one fully assembled backend call. The orchestrator
// fills the computed fields; Overrides and Headers carry the caller's
// merge layers (see the agent package for the precedence rules).
type Request struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	System      string
	Messages    []core.Message

	// Tools holds wire-format descriptors: {name, description,
	// input_schema} for dispatchable tools and the reduced provider
	// descriptors for server-delegated ones.
	Tools []map[string]any

	// Headers is the fully merged header map for this call.
	Headers map[string]string

	// Overrides are body-level parameter overrides applied on top of the
	// computed fields, last write wins, structural keys included.
	Overrides map[string]any
}

// Response is one backend turn: ordered content blocks plus the usage
// record the history needs for budget accounting.
type Response struct {
	Blocks     []core.Block
	Usage      core.Usage
	StopReason string
}

// Text concatenates the text blocks of the response in order.
func (r *Response) Text() string {
	var out string
	for _, b := range r.Blocks {
		if tb, ok := b.(core.TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// ToolUses returns the tool invocation blocks in order.
func (r *Response) ToolUses() []core.ToolUseBlock {
	var out []core.ToolUseBlock
	for _, b := range r.Blocks {
		if tu, ok := b.(core.ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Model is the capability interface over the reasoning backend. Errors
// from Generate are fatal for the run; the engine does not retry.
type Model interface {
	// Generate performs one blocking request/response round trip.
	Generate(ctx context.Context, req Request) (*Response, error)

	// CountSystemTokens measures the token cost of a system prompt so the
	// history can seed its running total.
	CountSystemTokens(ctx context.Context, model, system string) (int64, error)
}

// MockModel is a scripted Model for tests and examples: it replays a
// queue of responses and records every request it receives.
type MockModel struct {
	Responses []*Response
	Requests  []Request

	// Err, when set, is returned by the next Generate call.
	Err error

	// SystemTokens is returned by CountSystemTokens; CountErr forces the
	// estimate fallback path in callers.
	SystemTokens int64
	CountErr     error
}

// Generate implements Model by replaying the scripted queue.
func (m *MockModel) Generate(_ context.Context, req Request) (*Response, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("mock model: no scripted response left")
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}

// CountSystemTokens implements Model.
func (m *MockModel) CountSystemTokens(context.Context, string, string) (int64, error) {
	return m.SystemTokens, m.CountErr
}
