// Package anthropic adapts the Anthropic Messages API to the engine's
// model interface using the official SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/model"
)

// Options configures the adapter.
type Options struct {
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
}

// Model wraps the Anthropic Messages API behind model.Model.
type Model struct {
	client *anthropic.Client
}

// New creates an adapter using the official client.
func New(optFns ...func(o *Options)) *Model {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client}
}

// NewFromClient wraps an existing client.
func NewFromClient(client *anthropic.Client) *Model {
	return &Model{client: client}
}

// Generate implements model.Model. The computed request fields go through
// the typed params; tools, body overrides and headers are layered on via
// request options so the caller's merge semantics survive serialization:
// each override key replaces the colliding body field wholesale, while
// headers were already merged key-by-key upstream.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   req.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages:    buildMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := m.client.Messages.New(ctx, params, requestOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	return convertResponse(resp), nil
}

// CountSystemTokens implements model.Model, mirroring the probe the
// history seeding uses: one throwaway user message alongside the system
// prompt, minus the message's own token.
func (m *Model) CountSystemTokens(ctx context.Context, modelID, system string) (int64, error) {
	params := anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(modelID),
		Messages: []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("test"))},
	}
	count, err := m.client.Messages.CountTokens(ctx, params, option.WithJSONSet("system", system))
	if err != nil {
		return 0, fmt.Errorf("anthropic api error: %w", err)
	}
	return count.InputTokens - 1, nil
}

// requestOptions layers headers, the tool array and body overrides onto
// the serialized request. Tools are set on the body directly because
// server-delegated descriptors share the array with regular tools.
// Deterministic option order keeps override precedence stable.
func requestOptions(req model.Request) []option.RequestOption {
	var opts []option.RequestOption

	for _, k := range sortedKeys(req.Headers) {
		opts = append(opts, option.WithHeader(k, req.Headers[k]))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, option.WithJSONSet("tools", req.Tools))
	}
	for _, k := range sortedKeys(req.Overrides) {
		opts = append(opts, option.WithJSONSet(k, req.Overrides[k]))
	}
	return opts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildMessages converts engine messages to Anthropic message params.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
		for _, b := range msg.Blocks {
			blocks = append(blocks, buildBlock(b))
		}
		if msg.Role == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func buildBlock(b core.Block) anthropic.ContentBlockParamUnion {
	switch block := b.(type) {
	case core.TextBlock:
		u := anthropic.NewTextBlock(block.Text)
		if block.Cache {
			u.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		return u
	case core.ToolUseBlock:
		u := anthropic.NewToolUseBlock(block.ID, block.Input, block.Name)
		if block.Cache {
			u.OfToolUse.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		return u
	case core.ToolResultBlock:
		u := anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError)
		if block.Cache {
			u.OfToolResult.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		return u
	default:
		return anthropic.NewTextBlock("")
	}
}

// convertResponse maps SDK content blocks and usage back into engine
// types.
func convertResponse(resp *anthropic.Message) *model.Response {
	out := &model.Response{
		StopReason: string(resp.StopReason),
		Usage: core.Usage{
			InputTokens:              resp.Usage.InputTokens,
			OutputTokens:             resp.Usage.OutputTokens,
			CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
			CacheCreationInputTokens: resp.Usage.CacheCreationInputTokens,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			tb := block.AsText()
			out.Blocks = append(out.Blocks, core.TextBlock{Text: tb.Text})
		case "tool_use":
			tu := block.AsToolUse()
			out.Blocks = append(out.Blocks, core.ToolUseBlock{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: decodeInput(tu.Input),
			})
		}
	}
	return out
}

// decodeInput normalizes the SDK's tool input payload to a map.
func decodeInput(input any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}
