package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
)

// ExecutorOptions configures batch dispatch.
type ExecutorOptions struct {
	// Sequential executes invocations strictly in request order instead of
	// fanning out, for callers that need deterministic external
	// side-effect ordering. Fault isolation is identical in both modes.
	Sequential bool
	// Logger receives per-invocation timing lines. Defaults to slog.
	Logger logging.Logger
}

// ExecuteBatch runs one backend turn's tool invocations against the
// registry and returns exactly one result per call, in request order
// regardless of completion order.
//
// No outcome escapes as an error: an unknown tool name, a failed
// execution or a recovered panic all fold into an error-flagged result
// for that call. Parallel mode starts one goroutine per call with no
// concurrency cap; callers needing backpressure wrap the executor.
func ExecuteBatch(ctx context.Context, calls []core.ToolUseBlock, reg *Registry, optFns ...func(o *ExecutorOptions)) []core.ToolResultBlock {
	opts := ExecutorOptions{Logger: logging.NewDefaultSlogLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}

	results := make([]core.ToolResultBlock, len(calls))

	if opts.Sequential {
		for i, call := range calls {
			results[i] = executeOne(ctx, call, reg, opts.Logger)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c core.ToolUseBlock) {
			defer wg.Done()
			results[idx] = executeOne(ctx, c, reg, opts.Logger)
		}(i, call)
	}
	wg.Wait()

	return results
}

// executeOne resolves and runs a single invocation, converting every
// failure mode into an error-flagged result.
func executeOne(ctx context.Context, call core.ToolUseBlock, reg *Registry, logger logging.Logger) (result core.ToolResultBlock) {
	result = core.ToolResultBlock{ToolUseID: call.ID}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool panicked", "tool", call.Name, "recover", r)
			result.Content = fmt.Sprintf("Error executing tool: panic: %v", r)
			result.IsError = true
		}
	}()

	impl, ok := reg.Lookup(call.Name)
	if !ok {
		result.Content = fmt.Sprintf("Tool '%s' not found", call.Name)
		result.IsError = true
		return result
	}

	start := time.Now()
	content, err := impl.Execute(ctx, call.Input)
	dur := time.Since(start)

	if err != nil {
		logger.Warn("tool execution failed",
			"tool", call.Name, "tool_use_id", call.ID,
			"duration_ms", dur.Milliseconds(), "error", err.Error())
		result.Content = fmt.Sprintf("Error executing tool: %v", err)
		result.IsError = true
		return result
	}

	logger.Debug("tool executed",
		"tool", call.Name, "tool_use_id", call.ID,
		"duration_ms", dur.Milliseconds())
	result.Content = content
	return result
}
