// Package history maintains the bounded conversation state for one agent:
// an append-only log of turns, per-assistant-turn token costs, and a FIFO
// eviction policy that keeps the cumulative cost within a fixed budget.
package history

import (
	"fmt"

	"github.com/agentloop/agentloop/core"
)

// TruncationNotice replaces the oldest surviving turn after an eviction
// pass, leaving the backend a visible trace that earlier turns were
// dropped. No out-of-band truncation signal exists.
const TruncationNotice = "[Earlier history has been truncated.]"

// truncationNoticeCost is the fixed input cost charged for the notice.
const truncationNoticeCost = 25

// History owns the ordered turn sequence and its token accounting.
//
// Invariants:
//   - the cost sequence holds one entry per retained assistant turn;
//   - total == systemCost + sum over costs of (input + output);
//   - eviction removes adjacent user/assistant pairs from the front, so a
//     non-empty turn sequence always starts with a user turn.
//
// A History is created once per agent and accumulates across runs. It is
// not synchronized; the single-run-at-a-time caller obligation of the
// agent covers it.
type History struct {
	turns      []core.Message
	costs      []core.TokenCost
	total      int64
	budget     int64
	systemCost int64
	caching    bool
}

// Options configures a History.
type Options struct {
	// EnableCaching controls whether Render annotates the final turn with
	// a cache boundary. On by default.
	EnableCaching bool
}

// New creates an empty history with the given token budget.
func New(budget int64, optFns ...func(o *Options)) *History {
	opts := Options{EnableCaching: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &History{budget: budget, caching: opts.EnableCaching}
}

// SetSystemCost records the token cost of the system prompt, replacing any
// previously recorded value in the running total.
func (h *History) SetSystemCost(tokens int64) {
	h.total += tokens - h.systemCost
	h.systemCost = tokens
}

// Append adds a turn. Assistant turns must carry a usage record: the
// backend reports cumulative context size, and the incremental cost of the
// turn is backed out against the running total in a single O(1) update.
// Inferring cost from content length instead would silently desynchronize
// the accounting, so a missing record fails the append.
func (h *History) Append(role core.Role, blocks []core.Block, usage *core.Usage) error {
	if role == core.RoleAssistant && usage == nil {
		return fmt.Errorf("history: assistant turn appended without usage data")
	}

	h.turns = append(h.turns, core.Message{Role: role, Blocks: blocks})

	if role == core.RoleAssistant {
		incrementalInput := usage.TotalInput() - h.total
		h.costs = append(h.costs, core.TokenCost{Input: incrementalInput, Output: usage.OutputTokens})
		h.total += incrementalInput + usage.OutputTokens
	}
	return nil
}

// AppendText adds a turn whose content is a single text block.
func (h *History) AppendText(role core.Role, text string, usage *core.Usage) error {
	return h.Append(role, []core.Block{core.TextBlock{Text: text}}, usage)
}

// EnforceBudget evicts the oldest user/assistant pairs until the running
// total fits the budget, no cost entries remain, or fewer than two turns
// are left. After each removal the new oldest turn is rewritten to the
// truncation notice at a fixed input cost, preserving its original output
// cost. That rewrite can push the total back over budget, so the loop
// re-checks the condition rather than exiting after one pass. A call
// already within budget is a no-op.
func (h *History) EnforceBudget() {
	for len(h.costs) > 0 && len(h.turns) >= 2 && h.total > h.budget {
		h.turns = h.turns[2:]
		evicted := h.costs[0]
		h.costs = h.costs[1:]
		h.total -= evicted.Total()

		if len(h.turns) > 0 && len(h.costs) > 0 {
			original := h.costs[0]
			h.turns[0] = core.TextMessage(core.RoleUser, TruncationNotice)
			h.costs[0] = core.TokenCost{Input: truncationNoticeCost, Output: original.Output}
			h.total += truncationNoticeCost - original.Input
		}
	}
}

// Render produces the API-facing turn sequence. Blocks of the final turn
// are annotated as the cache boundary on the returned copies; persisted
// turns are never mutated.
func (h *History) Render() []core.Message {
	out := make([]core.Message, len(h.turns))
	for i, turn := range h.turns {
		blocks := make([]core.Block, len(turn.Blocks))
		copy(blocks, turn.Blocks)
		out[i] = core.Message{Role: turn.Role, Blocks: blocks}
	}

	if h.caching && len(out) > 0 {
		last := out[len(out)-1]
		for i, b := range last.Blocks {
			last.Blocks[i] = core.WithCache(b)
		}
	}
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int { return len(h.turns) }

// TotalTokens returns the running total, system prompt included.
func (h *History) TotalTokens() int64 { return h.total }

// Budget returns the fixed token budget.
func (h *History) Budget() int64 { return h.budget }

// Turns returns a copy of the retained turn sequence.
func (h *History) Turns() []core.Message {
	out := make([]core.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// Costs returns a copy of the per-assistant-turn cost sequence.
func (h *History) Costs() []core.TokenCost {
	out := make([]core.TokenCost, len(h.costs))
	copy(out, h.costs)
	return out
}
