package core

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks turns supplied by the caller, including tool results
	// fed back to the backend.
	RoleUser Role = "user"
	// RoleAssistant marks turns produced by the backend.
	RoleAssistant Role = "assistant"
)

// Block represents a polymorphic segment of turn content. Concrete block
// types implement the unexported isBlock marker enabling a closed set.
type Block interface{ isBlock() }

// TextBlock is a plain text content segment.
type TextBlock struct {
	Text string
	// Cache flags the block as a prompt-cache boundary. It is set only on
	// rendered copies, never on blocks held by the history.
	Cache bool
}

func (TextBlock) isBlock() {}

// ToolUseBlock is a single tool invocation requested by the backend.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
	Cache bool
}

func (ToolUseBlock) isBlock() {}

// ToolResultBlock carries the outcome of one tool invocation back to the
// backend. IsError signals a failed invocation so the backend can
// self-correct; it is never surfaced to the run's caller.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
	Cache     bool
}

func (ToolResultBlock) isBlock() {}

// Message holds a role plus ordered content blocks.
type Message struct {
	Role   Role
	Blocks []Block
}

// TextMessage wraps plain text as a single-block message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []Block{TextBlock{Text: text}}}
}

// WithCache returns a copy of the block with the cache-boundary flag set.
func WithCache(b Block) Block {
	switch block := b.(type) {
	case TextBlock:
		block.Cache = true
		return block
	case ToolUseBlock:
		block.Cache = true
		return block
	case ToolResultBlock:
		block.Cache = true
		return block
	default:
		return b
	}
}
