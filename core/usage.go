package core

// Usage is the token accounting record attached to one backend response.
// InputTokens and the cache counters together describe the cumulative
// context size the backend observed, not the increment contributed by the
// latest turn; the history backs out the delta.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheReadInputTokens     int64
	CacheCreationInputTokens int64
}

// TotalInput returns the cumulative input size including tokens served
// from or written to the prompt cache.
func (u Usage) TotalInput() int64 {
	return u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
}

// TokenCost is the incremental cost attributed to one retained assistant
// turn: the input delta it added to the context plus its output tokens.
type TokenCost struct {
	Input  int64
	Output int64
}

// Total returns the combined input and output cost.
func (c TokenCost) Total() int64 { return c.Input + c.Output }
