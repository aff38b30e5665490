package agentrun

// StopReason identifies why a model turn ended.
type StopReason string

const (
	// StopEndTurn means the model completed its turn normally.
	StopEndTurn StopReason = "end_turn"

	// StopMaxTokens means the turn was cut off by a token limit.
	StopMaxTokens StopReason = "max_tokens"

	// StopToolUse means the model stopped to invoke a tool.
	StopToolUse StopReason = "tool_use"
)
