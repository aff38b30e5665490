package agentrun

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of message from an agent process.
type MessageType string

const (
	// MessageText is assistant text output.
	MessageText MessageType = "text"

	// MessageToolUse indicates the agent is invoking a tool.
	MessageToolUse MessageType = "tool_use"

	// MessageToolResult contains the output of a tool invocation.
	MessageToolResult MessageType = "tool_result"

	// MessageError indicates an error from the agent or runtime.
	MessageError MessageType = "error"

	// MessageSystem contains system-level messages (e.g., status changes).
	MessageSystem MessageType = "system"

	// MessageInit is the handshake message sent at session start.
	MessageInit MessageType = "init"

	// MessageEOF signals the end of the message stream.
	MessageEOF MessageType = "eof"

	// MessageResult is the terminal-per-turn summary emitted by the backend
	// (num_turns, duration, cost, final text). RunTurn and session
	// supervisors treat this as the signal that a turn is complete.
	MessageResult MessageType = "result"

	// MessageThinking is assistant reasoning content with no accompanying
	// text block in the same content array.
	MessageThinking MessageType = "thinking"

	// MessageTextDelta is a partial text chunk from a streaming backend.
	MessageTextDelta MessageType = "text_delta"

	// MessageToolUseDelta is a partial tool-call argument chunk.
	MessageToolUseDelta MessageType = "tool_use_delta"

	// MessageThinkingDelta is a partial reasoning chunk.
	MessageThinkingDelta MessageType = "thinking_delta"

	// MessageContextWindow carries an incremental context-window fill
	// notification (current size/used token counts), distinct from the
	// turn-level cost/token usage carried on MessageResult.
	MessageContextWindow MessageType = "context_window"
)

// Message is a structured output from an agent process.
type Message struct {
	// Type identifies the kind of message.
	Type MessageType `json:"type"`

	// Content is the text content (for Text, Error, System messages).
	Content string `json:"content,omitempty"`

	// Tool contains tool invocation details (for ToolUse, ToolResult messages).
	Tool *ToolCall `json:"tool,omitempty"`

	// Usage contains token usage data (typically on Text messages).
	Usage *Usage `json:"usage,omitempty"`

	// Raw is the original unparsed JSON from the backend.
	// Backends populate this for pass-through or debugging.
	Raw json.RawMessage `json:"raw,omitempty"`

	// RawLine is the original unparsed output line from stdout.
	// Used for crash-recovery log pipelines and audit logging.
	RawLine string `json:"raw_line,omitempty"`

	// Timestamp is when the message was produced.
	Timestamp time.Time `json:"timestamp"`

	// StopReason carries the model's stop reason, applied via carry-forward
	// onto the MessageResult that ends the turn (see engine/cli/process.go).
	StopReason StopReason `json:"stop_reason,omitempty"`

	// Process carries subprocess metadata, populated on MessageInit only.
	Process *ProcessMeta `json:"process,omitempty"`

	// Init carries handshake metadata (agent name/version, model),
	// populated on MessageInit by engines that perform a handshake.
	Init *InitMeta `json:"init,omitempty"`

	// Result holds terminal-turn fields, populated on MessageResult only.
	Result *ResultFields `json:"result,omitempty"`

	// ResumeID is the backend's own session/thread identifier, captured from
	// MessageInit so a later turn can pass it back via --resume/--continue.
	ResumeID string `json:"resume_id,omitempty"`

	// ErrorCode is a backend-reported error code, populated on MessageError.
	ErrorCode string `json:"error_code,omitempty"`
}

// ResultFields holds the terminal-per-turn summary carried by MessageResult.
type ResultFields struct {
	// NumTurns is the turn count as reported by the backend.
	NumTurns int `json:"num_turns"`

	// DurationMS is the turn's wall-clock duration in milliseconds.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// IsError reports whether the turn ended in an error state.
	IsError bool `json:"is_error,omitempty"`

	// TotalCostUSD is the cumulative cost reported for this turn, if any.
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`

	// ResultText is the backend's final textual result, if provided.
	ResultText string `json:"result,omitempty"`

	// ChildSessionID is the backend's own session identifier, used for
	// --resume/--continue on the next turn.
	ChildSessionID string `json:"session_id,omitempty"`
}

// ToolCall describes a tool invocation by the agent.
type ToolCall struct {
	// Name is the tool identifier.
	Name string `json:"name"`

	// Input is the tool's input parameters as raw JSON.
	Input json.RawMessage `json:"input,omitempty"`

	// Output is the tool's result as raw JSON.
	Output json.RawMessage `json:"output,omitempty"`
}

// Usage contains token usage data from the agent's model.
type Usage struct {
	// InputTokens is the cumulative context window fill.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of tokens generated.
	OutputTokens int `json:"output_tokens"`

	// CacheReadTokens is tokens served from a prompt cache.
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`

	// CacheWriteTokens is tokens written to a prompt cache.
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`

	// ThinkingTokens is tokens spent on extended reasoning.
	ThinkingTokens int `json:"thinking_tokens,omitempty"`

	// CostUSD is the reported monetary cost of the turn, if any.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// ContextSizeTokens is the backend's total context window size,
	// populated on MessageContextWindow only.
	ContextSizeTokens int `json:"context_size_tokens,omitempty"`

	// ContextUsedTokens is the portion of the context window currently
	// filled, populated on MessageContextWindow only. Clamped to
	// ContextSizeTokens if the backend reports an overfilled window.
	ContextUsedTokens int `json:"context_used_tokens,omitempty"`
}
