// Package session implements the Session Store, the in-process Session
// Lock, and the append-only transcript stream (spec.md §4.3/§4.4).
package session

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

// Session is the persisted session metadata record.
type Session struct {
	ID           string `json:"id"`
	AgentID      string `json:"agentId"`
	Status       Status `json:"status"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	MessageCount int    `json:"messageCount"`
	Title        string `json:"title,omitempty"`
	// ParentID, when set, marks this session as a fork of another.
	ParentID string `json:"parentId,omitempty"`
}

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Recognised Message.Metadata keys (spec.md §3).
const (
	MetaToolCalls       = "toolCalls"
	MetaToolCallID      = "toolCallId"
	MetaToolName        = "toolName"
	MetaDuration        = "duration"
	MetaToolResult      = "toolResult"
	MetaUsage           = "usage"
	MetaType            = "type"
	MetaMethod          = "method"
	MetaPruned          = "pruned"
	MetaOriginalLength  = "originalLength"
)

// TypeCompactionSummary is the Metadata[MetaType] tag a compaction summary
// message carries.
const TypeCompactionSummary = "compaction_summary"

// Usage mirrors the token counters threaded through loop events.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Message is one transcript entry. It is append-only on disk: once
// flushed, a line is never rewritten.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"` // ISO-8601
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolCall is one invocation the assistant asked the executor to perform.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
