// Package llm defines the LLMHandler capability the core consumes
// (spec.md §6). The core never imports a concrete provider; it is handed
// a Handler value built by the adapter layer (see internal/llm/eino and
// internal/llm/mock).
package llm

import "context"

// Role identifies a chat message's speaker, mirroring session.Role
// without importing it (this package must stay independent of the core
// so adapters can be swapped freely).
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a chat request.
type Message struct {
	Role    Role
	Content string
}

// ToolDef describes one tool the model may call.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ToolCall is one invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage reports token counters for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatRequest is LLMHandler.Chat's input.
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDef
}

// ChatResponse is LLMHandler.Chat's output.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Handler is the capability the core's EXECUTE stage and Compactor
// consume. Implementations must be idempotent under retry: the Retry
// Manager may call Chat again after a transient failure.
type Handler interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
