package event

// Type identifies a loop/tool/llm/memory event, per spec.md §6.
type Type string

const (
	LoopStart     Type = "loop:start"
	LoopContext   Type = "loop:context"
	LoopExecute   Type = "loop:execute"
	LoopPersist   Type = "loop:persist"
	LoopEnd       Type = "loop:end"
	LoopError     Type = "loop:error"
	ToolStart     Type = "tool:start"
	ToolEnd       Type = "tool:end"
	LLMStart      Type = "llm:start"
	LLMEnd        Type = "llm:end"
	MemoryRead    Type = "memory:read"
	MemoryWrite   Type = "memory:write"
	MemoryFlush   Type = "memory:flush"
	MemoryCompact Type = "memory:compact"
)

// Envelope is every event's common header: all events carry
// {runId, sessionId, agentId, timestamp} per spec.md §4/§6.
type Envelope struct {
	Type      Type   `json:"type"`
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Data      any    `json:"data"`
}

// LoopStartData is the payload for LoopStart.
type LoopStartData struct {
	Message string `json:"message"`
}

// LoopContextData is the payload for LoopContext.
type LoopContextData struct {
	TokenEstimate   int  `json:"tokenEstimate"`
	HistoryLength   int  `json:"historyLength"`
	NeedsCompaction bool `json:"needsCompaction"`
	NeedsFlush      bool `json:"needsFlush"`
}

// Usage mirrors spec.md §3's token counters.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// LoopExecuteData is the payload for LoopExecute.
type LoopExecuteData struct {
	ToolCallCount int   `json:"toolCallCount"`
	Usage         Usage `json:"usage"`
}

// LoopPersistData is the payload for LoopPersist.
type LoopPersistData struct {
	TranscriptUpdated bool `json:"transcriptUpdated"`
	SessionUpdated    bool `json:"sessionUpdated"`
	MemoryUpdated     bool `json:"memoryUpdated"`
	LockReleased      bool `json:"lockReleased"`
}

// LoopEndData is the payload for LoopEnd.
type LoopEndData struct {
	Success  bool  `json:"success"`
	Duration int64 `json:"duration"` // milliseconds
	Usage    Usage `json:"usage"`
}

// Stage identifies which loop stage produced a LoopError.
type Stage string

const (
	StageIntake  Stage = "intake"
	StageContext Stage = "context"
	StageExecute Stage = "execute"
	StagePersist Stage = "persist"
)

// LoopErrorData is the payload for LoopError.
type LoopErrorData struct {
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ToolStartData is the payload for ToolStart.
type ToolStartData struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

// ToolEndData is the payload for ToolEnd.
type ToolEndData struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Duration   int64  `json:"duration"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// LLMStartData is the payload for LLMStart.
type LLMStartData struct {
	Iteration int `json:"iteration"`
}

// LLMEndData is the payload for LLMEnd.
type LLMEndData struct {
	Iteration    int   `json:"iteration"`
	HasToolCalls bool  `json:"hasToolCalls"`
	Usage        Usage `json:"usage"`
}

// MemoryReadData is the payload for MemoryRead.
type MemoryReadData struct {
	MemoryPath   string `json:"memoryPath"`
	SectionCount int    `json:"sectionCount"`
	TotalSize    int    `json:"totalSize"`
	Success      bool   `json:"success"`
}

// MemoryWriteData is the payload for MemoryWrite.
type MemoryWriteData struct {
	MemoryPath string `json:"memoryPath"`
	Section    string `json:"section"`
	SizeUsed   int    `json:"sizeUsed"`
	SizeLimit  int    `json:"sizeLimit"`
	Truncated  bool   `json:"truncated"`
	Success    bool   `json:"success"`
}

// FlushReason enumerates why a memory flush happened.
type FlushReason string

const (
	FlushCompactionPending FlushReason = "compaction_pending"
	FlushSessionEnd        FlushReason = "session_end"
	FlushManual            FlushReason = "manual"
	FlushThreshold         FlushReason = "threshold"
)

// MemoryFlushData is the payload for MemoryFlush.
type MemoryFlushData struct {
	Reason       FlushReason `json:"reason"`
	UpdatesCount int         `json:"updatesCount"`
	NoReply      bool        `json:"noReply"`
}

// CompactionMethod enumerates how a compaction summary was produced.
type CompactionMethod string

const (
	CompactionLLM   CompactionMethod = "llm"
	CompactionLocal CompactionMethod = "local"
)

// MemoryCompactData is the payload for MemoryCompact.
type MemoryCompactData struct {
	OriginalCount  int              `json:"originalCount"`
	CompactedCount int              `json:"compactedCount"`
	TokensUsed     int              `json:"tokensUsed"`
	Method         CompactionMethod `json:"method"`
}
