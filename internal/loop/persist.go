package loop

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm"
	"github.com/agentvault/runtime/internal/memory"
	"github.com/agentvault/runtime/internal/session"
	"github.com/agentvault/runtime/internal/tool"
)

// PersistOutput reports what PERSIST actually did (spec.md §4.9).
type PersistOutput struct {
	TranscriptUpdated bool
	SessionUpdated    bool
	MemoryUpdated     bool
	LockReleased      bool
	Errors            []string
	AppendedCount     int
}

// IsPersistSuccess reports whether every flag is true and no error was
// recorded, per spec.md §4.9.
func (p PersistOutput) IsPersistSuccess() bool {
	return p.TranscriptUpdated && p.SessionUpdated && p.MemoryUpdated && p.LockReleased && len(p.Errors) == 0
}

// HasCriticalFailures reports whether the lock failed to release or the
// transcript failed to update, per spec.md §4.9.
func (p PersistOutput) HasCriticalFailures() bool {
	return !p.LockReleased || !p.TranscriptUpdated
}

// persist appends the turn's messages to the transcript, patches session
// metadata, applies any memory updates, and always releases the session
// lock last, per spec.md §4.9's guaranteed-exit contract.
func (r *Runner) persist(in IntakeOutput, ctxOut ContextOutput, execOut ExecuteOutput, turn Input) PersistOutput {
	var out PersistOutput

	// INTAKE never resolved a session: nothing to append, patch, or
	// unlock. This only happens when INTAKE itself failed.
	if in.Session == nil {
		if in.Error != nil {
			out.Errors = append(out.Errors, in.Error.Error())
		}
		out.LockReleased = true // nothing was ever acquired
		return out
	}

	appended := 0
	appendMsg := func(partial session.PartialMessage) {
		if _, err := r.Sessions.AppendToTranscript(in.AgentPath, in.SessionID, partial); err != nil {
			out.Errors = append(out.Errors, err.Error())
			return
		}
		appended++
	}

	appendMsg(session.PartialMessage{Role: session.RoleUser, Content: turn.Message})

	if len(execOut.ToolCalls) > 0 {
		toolCallsMeta := make([]map[string]any, 0, len(execOut.ToolCalls))
		for _, tc := range execOut.ToolCalls {
			toolCallsMeta = append(toolCallsMeta, map[string]any{"id": tc.ID, "name": tc.Name, "arguments": tc.Arguments})
		}
		appendMsg(session.PartialMessage{
			Role: session.RoleAssistant, Content: "",
			Metadata: map[string]any{session.MetaToolCalls: toolCallsMeta},
		})

		for _, res := range execOut.ToolResults {
			appendMsg(session.PartialMessage{
				Role:    session.RoleSystem,
				Content: resultContent(res),
				Metadata: map[string]any{
					session.MetaToolResult: true,
					session.MetaToolCallID: res.ToolCallID,
					session.MetaToolName:   res.Name,
					session.MetaDuration:   res.Duration.Milliseconds(),
				},
			})
		}
	}

	if !execOut.Aborted && execOut.Error == nil {
		appendMsg(session.PartialMessage{
			Role: session.RoleAssistant, Content: execOut.Response,
			Metadata: map[string]any{session.MetaUsage: execOut.Usage},
		})
	}

	out.TranscriptUpdated = appended > 0
	out.AppendedCount = appended

	newCount := in.Session.MessageCount + appended
	if _, err := r.Sessions.UpdateSession(in.AgentPath, in.SessionID, session.Patch{MessageCount: &newCount}); err != nil {
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.SessionUpdated = true
	}

	// Best-effort: give the session a short title on its first completed
	// response. Failure here never fails the turn (spec.md §4.9's
	// "PERSIST never blocks on non-essential writes").
	if in.Session.Title == "" && in.Session.ParentID == "" && !execOut.Aborted && execOut.Error == nil {
		r.ensureTitle(in, turn.Message)
	}

	// Memory write failures are non-fatal (spec.md §4.9).
	if turn.FlushMemory && len(turn.MemoryUpdates) > 0 && r.Memory != nil {
		updates := make([]memory.Update, len(turn.MemoryUpdates))
		for i, u := range turn.MemoryUpdates {
			updates[i] = memory.Update{Title: u.Title, Content: u.Content, Append: u.Append}
		}
		if _, err := r.Memory.ApplyMemoryUpdates(in.AgentPath, in.RunID, in.SessionID, in.Session.AgentID, updates); err != nil {
			out.Errors = append(out.Errors, "memory flush: "+err.Error())
		} else {
			out.MemoryUpdated = true
		}
		r.publish(event.MemoryFlush, in.RunID, in.SessionID, in.Session.AgentID, event.MemoryFlushData{
			Reason: event.FlushThreshold, UpdatesCount: len(updates),
		})
	} else {
		out.MemoryUpdated = true // nothing requested counts as satisfied
	}

	out.LockReleased = r.Locks.Release(in.SessionID, in.RunID)

	r.publish(event.LoopPersist, in.RunID, in.SessionID, "", event.LoopPersistData{
		TranscriptUpdated: out.TranscriptUpdated, SessionUpdated: out.SessionUpdated,
		MemoryUpdated: out.MemoryUpdated, LockReleased: out.LockReleased,
	})

	return out
}

const titleSystemPrompt = `You are a title generator. Output ONLY a short session title, nothing else.
A single line, at most 50 characters, no quotes, no trailing punctuation.`

// ensureTitle asks the LLMHandler for a short title from the turn's first
// user message and sets it via UpdateSession, grounded on the teacher's
// session/title.go. Best-effort: any failure is swallowed, never
// surfaced to PersistOutput.Errors.
func (r *Runner) ensureTitle(in IntakeOutput, userMessage string) {
	if r.LLM == nil {
		return
	}
	resp, err := r.LLM.Chat(context.Background(), llm.ChatRequest{
		SystemPrompt: titleSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Generate a title for this conversation:\n\n" + userMessage}},
	})
	if err != nil {
		return
	}
	title := firstNonEmptyLine(resp.Content)
	if title == "" {
		return
	}
	if len(title) > 80 {
		title = title[:77] + "..."
	}
	r.Sessions.UpdateSession(in.AgentPath, in.SessionID, session.Patch{Title: &title})
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func resultContent(res tool.Result) string {
	if res.Error != "" {
		return "Error: " + res.Error
	}
	data, err := json.Marshal(res.Result)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}
