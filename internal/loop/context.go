package loop

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentvault/runtime/internal/agentdef"
	"github.com/agentvault/runtime/internal/compact"
	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm"
	"github.com/agentvault/runtime/internal/memory"
	"github.com/agentvault/runtime/internal/session"
)

// Action is contextRequiresAction's verdict.
type Action string

const (
	ActionCompact Action = "compact"
	ActionFlush   Action = "flush"
	ActionNone    Action = "none"
)

// ContextOutput is what CONTEXT hands to EXECUTE/PERSIST.
type ContextOutput struct {
	SystemPrompt    string
	History         []*session.Message // pruned in-memory view; never written back
	ToolDefs        []llm.ToolDef
	MemoryDoc       *memory.Document
	TokenEstimate   int
	NeedsFlush      bool
	NeedsCompaction bool
	Action          Action
	Error           error
}

// contextRequiresAction implements spec.md §4.9's decision function.
func contextRequiresAction(out ContextOutput) Action {
	switch {
	case out.NeedsCompaction:
		return ActionCompact
	case out.NeedsFlush:
		return ActionFlush
	default:
		return ActionNone
	}
}

// context loads the transcript and memory, assembles the system prompt,
// prunes old tool results from the in-memory view, and decides whether a
// flush or compaction is needed.
func (r *Runner) context(in IntakeOutput) ContextOutput {
	cfg := r.Context

	history, corrupted, err := r.Sessions.ReadTranscript(in.AgentPath, in.SessionID)
	if err != nil {
		return ContextOutput{Error: err}
	}
	if corrupted {
		r.publish(event.LoopError, in.RunID, in.SessionID, "", event.LoopErrorData{
			Stage: event.StageContext, Error: "transcript has unparseable lines; they were skipped",
		})
	}
	if cfg.MaxHistoryMessages > 0 && len(history) > cfg.MaxHistoryMessages {
		history = history[len(history)-cfg.MaxHistoryMessages:]
	}

	var memDoc *memory.Document
	if r.Memory != nil {
		memDoc, err = r.Memory.LoadMemory(in.AgentPath)
		if err != nil {
			return ContextOutput{Error: err}
		}
	}

	systemPrompt := buildSystemPrompt(in.AgentDef, memDoc)
	toolDefs := selectToolDefs(in.AgentDef, r.ToolDefs)
	pruned := pruneToolResults(history, cfg.KeepRecentToolResults)

	tokenEstimate := compact.EstimateTranscriptTokens(pruned) + compact.EstimateTokens(systemPrompt)
	usable := cfg.ContextWindow - cfg.ReserveTokens
	needsFlush := usable > 0 && float64(tokenEstimate) > float64(usable)*cfg.FlushThreshold
	needsCompaction := usable > 0 && float64(tokenEstimate) > float64(usable)*cfg.CompactionThreshold

	out := ContextOutput{
		SystemPrompt: systemPrompt, History: pruned, ToolDefs: toolDefs, MemoryDoc: memDoc,
		TokenEstimate: tokenEstimate, NeedsFlush: needsFlush, NeedsCompaction: needsCompaction,
	}
	out.Action = contextRequiresAction(out)

	r.publish(event.LoopContext, in.RunID, in.SessionID, "", event.LoopContextData{
		TokenEstimate: tokenEstimate, HistoryLength: len(pruned),
		NeedsCompaction: needsCompaction, NeedsFlush: needsFlush,
	})

	return out
}

// buildSystemPrompt concatenates base instructions, the named sections,
// a Scope block, a Current Context block, and a Working Memory block
// (spec.md §4.9).
func buildSystemPrompt(def *agentdef.Definition, memDoc *memory.Document) string {
	var b strings.Builder

	if def.Instructions != "" {
		b.WriteString(def.Instructions)
		b.WriteString("\n\n")
	}

	for _, name := range []string{agentdef.SectionIdentity, agentdef.SectionCapabilities, agentdef.SectionGuidelines, agentdef.SectionTools} {
		if content, ok := def.Section(name); ok && content != "" {
			b.WriteString("## " + capitalize(name) + "\n\n" + content + "\n\n")
		}
	}

	b.WriteString("## Scope\n\n" + def.Frontmatter.Scope + "\n\n")
	b.WriteString("## Current Context\n\n" + time.Now().UTC().Format(time.RFC3339) + "\n\n")

	if memDoc != nil && memDoc.TotalSize() > 0 {
		b.WriteString("## Working Memory\n\n" + memDoc.Serialize() + "\n\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// selectToolDefs filters the registry's default definitions down to the
// names the agent's Tools section lists; an empty or absent Tools
// section exposes every registered tool.
func selectToolDefs(def *agentdef.Definition, all []llm.ToolDef) []llm.ToolDef {
	toolsSection, ok := def.Section(agentdef.SectionTools)
	if !ok || strings.TrimSpace(toolsSection) == "" {
		return all
	}
	allowed := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(toolsSection, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t'
	}) {
		allowed[strings.ToLower(strings.TrimSpace(tok))] = true
	}
	var out []llm.ToolDef
	for _, d := range all {
		if allowed[strings.ToLower(d.Name)] {
			out = append(out, d)
		}
	}
	return out
}

// pruneToolResults keeps the most recent keepRecent tool-result messages
// in full and replaces older ones' content with a placeholder tagged
// pruned=true, originalLength=n. Tool-call messages are left intact.
// This never mutates the on-disk transcript, only the returned slice.
func pruneToolResults(history []*session.Message, keepRecent int) []*session.Message {
	toolResultIndices := make([]int, 0)
	for i, m := range history {
		if m.Role == session.RoleTool || (m.Metadata != nil && m.Metadata[session.MetaToolResult] == true) {
			toolResultIndices = append(toolResultIndices, i)
		}
	}
	if keepRecent < 0 {
		keepRecent = 0
	}
	cutoff := len(toolResultIndices) - keepRecent
	pruneSet := make(map[int]bool)
	for i := 0; i < cutoff; i++ {
		pruneSet[toolResultIndices[i]] = true
	}
	if len(pruneSet) == 0 {
		return history
	}

	out := make([]*session.Message, len(history))
	for i, m := range history {
		if !pruneSet[i] {
			out[i] = m
			continue
		}
		clone := *m
		originalLength := len(clone.Content)
		clone.Content = fmt.Sprintf("[pruned tool result, %d bytes]", originalLength)
		meta := make(map[string]any, len(m.Metadata)+2)
		for k, v := range m.Metadata {
			meta[k] = v
		}
		meta[session.MetaPruned] = true
		meta[session.MetaOriginalLength] = originalLength
		clone.Metadata = meta
		out[i] = &clone
	}
	return out
}
