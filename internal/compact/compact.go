// Package compact implements the Compactor: token-budgeted transcript
// summarisation, per spec.md §4.6.
package compact

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm"
	"github.com/agentvault/runtime/internal/session"
)

// ImportantMarkers is the closed keyword vocabulary a message is checked
// against to decide whether it survives compaction verbatim. Overridable
// per spec.md §9's open question about configurability; the default is
// exactly the spec's list.
var ImportantMarkers = []string{
	"important", "remember", "note:", "key point", "critical",
	"decision:", "action:", "todo:", "agreed:", "confirmed:",
}

// Budget parameterizes one compaction decision.
type Budget struct {
	MaxTotalTokens    int
	SummaryTokens     int
	PreserveRecent    int
	PreserveImportant bool
	// LLMHandler, when non-nil, is used to produce the summary; otherwise
	// the local deterministic summariser runs.
	LLMHandler llm.Handler
	// ImportantMarkers overrides the package default when non-nil.
	ImportantMarkers []string
}

// EstimateTokens is the shared 4-characters-per-token heuristic: ceil(len
// / 4) + 4 per message (role overhead + content), per spec.md §4.6.
func EstimateTokens(content string) int {
	return int(math.Ceil(float64(len(content))/4)) + 4
}

// EstimateTranscriptTokens sums EstimateTokens across every message.
func EstimateTranscriptTokens(messages []*session.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// NeedsCompaction reports whether messages' estimated token total exceeds
// budget.MaxTotalTokens.
func NeedsCompaction(messages []*session.Message, budget Budget) bool {
	return EstimateTranscriptTokens(messages) > budget.MaxTotalTokens
}

// Result is Compact's return shape.
type Result struct {
	Messages       []*session.Message
	OriginalCount  int
	CompactedCount int
	TokensUsed     int
	Method         event.CompactionMethod
}

// Compact summarises messages per budget. If compaction is not needed the
// input is returned unchanged (idempotence, spec.md §8 property 6).
func Compact(ctx context.Context, messages []*session.Message, budget Budget, runID, sessionID, agentID string, bus *event.Bus) (Result, error) {
	if !NeedsCompaction(messages, budget) {
		return Result{Messages: messages, OriginalCount: len(messages), CompactedCount: len(messages)}, nil
	}

	preserveRecent := budget.PreserveRecent
	if preserveRecent <= 0 || preserveRecent > len(messages) {
		preserveRecent = len(messages)
	}
	splitAt := len(messages) - preserveRecent
	toCompact := messages[:splitAt]
	recent := messages[splitAt:]

	markers := ImportantMarkers
	if budget.ImportantMarkers != nil {
		markers = budget.ImportantMarkers
	}

	var important []*session.Message
	if budget.PreserveImportant {
		for _, m := range toCompact {
			if isImportant(m.Content, markers) {
				important = append(important, m)
			}
		}
	}

	summaryText, method, tokensUsed, err := summarize(ctx, toCompact, budget)
	if err != nil {
		return Result{}, err
	}

	summaryMsg := &session.Message{
		Role:      session.RoleSystem,
		Content:   summaryText,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Metadata: map[string]any{
			session.MetaType:   session.TypeCompactionSummary,
			session.MetaMethod: string(method),
		},
	}

	out := make([]*session.Message, 0, 1+len(important)+len(recent))
	out = append(out, summaryMsg)
	out = append(out, important...)
	out = append(out, recent...)

	if bus != nil {
		bus.Publish(event.Envelope{
			Type: event.MemoryCompact, RunID: runID, SessionID: sessionID, AgentID: agentID,
			Timestamp: time.Now().UnixMilli(),
			Data: event.MemoryCompactData{
				OriginalCount: len(messages), CompactedCount: len(out),
				TokensUsed: tokensUsed, Method: method,
			},
		})
	}

	return Result{
		Messages: out, OriginalCount: len(messages), CompactedCount: len(out),
		TokensUsed: tokensUsed, Method: method,
	}, nil
}

func isImportant(content string, markers []string) bool {
	lower := strings.ToLower(content)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func summarize(ctx context.Context, messages []*session.Message, budget Budget) (text string, method event.CompactionMethod, tokensUsed int, err error) {
	if budget.LLMHandler != nil {
		prompt := buildSummaryPrompt(messages)
		resp, err := budget.LLMHandler.Chat(ctx, llm.ChatRequest{
			SystemPrompt: "You are a conversation summarizer. Produce a concise summary that preserves key context for continuing the discussion.",
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		})
		if err != nil {
			return "", "", 0, err
		}
		return resp.Content, event.CompactionLLM, resp.Usage.TotalTokens, nil
	}
	return localSummary(messages), event.CompactionLocal, EstimateTranscriptTokens(messages), nil
}

func buildSummaryPrompt(messages []*session.Message) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation, preserving key decisions, outcomes, and context:\n\n")
	for _, m := range messages {
		b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}
	return b.String()
}

// localSummary is the deterministic fallback summariser: same input
// messages always produce identical output bytes (spec.md §8 property 7).
func localSummary(messages []*session.Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Compacted %d messages.\n", len(messages)))

	if len(messages) > 0 {
		b.WriteString(fmt.Sprintf("Time range: %s to %s\n", messages[0].Timestamp, messages[len(messages)-1].Timestamp))
	}

	keyPoints := extractKeyPoints(messages)
	if len(keyPoints) > 0 {
		b.WriteString("Key points:\n")
		for _, kp := range keyPoints {
			b.WriteString("- " + kp + "\n")
		}
	}

	topics := topTopicWords(messages, 10)
	if len(topics) > 0 {
		b.WriteString("Topics: " + strings.Join(topics, ", ") + "\n")
	}

	summary := b.String()
	if len(summary) > 10_000 {
		summary = summary[:8_000] + "\n\n[truncated]"
	}
	return summary
}

func extractKeyPoints(messages []*session.Message) []string {
	var points []string
	for _, m := range messages {
		if isImportant(m.Content, ImportantMarkers) {
			line := strings.TrimSpace(strings.SplitN(m.Content, "\n", 2)[0])
			if len(line) > 200 {
				line = line[:200]
			}
			points = append(points, line)
		}
	}
	return points
}

func topTopicWords(messages []*session.Message, n int) []string {
	counts := make(map[string]int)
	for _, m := range messages {
		for _, word := range strings.Fields(m.Content) {
			w := strings.ToLower(strings.Trim(word, ".,!?;:\"'()[]{}"))
			if len(w) < 4 {
				continue
			}
			counts[w]++
		}
	}

	type pair struct {
		word  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for w, c := range counts {
		if c > 1 {
			pairs = append(pairs, pair{w, c})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].word < pairs[j].word
	})

	out := make([]string, 0, n)
	for i := 0; i < len(pairs) && i < n; i++ {
		out = append(out, pairs[i].word)
	}
	return out
}
