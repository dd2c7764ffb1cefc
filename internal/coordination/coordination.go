// Package coordination implements the higher-level multi-agent primitives
// built on top of Mailbox: delegation, handoff, distribute/collect, and
// skill chains (spec.md §4.8).
package coordination

import (
	"fmt"
	"sort"
	"time"

	"github.com/agentvault/runtime/internal/mailbox"
	"github.com/agentvault/runtime/internal/protocol"
)

// PollInterval is how often Collect polls the initiator's inbox.
const PollInterval = 200 * time.Millisecond

// DelegateResult is Delegate's return shape.
type DelegateResult struct {
	Success      bool
	DelegationID string
	Duration     time.Duration
	Error        string
}

// Delegate sends a delegation request and returns immediately; it does
// not wait for a reply.
func Delegate(initiatorDir, initiatorID, targetDir, targetID, task string, taskContext map[string]any, deadline *time.Time, expectResponse bool) DelegateResult {
	start := time.Now()
	delegationID := mailbox.NewMessageID()

	payload := map[string]any{
		"delegationId":   delegationID,
		"task":           task,
		"context":        taskContext,
		"expectResponse": expectResponse,
	}
	if deadline != nil {
		payload["deadline"] = deadline.UnixMilli()
	}

	msg := protocol.NewRequest(mailbox.NewMessageID(), initiatorID, targetID, "delegate",
		"Delegation: "+task, payload, protocol.PriorityNormal)

	res := mailbox.SendAgentMessage(msg, initiatorDir, targetDir)
	return DelegateResult{
		Success: res.Success, DelegationID: delegationID,
		Duration: time.Since(start), Error: res.Error,
	}
}

// HandoffContext is the state transferred between agents on a Handoff.
type HandoffContext struct {
	Memory              string   `json:"memory"`
	CurrentState        string   `json:"currentState"`
	PendingTasks        []string `json:"pendingTasks"`
	ImportantNotes      []string `json:"importantNotes"`
	ConversationSummary string   `json:"conversationSummary"`
}

// Handoff sends a high-priority handoff request carrying the transferred
// context.
func Handoff(initiatorDir, initiatorID, targetDir, targetID, reason string, ctx HandoffContext) DelegateResult {
	start := time.Now()
	msg := protocol.NewRequest(mailbox.NewMessageID(), initiatorID, targetID, "handoff",
		"Handoff: "+reason, ctx, protocol.PriorityHigh)

	res := mailbox.SendAgentMessage(msg, initiatorDir, targetDir)
	return DelegateResult{Success: res.Success, Duration: time.Since(start), Error: res.Error}
}

// AgentTarget names one delegation target for Distribute.
type AgentTarget struct {
	AgentID string
	Dir     string
}

// SubtaskFunc generates the task description for one target agent.
type SubtaskFunc func(agentID string) string

// MultiAgentTask is Distribute's return snapshot.
type MultiAgentTask struct {
	Results map[string]DelegateResult
	Order   []string
}

// Distribute delegates a generated subtask to each target in sequence.
func Distribute(initiatorDir, initiatorID string, targets []AgentTarget, subtask SubtaskFunc) MultiAgentTask {
	task := MultiAgentTask{Results: make(map[string]DelegateResult)}
	for _, target := range targets {
		res := Delegate(initiatorDir, initiatorID, target.Dir, target.AgentID, subtask(target.AgentID), nil, nil, true)
		task.Results[target.AgentID] = res
		task.Order = append(task.Order, target.AgentID)
	}
	return task
}

// CollectResult is one harvested response, tagged with its source agent.
type CollectResult struct {
	AgentID  string
	Envelope protocol.Envelope
}

// Collect polls initiatorDir's inbox every PollInterval, up to timeout,
// harvesting response envelopes whose From matches an expected agent and
// marking each processed. Agents that never respond are reported as
// errors. Ordering is by arrival, ties broken by agent id.
func Collect(initiatorDir string, expectedAgents []string, timeout time.Duration) ([]CollectResult, []error) {
	remaining := make(map[string]bool, len(expectedAgents))
	for _, a := range expectedAgents {
		remaining[a] = true
	}

	var results []CollectResult
	deadline := time.Now().Add(timeout)

	// Best-effort: wake as soon as the inbox changes rather than riding
	// out the full poll tick. A watcher that fails to start (e.g. the
	// platform's inotify/kqueue limit is exhausted) just falls back to
	// the poll loop below, which remains the correctness guarantee.
	var changed <-chan struct{}
	if w, err := mailbox.NewWatcher(initiatorDir); err == nil {
		w.Start()
		defer w.Stop()
		changed = w.Changed()
	}

	for time.Now().Before(deadline) && len(remaining) > 0 {
		envelopes, err := mailbox.ReceiveMessages(initiatorDir, mailbox.ReceiveOptions{Type: protocol.TypeResponse})
		if err == nil {
			// ReceiveMessages returns newest first; re-sort oldest first
			// for arrival order before consuming.
			sort.SliceStable(envelopes, func(i, j int) bool {
				return envelopes[i].Message.Timestamp < envelopes[j].Message.Timestamp
			})
			for _, env := range envelopes {
				if !remaining[env.Message.From] {
					continue
				}
				if env.Message.Status == protocol.StatusProcessed {
					continue
				}
				results = append(results, CollectResult{AgentID: env.Message.From, Envelope: env})
				mailbox.MarkAsProcessed(initiatorDir, env.Message.ID)
				delete(remaining, env.Message.From)
			}
		}
		if len(remaining) == 0 {
			break
		}
		if changed != nil {
			select {
			case <-changed:
			case <-time.After(PollInterval):
			}
		} else {
			time.Sleep(PollInterval)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Envelope.Message.Timestamp != results[j].Envelope.Message.Timestamp {
			return results[i].Envelope.Message.Timestamp < results[j].Envelope.Message.Timestamp
		}
		return results[i].AgentID < results[j].AgentID
	})

	var errs []error
	missing := make([]string, 0, len(remaining))
	for agent := range remaining {
		missing = append(missing, agent)
	}
	sort.Strings(missing)
	for _, agent := range missing {
		errs = append(errs, fmt.Errorf("agent %s did not respond within %s", agent, timeout))
	}

	return results, errs
}

// SkillStep is one invocation in a SkillChain.
type SkillStep struct {
	Name string
	Run  func() (any, error)
}

// SkillStepResult is one step's outcome.
type SkillStepResult struct {
	Name   string
	Result any
	Error  error
}

// SkillChain invokes steps sequentially; if a step fails, the chain stops
// and returns the partial results collected so far.
func SkillChain(steps []SkillStep) []SkillStepResult {
	results := make([]SkillStepResult, 0, len(steps))
	for _, step := range steps {
		res, err := step.Run()
		results = append(results, SkillStepResult{Name: step.Name, Result: res, Error: err})
		if err != nil {
			break
		}
	}
	return results
}
