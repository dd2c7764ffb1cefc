package loop

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm"
	"github.com/agentvault/runtime/internal/llm/mock"
	"github.com/agentvault/runtime/internal/memory"
	"github.com/agentvault/runtime/internal/retry"
	"github.com/agentvault/runtime/internal/session"
	"github.com/agentvault/runtime/internal/tool"
)

func newTestAgent(t *testing.T, vaultPath, agentID string) string {
	t.Helper()
	agentPath := filepath.Join(vaultPath, "agents", agentID)
	if err := os.MkdirAll(agentPath, 0o755); err != nil {
		t.Fatal(err)
	}
	def := "---\nid: " + agentID + "\nname: Test Agent\ntype: project\nscope: " + agentPath + "\n---\n\nYou are a helpful test agent.\n"
	if err := os.WriteFile(filepath.Join(agentPath, "AGENT.md"), []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}
	return agentPath
}

func newTestRunner(llmHandler llm.Handler) *Runner {
	bus := event.NewBus()
	sessions := session.NewStore(nil)
	locks := session.NewLockTable()
	mem := memory.NewStore(bus)
	retryMgr := retry.New(retry.Config{MaxAttempts: 1})
	tools := tool.NewRegistry(nil)
	return NewRunner(sessions, locks, mem, bus, retryMgr, llmHandler, tools, tool.DefaultDefs())
}

func TestRun_HappyPath(t *testing.T) {
	vault := t.TempDir()
	newTestAgent(t, vault, "agent_admin")

	handler := mock.New(llm.ChatResponse{Content: "Hi!", Usage: llm.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}})
	runner := newTestRunner(handler)

	out := runner.Run(context.Background(), Input{Message: "Hello", VaultPath: vault, AgentID: "agent_admin", NewSession: true})

	if !out.Success {
		t.Fatalf("expected success, got errors=%v", out.Errors)
	}
	if out.Response != "Hi!" {
		t.Errorf("expected response 'Hi!', got %q", out.Response)
	}
	if out.Usage.TotalTokens != 30 {
		t.Errorf("expected totalTokens=30, got %d", out.Usage.TotalTokens)
	}

	agentPath := filepath.Join(vault, "agents", "agent_admin")
	sess, err := runner.Sessions.GetSession(agentPath, out.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("expected messageCount=2, got %d", sess.MessageCount)
	}
	if _, held := runner.Locks.Holder(out.SessionID); held {
		t.Error("expected the lock to be released")
	}
}

func TestRun_ToolLoopOrdersTranscriptCorrectly(t *testing.T) {
	vault := t.TempDir()
	newTestAgent(t, vault, "agent_admin")

	handler := mock.New(
		llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read", Arguments: map[string]any{"path": "t.txt"}}}},
		llm.ChatResponse{Content: "File: data"},
	)
	runner := newTestRunner(handler)
	agentPath := filepath.Join(vault, "agents", "agent_admin")
	os.WriteFile(filepath.Join(agentPath, "t.txt"), []byte("data"), 0o644)

	out := runner.Run(context.Background(), Input{Message: "read the file", VaultPath: vault, AgentID: "agent_admin", NewSession: true})

	if out.Response != "File: data" {
		t.Fatalf("expected final response 'File: data', got %q", out.Response)
	}

	messages, _, err := runner.Sessions.ReadTranscript(agentPath, out.SessionID)
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 transcript messages, got %d", len(messages))
	}
	wantRoles := []session.Role{session.RoleUser, session.RoleAssistant, session.RoleSystem, session.RoleAssistant}
	for i, want := range wantRoles {
		if messages[i].Role != want {
			t.Errorf("message %d: expected role %s, got %s", i, want, messages[i].Role)
		}
	}
	if messages[2].Metadata[session.MetaToolResult] != true {
		t.Errorf("expected message 2 to be tagged as a tool result, got %v", messages[2].Metadata)
	}
}

func TestRun_MaxToolIterationsReached(t *testing.T) {
	vault := t.TempDir()
	newTestAgent(t, vault, "agent_admin")

	alwaysToolCalls := llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read", Arguments: map[string]any{"path": "t.txt"}}}}
	handler := mock.New(alwaysToolCalls, alwaysToolCalls, alwaysToolCalls)
	runner := newTestRunner(handler)
	runner.Execute.MaxToolIterations = 3

	out := runner.Run(context.Background(), Input{Message: "loop forever", VaultPath: vault, AgentID: "agent_admin", NewSession: true})

	if out.Response != "[Max tool iterations reached]" {
		t.Errorf("expected the max-iterations literal, got %q", out.Response)
	}
	// 3 tool-iteration calls, plus one best-effort title-generation call
	// PERSIST makes on the session's first completed response.
	if handler.CallCount() != 4 {
		t.Errorf("expected 3 tool-loop calls plus 1 title call, got %d", handler.CallCount())
	}
	calls := handler.Calls()
	if calls[3].SystemPrompt != titleSystemPrompt {
		t.Errorf("expected the 4th call to be title generation, got systemPrompt=%q", calls[3].SystemPrompt)
	}
}

func TestRun_LockConflictThenRetrySucceeds(t *testing.T) {
	vault := t.TempDir()
	agentPath := newTestAgent(t, vault, "agent_admin")

	handler := mock.New(llm.ChatResponse{Content: "ok"})
	runner := newTestRunner(handler)

	sess, err := runner.Sessions.CreateSession(agentPath, "agent_admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := runner.Locks.Acquire(sess.ID, "other-run", 0); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	out := runner.Run(context.Background(), Input{Message: "hi", VaultPath: vault, AgentID: "agent_admin", SessionID: sess.ID})
	if out.Success {
		t.Fatal("expected the conflicting turn to fail")
	}
	if len(out.Errors) == 0 {
		t.Fatal("expected a LOCK_HELD error")
	}

	if !runner.Locks.Release(sess.ID, "other-run") {
		t.Fatal("expected the first turn's lock to release")
	}

	out2 := runner.Run(context.Background(), Input{Message: "hi", VaultPath: vault, AgentID: "agent_admin", SessionID: sess.ID})
	if !out2.Success {
		t.Fatalf("expected the retried turn to succeed, got errors=%v", out2.Errors)
	}
}

// panickingHandler implements llm.Handler by panicking on every call,
// standing in for a buggy LLMHandler implementation.
type panickingHandler struct{}

func (panickingHandler) Chat(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
	panic("boom: simulated handler bug")
}

func TestRun_PanicInExecuteStageStillReleasesLockAndPersists(t *testing.T) {
	vault := t.TempDir()
	newTestAgent(t, vault, "agent_admin")

	runner := newTestRunner(panickingHandler{})

	out := runner.Run(context.Background(), Input{Message: "hi", VaultPath: vault, AgentID: "agent_admin", NewSession: true})

	if out.Success {
		t.Fatal("expected the panicking turn to report failure")
	}
	if out.ErrorCode == "" {
		t.Error("expected a non-empty ErrorCode")
	}
	if len(out.Errors) == 0 {
		t.Fatal("expected the recovered panic to appear in Errors")
	}
	if _, held := runner.Locks.Holder(out.SessionID); held {
		t.Error("expected the lock to be released even after a panicking stage")
	}

	agentPath := filepath.Join(vault, "agents", "agent_admin")
	sess, err := runner.Sessions.GetSession(agentPath, out.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.MessageCount == 0 {
		t.Error("expected PERSIST to still have run and recorded the user message")
	}
}

func TestRun_AbortedTurnStillReleasesLock(t *testing.T) {
	vault := t.TempDir()
	newTestAgent(t, vault, "agent_admin")

	handler := mock.New(llm.ChatResponse{Content: "unreachable"})
	runner := newTestRunner(handler)

	abortCh := make(chan struct{})
	close(abortCh)

	out := runner.Run(context.Background(), Input{Message: "hi", VaultPath: vault, AgentID: "agent_admin", NewSession: true, Abort: abortCh})
	if !out.Aborted {
		t.Fatal("expected the turn to report aborted=true")
	}
	if out.Response != "[Aborted]" {
		t.Errorf("expected response '[Aborted]', got %q", out.Response)
	}
	if _, held := runner.Locks.Holder(out.SessionID); held {
		t.Error("expected the lock to be released even after an abort")
	}
}
