package mailbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agentvault/runtime/internal/protocol"
)

func TestWatcher_NotifiesOnNewMessage(t *testing.T) {
	root := t.TempDir()
	senderDir := filepath.Join(root, "agent_a")
	recipientDir := filepath.Join(root, "agent_b")

	w, err := NewWatcher(recipientDir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	w.Start()

	msg := protocol.NewRequest(NewMessageID(), "agent_a", "agent_b", "ping", "Hello", nil, protocol.PriorityNormal)
	if res := SendAgentMessage(msg, senderDir, recipientDir); !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}

	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification after a message was delivered")
	}
}

func TestWatcher_StopIsIdempotentAndSafeBeforeStart(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(filepath.Join(root, "agent_c"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}
