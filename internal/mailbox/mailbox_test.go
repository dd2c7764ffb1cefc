package mailbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentvault/runtime/internal/protocol"
)

func TestSendAndReceive(t *testing.T) {
	root := t.TempDir()
	senderDir := filepath.Join(root, "agent_a")
	recipientDir := filepath.Join(root, "agent_b")
	os.MkdirAll(senderDir, 0o755)
	os.MkdirAll(recipientDir, 0o755)

	msg := protocol.NewRequest(NewMessageID(), "agent_a", "agent_b", "ping", "Hello", nil, protocol.PriorityNormal)

	res := SendAgentMessage(msg, senderDir, recipientDir)
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}

	envelopes, err := ReceiveMessages(recipientDir, ReceiveOptions{})
	if err != nil {
		t.Fatalf("ReceiveMessages: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envelopes))
	}
	if envelopes[0].DeliveredAt == nil {
		t.Error("expected deliveredAt to be set")
	}
	if envelopes[0].Message.Status != protocol.StatusDelivered {
		t.Errorf("expected status delivered, got %s", envelopes[0].Message.Status)
	}

	senderLog, _ := os.ReadFile(logPath(senderDir))
	if !strings.Contains(string(senderLog), "sent") {
		t.Error("sender log should contain a sent line")
	}
	recipientLog, _ := os.ReadFile(logPath(recipientDir))
	if !strings.Contains(string(recipientLog), "received") {
		t.Error("recipient log should contain a received line")
	}
}

func TestSendFailsWhenRecipientMissing(t *testing.T) {
	root := t.TempDir()
	senderDir := filepath.Join(root, "agent_a")
	os.MkdirAll(senderDir, 0o755)

	msg := protocol.NewRequest(NewMessageID(), "agent_a", "agent_b", "ping", "Hello", nil, protocol.PriorityNormal)
	res := SendAgentMessage(msg, senderDir, filepath.Join(root, "agent_missing"))
	if res.Success {
		t.Fatal("expected delivery to fail for a missing recipient directory")
	}
}

func TestStatusProgressionIsMonotone(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "agent_b")
	os.MkdirAll(agentDir, 0o755)

	msg := protocol.NewRequest(NewMessageID(), "agent_a", "agent_b", "ping", "Hello", nil, protocol.PriorityNormal)
	SendAgentMessage(msg, root, agentDir)

	if err := MarkAsProcessed(agentDir, msg.ID); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}
	if err := MarkAsRead(agentDir, msg.ID); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}

	env, ok, _ := GetMessageByID(agentDir, msg.ID)
	if !ok {
		t.Fatal("expected to find the message")
	}
	if env.Message.Status != protocol.StatusProcessed {
		t.Errorf("a later MarkAsRead must not regress status from processed, got %s", env.Message.Status)
	}
	if env.ProcessedAt == nil {
		t.Error("processedAt must remain set")
	}
}

func TestCreateReplyCorrelatesToRequest(t *testing.T) {
	req := protocol.NewRequest("req-1", "agent_a", "agent_b", "ping", "Hello", nil, protocol.PriorityNormal)
	reply := protocol.CreateReply(req, "reply-1", true, "pong", "")

	if reply.CorrelationID != req.ID {
		t.Errorf("expected correlationId %s, got %s", req.ID, reply.CorrelationID)
	}
	if reply.From != req.To || reply.To != req.From {
		t.Errorf("expected from/to swapped, got from=%s to=%s", reply.From, reply.To)
	}
	if reply.Subject != "Re: Hello" {
		t.Errorf("expected subject 'Re: Hello', got %q", reply.Subject)
	}
	if reply.Type != protocol.TypeResponse {
		t.Errorf("expected type response, got %s", reply.Type)
	}
}
