// Package mailbox implements the file-backed per-agent inbox: atomic
// read-modify-write of one JSON document plus an append-only send/receive
// audit log, per spec.md §4.7.
package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentvault/runtime/internal/protocol"
	"github.com/agentvault/runtime/internal/rterr"
	"github.com/agentvault/runtime/internal/storage"
)

func inboxPath(agentDir string) string   { return filepath.Join(agentDir, "inbox.json") }
func logPath(agentDir string) string     { return filepath.Join(agentDir, "messages.log") }

// inboxDoc is the on-disk shape of inbox.json.
type inboxDoc struct {
	Envelopes []protocol.Envelope `json:"envelopes"`
}

func loadInbox(agentDir string) (*inboxDoc, error) {
	data, err := os.ReadFile(inboxPath(agentDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &inboxDoc{}, nil
		}
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	var doc inboxDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt inbox %s: %w", inboxPath(agentDir), err)
	}
	return &doc, nil
}

func saveInbox(agentDir string, doc *inboxDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	path := inboxPath(agentDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return rterr.Wrap(rterr.TransientIO, err)
	}
	return nil
}

// withInboxLock runs fn holding an exclusive file lock over agentDir's
// inbox, guaranteeing the read-modify-write is atomic at the file level.
func withInboxLock(agentDir string, fn func(doc *inboxDoc) error) error {
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	lock := storage.NewFileLock(inboxPath(agentDir))
	if err := lock.Lock(); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	defer lock.Unlock()

	doc, err := loadInbox(agentDir)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return saveInbox(agentDir, doc)
}

func appendLog(agentDir, line string) error {
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return err
	}
	lock := storage.NewFileLock(logPath(agentDir))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := os.OpenFile(logPath(agentDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// SendResult is SendAgentMessage's return shape.
type SendResult struct {
	Success bool
	Error   string
}

// SendAgentMessage delivers msg into recipientDir's inbox (stamping
// deliveredAt), logs "sent" against senderDir and "received" against
// recipientDir. Delivery fails if recipientDir does not exist.
func SendAgentMessage(msg protocol.Message, senderDir, recipientDir string) SendResult {
	if _, err := os.Stat(recipientDir); err != nil {
		return SendResult{Success: false, Error: "recipient directory does not exist: " + recipientDir}
	}

	now := time.Now().UnixMilli()
	msg.Status = protocol.StatusDelivered
	env := protocol.Envelope{Message: msg, DeliveredAt: &now}

	err := withInboxLock(recipientDir, func(doc *inboxDoc) error {
		doc.Envelopes = append(doc.Envelopes, env)
		return nil
	})
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}

	logLine := fmt.Sprintf("%d sent %s %s->%s %q", now, msg.ID, msg.From, msg.To, msg.Subject)
	appendLog(senderDir, logLine)
	appendLog(recipientDir, fmt.Sprintf("%d received %s %s->%s %q", now, msg.ID, msg.From, msg.To, msg.Subject))

	return SendResult{Success: true}
}

// ReceiveOptions filters ReceiveMessages.
type ReceiveOptions struct {
	Type       protocol.Type // zero value matches any type
	UnreadOnly bool
}

// ReceiveMessages returns recipientDir's envelopes, newest first.
func ReceiveMessages(recipientDir string, opts ReceiveOptions) ([]protocol.Envelope, error) {
	doc, err := loadInbox(recipientDir)
	if err != nil {
		return nil, err
	}

	out := make([]protocol.Envelope, 0, len(doc.Envelopes))
	for i := len(doc.Envelopes) - 1; i >= 0; i-- {
		env := doc.Envelopes[i]
		if opts.Type != "" && env.Message.Type != opts.Type {
			continue
		}
		if opts.UnreadOnly && env.ReadAt != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

func mutateStatus(agentDir, messageID string, newStatus protocol.Status, stamp func(env *protocol.Envelope, now int64)) error {
	return withInboxLock(agentDir, func(doc *inboxDoc) error {
		for i := range doc.Envelopes {
			if doc.Envelopes[i].Message.ID != messageID {
				continue
			}
			env := &doc.Envelopes[i]
			if env.Message.Status.Before(newStatus) {
				env.Message.Status = newStatus
				stamp(env, time.Now().UnixMilli())
			}
			return nil
		}
		return rterr.New(rterr.InvalidInput, "message not found: "+messageID)
	})
}

// MarkAsRead transitions an envelope to read, stamping readAt once.
func MarkAsRead(agentDir, messageID string) error {
	return mutateStatus(agentDir, messageID, protocol.StatusRead, func(env *protocol.Envelope, now int64) {
		if env.ReadAt == nil {
			env.ReadAt = &now
		}
	})
}

// MarkAsProcessed transitions an envelope to processed, stamping
// processedAt once.
func MarkAsProcessed(agentDir, messageID string) error {
	return mutateStatus(agentDir, messageID, protocol.StatusProcessed, func(env *protocol.Envelope, now int64) {
		if env.ProcessedAt == nil {
			env.ProcessedAt = &now
		}
	})
}

// DeleteMessage removes one envelope from the inbox.
func DeleteMessage(agentDir, messageID string) error {
	return withInboxLock(agentDir, func(doc *inboxDoc) error {
		for i, env := range doc.Envelopes {
			if env.Message.ID == messageID {
				doc.Envelopes = append(doc.Envelopes[:i], doc.Envelopes[i+1:]...)
				return nil
			}
		}
		return nil // deleting a missing message is a no-op
	})
}

// GetMessageByID returns one envelope, or ok=false if absent.
func GetMessageByID(agentDir, messageID string) (protocol.Envelope, bool, error) {
	doc, err := loadInbox(agentDir)
	if err != nil {
		return protocol.Envelope{}, false, err
	}
	for _, env := range doc.Envelopes {
		if env.Message.ID == messageID {
			return env, true, nil
		}
	}
	return protocol.Envelope{}, false, nil
}

// Stats is GetInboxStats' return shape.
type Stats struct {
	Total      int
	ByType     map[protocol.Type]int
	ByPriority map[protocol.Priority]int
	Unread     int
	Pending    int
}

// GetInboxStats counts envelopes by type and priority plus unread/pending
// totals.
func GetInboxStats(agentDir string) (Stats, error) {
	doc, err := loadInbox(agentDir)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByType: make(map[protocol.Type]int), ByPriority: make(map[protocol.Priority]int)}
	for _, env := range doc.Envelopes {
		stats.Total++
		stats.ByType[env.Message.Type]++
		stats.ByPriority[env.Message.Priority]++
		if env.ReadAt == nil {
			stats.Unread++
		}
		if env.Message.Status == protocol.StatusPending {
			stats.Pending++
		}
	}
	return stats, nil
}

// NewMessageID generates a new envelope/message id.
func NewMessageID() string { return ulid.Make().String() }
