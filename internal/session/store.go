package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentvault/runtime/internal/retry"
	"github.com/agentvault/runtime/internal/rterr"
	"github.com/agentvault/runtime/internal/storage"
)

// Store persists session metadata and transcripts under
// <agentPath>/sessions/<sessionId>/{metadata.json,transcript.jsonl}, per
// spec.md §6's filesystem layout.
type Store struct {
	// Retry, when set, wraps AppendToTranscript's disk write so a
	// transient I/O failure is retried before it surfaces to the caller.
	Retry *retry.Manager
}

// NewStore creates a Store. retryMgr may be nil to disable retry on
// transcript appends.
func NewStore(retryMgr *retry.Manager) *Store {
	return &Store{Retry: retryMgr}
}

func sessionDir(agentPath, sessionID string) string {
	return filepath.Join(agentPath, "sessions", sessionID)
}

func metadataPath(agentPath, sessionID string) string {
	return filepath.Join(sessionDir(agentPath, sessionID), "metadata.json")
}

func transcriptPath(agentPath, sessionID string) string {
	return filepath.Join(sessionDir(agentPath, sessionID), "transcript.jsonl")
}

func newID() string { return ulid.Make().String() }

// CreateSession creates a brand new session with status=active.
func (s *Store) CreateSession(agentPath, agentID string) (*Session, error) {
	now := time.Now().UnixMilli()
	sess := &Session{
		ID:        newID(),
		AgentID:   agentID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.saveMetadata(agentPath, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetOrCreateSession returns the most recently updated active session for
// agentID, or creates a new one if none exists.
func (s *Store) GetOrCreateSession(agentPath, agentID string) (*Session, error) {
	sessions, err := s.ListSessions(agentPath, agentID)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.Status == StatusActive {
			return sess, nil
		}
	}
	return s.CreateSession(agentPath, agentID)
}

// GetSession loads session metadata by id.
func (s *Store) GetSession(agentPath, sessionID string) (*Session, error) {
	data, err := os.ReadFile(metadataPath(agentPath, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rterr.New(rterr.SessionNotFound, "session not found: "+sessionID)
		}
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session metadata %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *Store) saveMetadata(agentPath string, sess *Session) error {
	dir := sessionDir(agentPath, sess.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	path := metadataPath(agentPath, sess.ID)
	lock := storage.NewFileLock(path)
	if err := lock.Lock(); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	defer lock.Unlock()

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

// Patch is a partial update applied by UpdateSession; nil fields are left
// unchanged.
type Patch struct {
	Title        *string
	Status       *Status
	MessageCount *int
}

// UpdateSession merges patch into the stored metadata and stamps
// updatedAt.
func (s *Store) UpdateSession(agentPath, sessionID string, patch Patch) (*Session, error) {
	sess, err := s.GetSession(agentPath, sessionID)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		sess.Title = *patch.Title
	}
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.MessageCount != nil {
		sess.MessageCount = *patch.MessageCount
	}
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := s.saveMetadata(agentPath, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession sets a terminal status. Idempotent: ending an already-ended
// session with the same status succeeds silently.
func (s *Store) EndSession(agentPath, sessionID string, status Status) error {
	sess, err := s.GetSession(agentPath, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == status {
		return nil
	}
	sess.Status = status
	sess.UpdatedAt = time.Now().UnixMilli()
	return s.saveMetadata(agentPath, sess)
}

// ListSessions lists every session for agentID under agentPath, sorted by
// updatedAt descending.
func (s *Store) ListSessions(agentPath, agentID string) ([]*Session, error) {
	root := filepath.Join(agentPath, "sessions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}

	var sessions []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := s.GetSession(agentPath, e.Name())
		if err != nil {
			continue
		}
		if agentID != "" && sess.AgentID != agentID {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	return sessions, nil
}

// Fork copies sourceID's transcript up to and including atMessageID into a
// brand new session with ParentID set to sourceID, letting a caller try a
// different continuation from a given point without mutating the
// original (grounded on the teacher's Service.Fork).
func (s *Store) Fork(agentPath, sourceID, atMessageID string) (*Session, error) {
	source, err := s.GetSession(agentPath, sourceID)
	if err != nil {
		return nil, err
	}
	messages, _, err := s.ReadTranscript(agentPath, sourceID)
	if err != nil {
		return nil, err
	}

	cutoff := len(messages)
	if atMessageID != "" {
		cutoff = -1
		for i, m := range messages {
			if m.ID == atMessageID {
				cutoff = i + 1
				break
			}
		}
		if cutoff == -1 {
			return nil, rterr.New(rterr.InvalidInput, "message not found in source session: "+atMessageID)
		}
	}

	forked, err := s.CreateSession(agentPath, source.AgentID)
	if err != nil {
		return nil, err
	}
	forked.ParentID = sourceID
	if err := s.saveMetadata(agentPath, forked); err != nil {
		return nil, err
	}

	count := 0
	for _, m := range messages[:cutoff] {
		if _, err := s.AppendToTranscript(agentPath, forked.ID, PartialMessage{Role: m.Role, Content: m.Content, Metadata: m.Metadata}); err != nil {
			return nil, err
		}
		count++
	}

	patched, err := s.UpdateSession(agentPath, forked.ID, Patch{MessageCount: &count})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

// PartialMessage is what a caller supplies to AppendToTranscript; id and
// timestamp are assigned by the store.
type PartialMessage struct {
	Role     Role
	Content  string
	Metadata map[string]any
}

// AppendToTranscript assigns an id and timestamp to partial and appends it
// as one JSON line to the session's transcript file. The write is wrapped
// in s.Retry if configured, per spec.md §4.3.
func (s *Store) AppendToTranscript(agentPath, sessionID string, partial PartialMessage) (*Message, error) {
	msg := &Message{
		ID:        newID(),
		Role:      partial.Role,
		Content:   partial.Content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Metadata:  partial.Metadata,
	}

	write := func() error { return s.appendLine(agentPath, sessionID, msg) }

	var err error
	if s.Retry != nil {
		err = s.Retry.Do(context.Background(), "transcript.append", func(_ context.Context) error {
			return write()
		})
	} else {
		err = write()
	}
	if err != nil {
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	return msg, nil
}

func (s *Store) appendLine(agentPath, sessionID string, msg *Message) error {
	dir := sessionDir(agentPath, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := transcriptPath(agentPath, sessionID)

	lock := storage.NewFileLock(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// ReadTranscript reads every message in a session's transcript, in file
// order. A missing file yields an empty sequence, not an error. A line
// that fails to parse is skipped and corrupted is reported true so the
// caller (CONTEXT) can surface a warning; the turn still proceeds with
// whatever parsed.
func (s *Store) ReadTranscript(agentPath, sessionID string) (messages []*Message, corrupted bool, err error) {
	path := transcriptPath(agentPath, sessionID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, rterr.Wrap(rterr.TransientIO, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			corrupted = true
			continue
		}
		messages = append(messages, &msg)
	}
	if err := scanner.Err(); err != nil {
		return messages, true, nil
	}
	return messages, corrupted, nil
}
