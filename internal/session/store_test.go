package session

import (
	"testing"
)

func TestStore_CreateAndGet(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	sess, err := s.CreateSession(dir, "agent_admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Status != StatusActive || sess.MessageCount != 0 {
		t.Fatalf("unexpected new session: %+v", sess)
	}

	got, err := s.GetSession(dir, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("got id %s, want %s", got.ID, sess.ID)
	}
}

func TestStore_GetOrCreateSessionReusesActive(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	first, err := s.GetOrCreateSession(dir, "agent_admin")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	second, err := s.GetOrCreateSession(dir, "agent_admin")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same active session reused, got %s and %s", first.ID, second.ID)
	}
}

func TestStore_AppendAndReadTranscript(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)
	sess, _ := s.CreateSession(dir, "agent_admin")

	if _, err := s.AppendToTranscript(dir, sess.ID, PartialMessage{Role: RoleUser, Content: "Hello"}); err != nil {
		t.Fatalf("AppendToTranscript: %v", err)
	}
	if _, err := s.AppendToTranscript(dir, sess.ID, PartialMessage{Role: RoleAssistant, Content: "Hi!"}); err != nil {
		t.Fatalf("AppendToTranscript: %v", err)
	}

	messages, corrupted, err := s.ReadTranscript(dir, sess.ID)
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if corrupted {
		t.Error("unexpected corruption flag")
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "Hello" || messages[1].Content != "Hi!" {
		t.Errorf("unexpected order/content: %+v", messages)
	}
}

func TestStore_ReadTranscriptMissingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	messages, corrupted, err := s.ReadTranscript(dir, "does-not-exist")
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if corrupted {
		t.Error("missing transcript should not be reported corrupted")
	}
	if len(messages) != 0 {
		t.Errorf("expected empty sequence, got %v", messages)
	}
}

func TestStore_UpdateSessionMergesFields(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)
	sess, _ := s.CreateSession(dir, "agent_admin")

	title := "Renamed"
	count := 2
	updated, err := s.UpdateSession(dir, sess.ID, Patch{Title: &title, MessageCount: &count})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if updated.Title != "Renamed" || updated.MessageCount != 2 {
		t.Errorf("unexpected patch result: %+v", updated)
	}
	if updated.Status != StatusActive {
		t.Errorf("status should be untouched, got %s", updated.Status)
	}
}

func TestStore_EndSessionIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)
	sess, _ := s.CreateSession(dir, "agent_admin")

	if err := s.EndSession(dir, sess.ID, StatusEnded); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := s.EndSession(dir, sess.ID, StatusEnded); err != nil {
		t.Fatalf("EndSession (idempotent call): %v", err)
	}

	got, _ := s.GetSession(dir, sess.ID)
	if got.Status != StatusEnded {
		t.Errorf("expected ended, got %s", got.Status)
	}
}

func TestStore_ListSessionsSortedByUpdatedAtDesc(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	a, _ := s.CreateSession(dir, "agent_admin")
	b, _ := s.CreateSession(dir, "agent_admin")
	title := "bump"
	if _, err := s.UpdateSession(dir, a.ID, Patch{Title: &title}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	sessions, err := s.ListSessions(dir, "agent_admin")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != a.ID {
		t.Errorf("expected most recently updated session %s first, got %s", a.ID, sessions[0].ID)
	}
	_ = b
}
