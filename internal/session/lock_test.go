package session

import (
	"testing"
	"time"
)

func TestLockTable_AcquireExclusive(t *testing.T) {
	lt := NewLockTable()

	if _, err := lt.Acquire("s1", "run-a", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := lt.Acquire("s1", "run-b", time.Minute); err == nil {
		t.Fatal("expected LOCK_HELD for a different runId")
	}
}

func TestLockTable_ReentrantForSameRun(t *testing.T) {
	lt := NewLockTable()

	if _, err := lt.Acquire("s1", "run-a", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := lt.Acquire("s1", "run-a", time.Minute); err != nil {
		t.Fatalf("re-entrant acquire should succeed: %v", err)
	}
}

func TestLockTable_ReleaseIsIdempotent(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire("s1", "run-a", time.Minute)

	if !lt.Release("s1", "run-a") {
		t.Error("expected first release to report true")
	}
	if lt.Release("s1", "run-a") {
		t.Error("expected second release to report false")
	}
}

func TestLockTable_ReleaseWrongRunIDNoOp(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire("s1", "run-a", time.Minute)

	if lt.Release("s1", "run-b") {
		t.Error("releasing with the wrong runId should not release the lock")
	}
	if _, ok := lt.Holder("s1"); !ok {
		t.Error("lock should still be held after a mismatched release")
	}
}

func TestLockTable_ExpiredLockIsReapable(t *testing.T) {
	lt := NewLockTable()
	lt.Acquire("s1", "run-a", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, err := lt.Acquire("s1", "run-b", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be reaped and reassigned: %v", err)
	}
	holder, _ := lt.Holder("s1")
	if holder != "run-b" {
		t.Errorf("expected run-b to hold the lock, got %s", holder)
	}
}
