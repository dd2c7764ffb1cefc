package session

import (
	"sync"
	"time"

	"github.com/agentvault/runtime/internal/rterr"
)

// DefaultLockTTL is the lock lease duration used when Acquire's ttl is
// zero.
const DefaultLockTTL = 15 * time.Minute

// Lock is one session's exclusive lease.
type Lock struct {
	SessionID string
	RunID     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

func (l *Lock) expired(now time.Time) bool { return now.After(l.ExpiresAt) }

// LockTable is a process-level map of sessionId -> lock, per spec.md
// §4.4/§5. It is the single shared instance the loop composer threads
// through every turn.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*Lock)}
}

// Acquire grants an exclusive lease on sessionID to runID. Re-entrant for
// the same runID (renews the lease). An expired lock held by a different
// runID may be reaped and reassigned. ttl <= 0 defaults to DefaultLockTTL.
func (t *LockTable) Acquire(sessionID, runID string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.locks[sessionID]; ok {
		if existing.RunID == runID {
			existing.ExpiresAt = now.Add(ttl)
			return existing, nil
		}
		if !existing.expired(now) {
			return nil, rterr.New(rterr.LockHeld, "session "+sessionID+" is locked by another run")
		}
		// expired: fall through and reap it
	}

	lock := &Lock{SessionID: sessionID, RunID: runID, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	t.locks[sessionID] = lock
	return lock, nil
}

// Release removes the lease if held by runID. Idempotent; reports whether
// anything was actually released.
func (t *LockTable) Release(sessionID, runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.locks[sessionID]
	if !ok || existing.RunID != runID {
		return false
	}
	delete(t.locks, sessionID)
	return true
}

// Holder reports the current lock holder for sessionID, if any and
// unexpired.
func (t *LockTable) Holder(sessionID string) (runID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, exists := t.locks[sessionID]
	if !exists || lock.expired(time.Now()) {
		return "", false
	}
	return lock.RunID, true
}

// ReapExpired drops every lock past its TTL. Expiry is also checked lazily
// inside Acquire, so calling this periodically is an optimization, not a
// correctness requirement.
func (t *LockTable) ReapExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	n := 0
	for id, lock := range t.locks {
		if lock.expired(now) {
			delete(t.locks, id)
			n++
		}
	}
	return n
}
