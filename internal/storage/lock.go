package storage

import (
	"os"
	"sync"
	"syscall"

	"github.com/agentvault/runtime/internal/rterr"
)

// FileLock is an exclusive, process-wide advisory lock backed by flock(2)
// on a sidecar `<path>.lock` file, guarding one on-disk document (a
// session's metadata, a mailbox inbox, the memory document) against
// concurrent read-modify-write races.
type FileLock struct {
	path string
	fd   *os.File
	mu   sync.Mutex
}

// NewFileLock builds a lock guarding path. path need not exist yet; only
// the sidecar lock file is created.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) open() error {
	fd, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	l.fd = fd
	return nil
}

// Lock blocks until the exclusive flock is acquired.
func (l *FileLock) Lock() error {
	l.mu.Lock()
	if err := l.open(); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(l.fd.Fd()), syscall.LOCK_EX); err != nil {
		l.fd.Close()
		l.mu.Unlock()
		return rterr.Wrap(rterr.TransientIO, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking, reporting
// whether it succeeded.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}
	if err := l.open(); err != nil {
		l.mu.Unlock()
		return false
	}
	if err := syscall.Flock(int(l.fd.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		l.fd.Close()
		l.mu.Unlock()
		return false
	}
	return true
}

// Unlock releases the flock, closes and removes the sidecar file, and
// frees the lock for the next holder. Safe to call on an already-unlocked
// FileLock.
func (l *FileLock) Unlock() error {
	if l.fd == nil {
		return nil
	}
	syscall.Flock(int(l.fd.Fd()), syscall.LOCK_UN)
	l.fd.Close()
	os.Remove(l.path + ".lock")
	l.fd = nil
	l.mu.Unlock()
	return nil
}
