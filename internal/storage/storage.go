// Package storage provides path-addressed JSON storage on the local
// filesystem: get/put/delete/list/scan, with per-file flock and
// write-to-temp-then-rename for atomic writes. It is a generic key/value
// primitive; the higher-level stores (session, memory, mailbox) keep their
// own domain-specific file layouts and use only this package's FileLock.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentvault/runtime/internal/rterr"
)

// ErrNotFound is returned by Get when no document exists at a key. It is
// a sentinel rather than an rterr.Code: "missing key" is a routine,
// expected outcome here, not one of the retry/escalation taxonomy's
// failure classes.
var ErrNotFound = errors.New("storage: key not found")

// Store is a directory-rooted JSON document store, one `<key>.json` file
// per entry, with a dedicated FileLock per path so concurrent writers to
// the same key serialize instead of racing.
type Store struct {
	root  string
	mu    sync.Mutex
	locks map[string]*FileLock
}

// New roots a Store at dir. dir is created lazily on first write.
func New(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*FileLock)}
}

func (s *Store) filePath(key []string) string {
	parts := append([]string{s.root}, key...)
	return filepath.Join(parts...) + ".json"
}

func (s *Store) dirPath(key []string) string {
	parts := append([]string{s.root}, key...)
	return filepath.Join(parts...)
}

// Get unmarshals the document at key into v.
func (s *Store) Get(ctx context.Context, key []string, v any) error {
	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return rterr.Wrap(rterr.TransientIO, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	return nil
}

// Put marshals v and writes it to key under an exclusive per-key lock,
// via write-to-temp-then-rename so a reader never observes a partial
// write.
func (s *Store) Put(ctx context.Context, key []string, v any) error {
	path := s.filePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}

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

// Delete removes the document at key. Deleting a key that doesn't exist
// is not an error.
func (s *Store) Delete(ctx context.Context, key []string) error {
	path := s.filePath(key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	return nil
}

// List returns the child keys (sub-directories and `.json` documents,
// suffix stripped) directly under key.
func (s *Store) List(ctx context.Context, key []string) ([]string, error) {
	entries, err := os.ReadDir(s.dirPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}

	items := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			items = append(items, e.Name())
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok {
			items = append(items, name)
		}
	}
	return items, nil
}

// Scan invokes fn with the raw JSON of every document directly under key,
// in directory order, stopping early if fn returns an error.
func (s *Store) Scan(ctx context.Context, key []string, fn func(childKey string, data json.RawMessage) error) error {
	entries, err := os.ReadDir(s.dirPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rterr.Wrap(rterr.TransientIO, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		childKey, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dirPath(key), e.Name()))
		if err != nil {
			continue // unreadable entries are skipped, not fatal to the scan
		}
		if err := fn(childKey, json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a document exists at key.
func (s *Store) Exists(ctx context.Context, key []string) bool {
	_, err := os.Stat(s.filePath(key))
	return err == nil
}

func (s *Store) lockFor(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = NewFileLock(path)
		s.locks[path] = lock
	}
	return lock
}
