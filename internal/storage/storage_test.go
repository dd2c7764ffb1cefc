package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type record struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestStore_PutThenGet(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	rec := record{ID: "123", Name: "test", Value: 42}
	if err := s.Put(ctx, []string{"items", "item1"}, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "items", "item1.json")); os.IsNotExist(err) {
		t.Fatal("expected the document file to exist")
	}

	var got record
	if err := s.Get(ctx, []string{"items", "item1"}, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != rec {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestStore_GetMissingKeyReturnsErrNotFound(t *testing.T) {
	s := New(t.TempDir())
	var got record
	err := s.Get(context.Background(), []string{"nonexistent", "item"}, &got)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_DeleteRemovesDocument(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, []string{"items", "toDelete"}, record{ID: "123"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, []string{"items", "toDelete"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var got record
	if err := s.Get(ctx, []string{"items", "toDelete"}, &got); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_DeleteNonexistentIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Delete(context.Background(), []string{"nonexistent", "item"}); err != nil {
		t.Errorf("deleting a nonexistent key should not error, got %v", err)
	}
}

func TestStore_ListReturnsChildKeysSuffixStripped(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, []string{"items", id}, record{ID: id}); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	items, err := s.List(ctx, []string{"items"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d: %v", len(items), items)
	}
}

func TestStore_ListOnMissingDirIsEmptyNotError(t *testing.T) {
	s := New(t.TempDir())
	items, err := s.List(context.Background(), []string{"nonexistent"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected an empty list, got %v", items)
	}
}

func TestStore_ScanVisitsEveryDocument(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	expected := map[string]record{
		"a": {ID: "a", Name: "first", Value: 1},
		"b": {ID: "b", Name: "second", Value: 2},
		"c": {ID: "c", Name: "third", Value: 3},
	}
	for id, rec := range expected {
		if err := s.Put(ctx, []string{"items", id}, rec); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	scanned := make(map[string]record)
	err := s.Scan(ctx, []string{"items"}, func(key string, data json.RawMessage) error {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		scanned[key] = rec
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for id, want := range expected {
		got, ok := scanned[id]
		if !ok {
			t.Errorf("missing scanned key %s", id)
			continue
		}
		if got != want {
			t.Errorf("scan mismatch for %s: got %+v, want %+v", id, got, want)
		}
	}
}

func TestStore_Exists(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if s.Exists(ctx, []string{"items", "test"}) {
		t.Error("expected Exists to be false before any write")
	}
	if err := s.Put(ctx, []string{"items", "test"}, record{ID: "test"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Exists(ctx, []string{"items", "test"}) {
		t.Error("expected Exists to be true after the write")
	}
}

func TestStore_ConcurrentWritesToSameKeySerialize(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			if err := s.Put(ctx, []string{"items", "concurrent"}, record{ID: "concurrent", Value: val}); err != nil {
				t.Errorf("concurrent Put: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var got record
	if err := s.Get(ctx, []string{"items", "concurrent"}, &got); err != nil {
		t.Fatalf("Get after concurrent writes: %v", err)
	}
}

func TestStore_AtomicWriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	if err := s.Put(ctx, []string{"items", "atomic"}, record{ID: "atomic", Name: "initial", Value: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "items", "atomic.json.tmp")); !os.IsNotExist(err) {
		t.Error("expected no leftover .tmp file after a successful write")
	}
}
