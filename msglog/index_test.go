package msglog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIndexPushAndCurrentOffset(t *testing.T) {
	dir := t.TempDir()
	ix, err := CreateIndex(filepath.Join(dir, "0.index"), 4)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	defer ix.Close()

	if got := ix.CurrentOffset(); got != 1 {
		t.Fatalf("empty index: CurrentOffset() = %d, want 1", got)
	}

	for i := uint32(1); i <= 3; i++ {
		ix.Push(IndexEntry{RelativeOffset: i, FilePosition: i * 10, Timestamp: uint64(i)})
		if got := ix.CurrentOffset(); got != i+1 {
			t.Fatalf("after pushing %d entries: CurrentOffset() = %d, want %d", i, got, i+1)
		}
	}

	if !ix.Full() {
		ix.Push(IndexEntry{RelativeOffset: 4, FilePosition: 40, Timestamp: 4})
	}
	if !ix.Full() {
		t.Fatal("expected index to report full after filling all slots")
	}
}

func TestIndexFind(t *testing.T) {
	dir := t.TempDir()
	ix, err := CreateIndex(filepath.Join(dir, "0.index"), 4)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	defer ix.Close()

	ix.Push(IndexEntry{RelativeOffset: 1, FilePosition: 0, Timestamp: 100})
	ix.Push(IndexEntry{RelativeOffset: 2, FilePosition: 50, Timestamp: 200})

	entry, ok := ix.Find(func(e IndexEntry) bool { return e.Timestamp >= 150 })
	if !ok {
		t.Fatal("expected to find an entry")
	}
	if entry.RelativeOffset != 2 {
		t.Fatalf("got relative offset %d, want 2", entry.RelativeOffset)
	}

	if _, ok := ix.Find(func(e IndexEntry) bool { return e.Timestamp >= 1000 }); ok {
		t.Fatal("expected no match, and zeroed slots must never be returned")
	}
}

func TestIndexPushBeyondCapacityPanics(t *testing.T) {
	dir := t.TempDir()
	ix, err := CreateIndex(filepath.Join(dir, "0.index"), 1)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	defer ix.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing beyond capacity")
		}
	}()
	ix.Push(IndexEntry{RelativeOffset: 1})
	ix.Push(IndexEntry{RelativeOffset: 2})
}

func TestIndexNumEntriesFullIndex(t *testing.T) {
	dir := t.TempDir()
	ix, err := CreateIndex(filepath.Join(dir, "0.index"), 2)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	defer ix.Close()

	if got := ix.NumEntries(); got != 0 {
		t.Fatalf("empty index: NumEntries() = %d, want 0", got)
	}
	ix.Push(IndexEntry{RelativeOffset: 1, FilePosition: 0, Timestamp: 1})
	ix.Push(IndexEntry{RelativeOffset: 2, FilePosition: 10, Timestamp: 2})
	if got := ix.NumEntries(); got != 2 {
		t.Fatalf("full index: NumEntries() = %d, want 2", got)
	}
}

// TestSegmentFilesAreOwnerOnly pins the exclusive-writer guarantee: the
// broker relies on file permissions (owner-only) to rule out concurrent
// external mutation of the mmap'd index and the data file.
func TestSegmentFilesAreOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	seg, err := CreateSegment(dir, 0, 4)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}
	defer seg.Close()

	for _, path := range []string{seg.dataPath, seg.indexPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat(%s): %v", path, err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("%s: permissions = %o, want 0600 (owner-only)", path, perm)
		}
	}
}

func TestIndexLoadPreservesState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.index")

	ix, err := CreateIndex(path, 4)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	ix.Push(IndexEntry{RelativeOffset: 1, FilePosition: 7, Timestamp: 42})
	if err := ix.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	defer loaded.Close()

	if loaded.Capacity() != 4 {
		t.Fatalf("Capacity() = %d, want 4", loaded.Capacity())
	}
	e, ok := loaded.EntryAt(0)
	if !ok || e.FilePosition != 7 || e.Timestamp != 42 {
		t.Fatalf("got %v, ok=%v", e, ok)
	}
}
