package msglog

import (
	"testing"
	"time"
)

func testConfig(dir string, maxEntries int) Config {
	cfg := DefaultConfig(dir)
	cfg.MaxIndexEntries = maxEntries
	return cfg
}

func TestLogWriteAndReadSliceFromBeginning(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, testConfig(dir, 16))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	payloads := [][]byte{[]byte("MSFT:12.75"), []byte("INTC:-9.0")}
	for i, p := range payloads {
		if _, err := l.Write(p, 1, uint64(i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	records, cursor, err := l.ReadSlice(0, nil)
	if err != nil {
		t.Fatalf("ReadSlice: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for i, rec := range records {
		if string(rec.Bytes) != string(payloads[i]) {
			t.Fatalf("record %d: got %q, want %q", i, rec.Bytes, payloads[i])
		}
		if rec.Offset != uint64(i) {
			t.Fatalf("record %d: offset = %d, want %d", i, rec.Offset, i)
		}
	}
	if cursor != 2 {
		t.Fatalf("cursor = %d, want 2", cursor)
	}
}

func TestLogFromEndClamp(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, testConfig(dir, 16))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if _, err := l.Write([]byte("m"), 1, uint64(i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if got := l.ClampFromEnd(2); got != 3 {
		t.Fatalf("ClampFromEnd(2) = %d, want 3", got)
	}
	if got := l.ClampFromEnd(10); got != 0 {
		t.Fatalf("ClampFromEnd(10) = %d, want 0 (clamped)", got)
	}
}

func TestLogRotatesSegmentsAtCapacity(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, testConfig(dir, 4))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 10; i++ {
		if _, err := l.Write([]byte("m"), 1, uint64(i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	segs := l.Segments()
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	wantBases := []uint64{0, 4, 8}
	for i, seg := range segs {
		if seg.BaseOffset != wantBases[i] {
			t.Fatalf("segment %d base offset = %d, want %d", i, seg.BaseOffset, wantBases[i])
		}
	}
}

func TestLogReadSliceSkipsRemovedSegments(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, testConfig(dir, 2))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 6; i++ {
		if _, err := l.Write([]byte("m"), 1, uint64(i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	ok, err := l.RemoveSegment(0)
	if err != nil || !ok {
		t.Fatalf("RemoveSegment(0): ok=%v err=%v", ok, err)
	}

	records, cursor, err := l.ReadSlice(0, nil)
	if err != nil {
		t.Fatalf("ReadSlice: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected subscriber to silently resume at the oldest surviving offset")
	}
	if records[0].Offset != 2 {
		t.Fatalf("first surviving offset = %d, want 2", records[0].Offset)
	}
	if cursor != 4 {
		t.Fatalf("cursor = %d, want 4 (end of the located segment)", cursor)
	}
}

func TestCleanerRemovesStaleNonActiveSegments(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 2)
	cfg.RetentionPeriod = 10 * time.Millisecond
	cfg.CleanerInterval = time.Millisecond

	l, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	old := time.Now().Add(-time.Hour).UnixNano()
	for i := 0; i < 2; i++ {
		if _, err := l.Write([]byte("m"), 1, uint64(old)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if _, err := l.Write([]byte("fresh"), 1, uint64(time.Now().UnixNano())); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(l.Segments()) != 2 {
		t.Fatalf("expected 2 segments before cleaning, got %d", len(l.Segments()))
	}

	cleaner := StartCleaner(l)
	time.Sleep(20 * time.Millisecond)
	cleaner.Stop()

	segs := l.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected the stale non-active segment to be removed, got %d segments", len(segs))
	}
	if segs[0].BaseOffset != 2 {
		t.Fatalf("expected the active segment (base 2) to survive, got base %d", segs[0].BaseOffset)
	}
}
