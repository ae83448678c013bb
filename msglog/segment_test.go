package msglog

import "testing"

func TestSegmentAppendAndReadAt(t *testing.T) {
	dir := t.TempDir()
	seg, err := CreateSegment(dir, 0, 4)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}
	defer seg.Close()

	off, err := seg.Append([]byte("hello"), 1, 100)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off != 0 {
		t.Fatalf("first offset in a base-0 segment should be 0, got %d", off)
	}

	off2, err := seg.Append([]byte("world"), 1, 200)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off2 != 1 {
		t.Fatalf("second offset should be 1, got %d", off2)
	}

	entry, ok := seg.index.EntryAt(1)
	if !ok {
		t.Fatal("expected populated entry at slot 1")
	}
	rec, err := seg.ReadAt(entry)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(rec.Bytes) != "world" || rec.Timestamp != 200 {
		t.Fatalf("got %+v", rec)
	}
}

func TestSegmentFullAfterCapacityWrites(t *testing.T) {
	dir := t.TempDir()
	seg, err := CreateSegment(dir, 0, 2)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}
	defer seg.Close()

	if seg.Full() {
		t.Fatal("new segment must not report full")
	}
	if _, err := seg.Append([]byte("a"), 1, 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := seg.Append([]byte("b"), 1, 2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !seg.Full() {
		t.Fatal("expected segment to report full after filling its index")
	}
}
