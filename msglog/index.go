package msglog

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Index is a fixed-capacity, memory-mapped file of IndexEntry records.
// Mapping the whole file keeps lookups at memory speed; a 1-based
// relative offset lets a zeroed slot act as the unused sentinel without
// a separate present flag.
type Index struct {
	file     *os.File
	mmap     []byte
	capacity int
	path     string
}

// CreateIndex allocates a new index file with room for capacity entries,
// zero-filled, and maps it read/write. The file is owner-only (0600): the
// broker is the sole writer, and permissions are what rule out external
// mutation of the mapped pages.
func CreateIndex(path string, capacity int) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "msglog: create index")
	}
	length := int64(capacity) * SizeOfIndexEntry
	if err := f.Truncate(length); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "msglog: allocate index")
	}
	return mapIndex(f, capacity)
}

// LoadIndex opens and maps an existing index file, inferring its capacity
// from the file size.
func LoadIndex(path string) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "msglog: load index")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "msglog: stat index")
	}
	capacity := int(info.Size() / SizeOfIndexEntry)
	return mapIndex(f, capacity)
}

func mapIndex(f *os.File, capacity int) (*Index, error) {
	length := capacity * SizeOfIndexEntry
	if length == 0 {
		f.Close()
		return nil, errors.New("msglog: index capacity must be > 0")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "msglog: mmap index")
	}
	return &Index{file: f, mmap: data, capacity: capacity, path: f.Name()}, nil
}

// Capacity returns the fixed number of entries the index can hold.
func (ix *Index) Capacity() int { return ix.capacity }

// Full reports whether every slot is populated.
func (ix *Index) Full() bool {
	return ix.entryAt(ix.capacity-1).RelativeOffset != 0
}

func (ix *Index) entryAt(slot int) IndexEntry {
	start := slot * SizeOfIndexEntry
	return decodeIndexEntry(ix.mmap[start : start+SizeOfIndexEntry])
}

// Push writes entry into the slot implied by its 1-based RelativeOffset.
// It panics if that slot is beyond capacity; the caller (Log.write) must
// rotate to a new segment before this can happen.
func (ix *Index) Push(entry IndexEntry) {
	slot := int(entry.RelativeOffset) - 1
	if slot < 0 || slot >= ix.capacity {
		panic("msglog: index push beyond capacity")
	}
	start := slot * SizeOfIndexEntry
	enc := entry.encode()
	copy(ix.mmap[start:start+SizeOfIndexEntry], enc[:])
}

// CurrentOffset returns the next 1-based relative offset to write: the
// last slot's relative offset if non-zero, otherwise the 1-based index of
// the first zeroed slot, or 1 if the index is entirely empty.
func (ix *Index) CurrentOffset() uint32 {
	last := ix.entryAt(ix.capacity - 1)
	if last.RelativeOffset != 0 {
		return last.RelativeOffset
	}
	for slot := 0; slot < ix.capacity; slot++ {
		if ix.entryAt(slot).RelativeOffset == 0 {
			return uint32(slot + 1)
		}
	}
	return 1
}

// NumEntries returns the count of populated slots. Unlike CurrentOffset
// (whose full-index value is the last relative offset, not one past it),
// this is well-defined at capacity, which is what entry-count arithmetic
// — ReadSlice bounds, FromEnd clamping — needs.
func (ix *Index) NumEntries() int {
	if ix.entryAt(ix.capacity-1).RelativeOffset != 0 {
		return ix.capacity
	}
	for slot := 0; slot < ix.capacity; slot++ {
		if ix.entryAt(slot).RelativeOffset == 0 {
			return slot
		}
	}
	return ix.capacity
}

// Find returns the first populated entry (scanning slot 0 upward) for
// which pred holds.
func (ix *Index) Find(pred func(IndexEntry) bool) (IndexEntry, bool) {
	populated := ix.NumEntries()
	for slot := 0; slot < populated; slot++ {
		e := ix.entryAt(slot)
		if pred(e) {
			return e, true
		}
	}
	return IndexEntry{}, false
}

// EntryAt returns the populated entry at the given 0-based slot, if any.
func (ix *Index) EntryAt(slot int) (IndexEntry, bool) {
	if slot < 0 || slot >= ix.capacity {
		return IndexEntry{}, false
	}
	e := ix.entryAt(slot)
	if e.Unused() {
		return IndexEntry{}, false
	}
	return e, true
}

// Sync flushes the mapped pages to disk.
func (ix *Index) Sync() error {
	return errors.Wrap(unix.Msync(ix.mmap, unix.MS_SYNC), "msglog: msync index")
}

// Close unmaps and closes the backing file, without removing it.
func (ix *Index) Close() error {
	if err := unix.Munmap(ix.mmap); err != nil {
		ix.file.Close()
		return errors.Wrap(err, "msglog: munmap index")
	}
	return errors.Wrap(ix.file.Close(), "msglog: close index")
}

// Remove unmaps, closes, and unlinks the index file. Safe because the log
// that owns this Index holds the last reference to it.
func (ix *Index) Remove() error {
	if err := ix.Close(); err != nil {
		return err
	}
	return errors.Wrap(os.Remove(ix.path), "msglog: remove index")
}
