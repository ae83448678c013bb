// Package msglog implements the segmented, append-only message log: one
// segment is a data file of framed records plus a fixed-capacity,
// memory-mapped index file, located by binary search over base offsets.
package msglog

import "encoding/binary"

// SizeOfIndexEntry is the fixed on-disk size of one IndexEntry: a 4-byte
// relative offset, a 4-byte file position, and an 8-byte timestamp.
const SizeOfIndexEntry = 16

// IndexEntry locates one record within a segment's data file.
type IndexEntry struct {
	// RelativeOffset is 1-based within the segment; the zero value marks
	// an unused index slot.
	RelativeOffset uint32
	// FilePosition is the byte offset of the record within the data file.
	FilePosition uint32
	// Timestamp is the record's wall-clock write time, unix nanoseconds.
	Timestamp uint64
}

// Unused reports whether e is the zero-valued sentinel for an index slot
// that has never been written.
func (e IndexEntry) Unused() bool { return e.RelativeOffset == 0 }

func (e IndexEntry) encode() [SizeOfIndexEntry]byte {
	var b [SizeOfIndexEntry]byte
	binary.LittleEndian.PutUint32(b[0:4], e.RelativeOffset)
	binary.LittleEndian.PutUint32(b[4:8], e.FilePosition)
	binary.LittleEndian.PutUint64(b[8:16], e.Timestamp)
	return b
}

func decodeIndexEntry(b []byte) IndexEntry {
	return IndexEntry{
		RelativeOffset: binary.LittleEndian.Uint32(b[0:4]),
		FilePosition:   binary.LittleEndian.Uint32(b[4:8]),
		Timestamp:      binary.LittleEndian.Uint64(b[8:16]),
	}
}
