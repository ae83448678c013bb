package msglog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// recordHeaderSize is the fixed prefix written ahead of every record in a
// segment's data file: length || batch_size || timestamp.
const recordHeaderSize = 4 + 4 + 8

// Segment pairs one data file with one fixed-capacity index file, named by
// its base offset. The data file is an append-only sequence of framed
// records; the index locates each record by its 1-based relative offset.
type Segment struct {
	BaseOffset uint64

	dataPath  string
	indexPath string
	data      *os.File
	index     *Index
}

func segmentPaths(dir string, baseOffset uint64) (dataPath, indexPath string) {
	name := fmt.Sprintf("%020d", baseOffset)
	return filepath.Join(dir, name+".data"), filepath.Join(dir, name+".index")
}

// CreateSegment creates a fresh segment rooted at baseOffset, with an
// index sized for capacity entries.
func CreateSegment(dir string, baseOffset uint64, capacity int) (*Segment, error) {
	dataPath, indexPath := segmentPaths(dir, baseOffset)
	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "msglog: create segment data file")
	}
	index, err := CreateIndex(indexPath, capacity)
	if err != nil {
		data.Close()
		return nil, err
	}
	return &Segment{BaseOffset: baseOffset, dataPath: dataPath, indexPath: indexPath, data: data, index: index}, nil
}

// LoadSegment opens an existing segment's data and index files.
func LoadSegment(dir string, baseOffset uint64) (*Segment, error) {
	dataPath, indexPath := segmentPaths(dir, baseOffset)
	data, err := os.OpenFile(dataPath, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "msglog: open segment data file")
	}
	index, err := LoadIndex(indexPath)
	if err != nil {
		data.Close()
		return nil, err
	}
	return &Segment{BaseOffset: baseOffset, dataPath: dataPath, indexPath: indexPath, data: data, index: index}, nil
}

// Full reports whether the segment's index has no free slots.
func (s *Segment) Full() bool { return s.index.Full() }

// NumEntries returns the count of populated index slots.
func (s *Segment) NumEntries() int {
	return s.index.NumEntries()
}

// Append writes one record (records, already batched/encoded/compressed
// by the caller) to the data file and pushes a matching index entry.
// Returns the absolute offset assigned to the record.
func (s *Segment) Append(records []byte, batchSize uint32, timestamp uint64) (uint64, error) {
	pos, err := s.data.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "msglog: seek segment data file")
	}

	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(records)))
	binary.LittleEndian.PutUint32(header[4:8], batchSize)
	binary.LittleEndian.PutUint64(header[8:16], timestamp)

	if _, err := s.data.Write(header[:]); err != nil {
		return 0, errors.Wrap(err, "msglog: write record header")
	}
	if _, err := s.data.Write(records); err != nil {
		return 0, errors.Wrap(err, "msglog: write record body")
	}

	relOffset := s.index.CurrentOffset()
	s.index.Push(IndexEntry{RelativeOffset: relOffset, FilePosition: uint32(pos), Timestamp: timestamp})

	return s.BaseOffset + uint64(relOffset) - 1, nil
}

// Record is one decoded data-file entry.
type Record struct {
	Offset    uint64
	BatchSize uint32
	Timestamp uint64
	Bytes     []byte
}

// ReadAt decodes the record stored at the given index entry.
func (s *Segment) ReadAt(entry IndexEntry) (Record, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := s.data.ReadAt(header, int64(entry.FilePosition)); err != nil {
		return Record{}, errors.Wrap(err, "msglog: read record header")
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	batchSize := binary.LittleEndian.Uint32(header[4:8])
	timestamp := binary.LittleEndian.Uint64(header[8:16])

	body := make([]byte, length)
	if length > 0 {
		if _, err := s.data.ReadAt(body, int64(entry.FilePosition)+recordHeaderSize); err != nil {
			return Record{}, errors.Wrap(err, "msglog: read record body")
		}
	}

	return Record{
		Offset:    s.BaseOffset + uint64(entry.RelativeOffset) - 1,
		BatchSize: batchSize,
		Timestamp: timestamp,
		Bytes:     body,
	}, nil
}

// NewestTimestamp returns the timestamp of the most recently written
// entry, used by the retention cleaner.
func (s *Segment) NewestTimestamp() (uint64, bool) {
	n := s.NumEntries()
	if n == 0 {
		return 0, false
	}
	e, ok := s.index.EntryAt(n - 1)
	if !ok {
		return 0, false
	}
	return e.Timestamp, true
}

// Sync fsyncs the data file and msyncs the index.
func (s *Segment) Sync() error {
	if err := s.data.Sync(); err != nil {
		return errors.Wrap(err, "msglog: fsync segment data file")
	}
	return s.index.Sync()
}

// Close closes the data file and unmaps the index, leaving both on disk.
func (s *Segment) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	return errors.Wrap(s.data.Close(), "msglog: close segment data file")
}

// Remove closes and deletes both files that make up the segment.
func (s *Segment) Remove() error {
	if err := s.index.Remove(); err != nil {
		return err
	}
	if err := s.data.Close(); err != nil {
		return errors.Wrap(err, "msglog: close segment data file before removal")
	}
	return errors.Wrap(os.Remove(s.dataPath), "msglog: remove segment data file")
}
