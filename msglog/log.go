package msglog

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrOffsetOutOfRange is returned by ReadSlice when the log has no
// segments. A start at or past the log's current end is not an error:
// ReadSlice then returns no records and start as the cursor.
var ErrOffsetOutOfRange = errors.New("msglog: offset out of range")

// Log is one topic's ordered collection of segments: the segment roster,
// the active (writable) segment, and the flush bookkeeping. Safe for
// concurrent readers; writes must be serialized by the caller (the
// pub/sub topic actor is the sole writer).
type Log struct {
	mu       sync.RWMutex
	dir      string
	cfg      Config
	segments []*Segment // ordered by BaseOffset ascending; last is active

	writesSinceFlush int
	lastFlush        time.Time
}

// Open recovers (or creates) the segment roster under dir and returns a
// ready Log. dir is created if missing.
func Open(dir string, cfg Config) (*Log, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "msglog: create topic directory")
	}

	bases, err := scanRoster(dir)
	if err != nil {
		return nil, err
	}

	l := &Log{dir: dir, cfg: cfg, lastFlush: time.Now()}

	if len(bases) == 0 {
		seg, err := CreateSegment(dir, 0, cfg.MaxIndexEntries)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		return l, nil
	}

	for _, base := range bases {
		seg, err := LoadSegment(dir, base)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
	}

	if active := l.segments[len(l.segments)-1]; active.Full() {
		next := active.BaseOffset + uint64(cfg.MaxIndexEntries)
		seg, err := CreateSegment(dir, next, cfg.MaxIndexEntries)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
	}

	return l, nil
}

func (l *Log) active() *Segment { return l.segments[len(l.segments)-1] }

// Write appends one record to the active segment, rotating to a fresh
// segment first if the active one is full, and applies the flush policy.
func (l *Log) Write(records []byte, batchSize uint32, timestamp uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active().Full() {
		if err := l.rotateLocked(); err != nil {
			return 0, err
		}
	}

	offset, err := l.active().Append(records, batchSize, timestamp)
	if err != nil {
		return 0, err
	}

	l.writesSinceFlush++
	if l.shouldFlushLocked() {
		if err := l.flushLocked(); err != nil {
			return offset, err
		}
	}

	return offset, nil
}

func (l *Log) rotateLocked() error {
	old := l.active()
	if err := old.Sync(); err != nil {
		return err
	}
	next := old.BaseOffset + uint64(l.cfg.MaxIndexEntries)
	seg, err := CreateSegment(l.dir, next, l.cfg.MaxIndexEntries)
	if err != nil {
		return err
	}
	l.segments = append(l.segments, seg)
	return nil
}

func (l *Log) shouldFlushLocked() bool {
	if l.cfg.FlushIntervalWrites > 0 && l.writesSinceFlush >= l.cfg.FlushIntervalWrites {
		return true
	}
	if l.cfg.FlushInterval > 0 && time.Since(l.lastFlush) >= l.cfg.FlushInterval {
		return true
	}
	return false
}

func (l *Log) flushLocked() error {
	if err := l.active().Sync(); err != nil {
		return err
	}
	l.writesSinceFlush = 0
	l.lastFlush = time.Now()
	return nil
}

// Flush fsyncs the active segment unconditionally.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// NumberOfEntries sums populated entries across every segment.
func (l *Log) NumberOfEntries() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for _, seg := range l.segments {
		total += uint64(seg.NumEntries())
	}
	return total
}

// ClampFromEnd translates a FromEnd(k) subscriber request into an
// absolute starting offset: max(0, entries - k).
func (l *Log) ClampFromEnd(k uint64) uint64 {
	entries := l.NumberOfEntries()
	if k >= entries {
		return 0
	}
	return entries - k
}

// segmentFor returns the index of the segment whose base offset is the
// greatest one not exceeding offset, via binary search over base offsets.
func (l *Log) segmentFor(offset uint64) (int, bool) {
	segs := l.segments
	i := sort.Search(len(segs), func(i int) bool { return segs[i].BaseOffset > offset })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// ReadSlice returns every record in [start, end) (end nil means "through
// the end of the located segment"), plus the cursor a subscriber should
// resume from next. If start falls before the oldest surviving offset
// (because the cleaner removed segments under it), the cursor silently
// advances to the oldest surviving offset.
func (l *Log) ReadSlice(start uint64, end *uint64) ([]Record, uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.segments) == 0 {
		return nil, start, ErrOffsetOutOfRange
	}

	oldest := l.segments[0].BaseOffset
	if start < oldest {
		start = oldest
	}

	idx, ok := l.segmentFor(start)
	if !ok {
		return nil, start, nil
	}

	var out []Record
	cursor := start
	for i := idx; i < len(l.segments); i++ {
		seg := l.segments[i]
		n := seg.NumEntries()
		for slot := int(cursor - seg.BaseOffset); slot < n; slot++ {
			if end != nil && cursor >= *end {
				return out, cursor, nil
			}
			entry, ok := seg.index.EntryAt(slot)
			if !ok {
				break
			}
			rec, err := seg.ReadAt(entry)
			if err != nil {
				return out, cursor, err
			}
			out = append(out, rec)
			cursor++
		}
		if end == nil {
			break
		}
	}

	return out, cursor, nil
}

// Segments exposes the current roster for the retention cleaner.
func (l *Log) Segments() []*Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// RemoveSegment deletes a non-active segment matching baseOffset from the
// roster. Returns false if baseOffset names the active segment or is not
// found; the caller (the cleaner) must never target the active segment.
func (l *Log) RemoveSegment(baseOffset uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.segments) == 0 || l.segments[len(l.segments)-1].BaseOffset == baseOffset {
		return false, nil
	}

	for i, seg := range l.segments {
		if seg.BaseOffset != baseOffset {
			continue
		}
		if err := seg.Remove(); err != nil {
			return false, err
		}
		l.segments = append(l.segments[:i], l.segments[i+1:]...)
		return true, nil
	}
	return false, nil
}

// Close releases every segment's resources without deleting anything.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, seg := range l.segments {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
