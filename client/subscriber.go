package client

import (
	"context"
	"sync"

	"github.com/selium-io/selium/compressor"
	"github.com/selium-io/selium/protocol"
)

// Subscriber is the client side of a subscriber stream:
// it reads Message/Batch frames, decompresses, and hands the caller one
// message at a time (a Batch frame's messages are queued and drained in
// order before the next ReadFrame).
//
// Keep-alive resume: reconnect replays the *original* NewStream frame
// verbatim — keepAlive never mutates its stored header — so a
// FromBeginning(n) subscription resumes the broker's delivery from the
// same absolute starting point it began at. To avoid redelivering
// entries the caller already consumed before the drop, Subscriber counts
// entries (one per Message or Batch frame, matching the log's own offset
// granularity) delivered to the caller, snapshots that count via
// keepAlive.onReconnect the instant a reconnect succeeds, and silently
// discards that many entries from the resumed stream before resuming
// real delivery. For a FromEnd(k) subscription this reproduces
// exactly-once delivery only if the log's entry count hasn't grown since
// the subscription opened (the broker re-resolves FromEnd against the
// *current* log on every replay, since the wire carries no resume
// cursor); a limitation of the wire format, not of this dedup scheme.
type Subscriber struct {
	ka         *keepAlive
	compressor compressor.Compressor

	mu              sync.Mutex
	queue           [][]byte
	entriesConsumed uint64
	skipRemaining   uint64
}

func (s *Subscriber) attachDedup() {
	s.ka.onReconnect = func() {
		s.mu.Lock()
		s.skipRemaining = s.entriesConsumed
		s.mu.Unlock()
	}
}

// Next blocks until the next message is available, decompresses it, and
// returns it. It returns the keep-alive's surfaced error (TooManyRetriesError
// or an unrecoverable *SignalError) if the stream cannot be kept alive.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	for {
		if m, ok := s.dequeue(); ok {
			return m, nil
		}

		var frame protocol.Frame
		err := s.ka.withReader(ctx, func(r *protocol.FrameReader) error {
			f, err := r.ReadFrame()
			if err != nil {
				return err
			}
			frame = f
			return nil
		})
		if err != nil {
			return nil, err
		}

		msgs, err := s.decodeEntry(frame)
		if err != nil {
			return nil, err
		}
		if msgs == nil {
			continue // a non-payload frame, or an entry fully consumed by dedup
		}

		s.mu.Lock()
		s.entriesConsumed++
		s.queue = append(s.queue, msgs...)
		s.mu.Unlock()

		if m, ok := s.dequeue(); ok {
			return m, nil
		}
	}
}

func (s *Subscriber) dequeue() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, true
}

// decodeEntry turns one received frame into the (possibly multi-message)
// payload slice it represents, applying the reconnect dedup skip. It
// returns a *SignalError for a Signal frame, and a nil slice (not an
// error) for any other non-payload frame or for an entry skipped by
// dedup.
func (s *Subscriber) decodeEntry(frame protocol.Frame) ([][]byte, error) {
	if frame.Kind != protocol.KindMessage && frame.Kind != protocol.KindBatch {
		if frame.Kind == protocol.KindSignal {
			return nil, &SignalError{Kind: frame.Signal}
		}
		return nil, nil
	}

	s.mu.Lock()
	skip := s.skipRemaining > 0
	if skip {
		s.skipRemaining--
	}
	s.mu.Unlock()
	if skip {
		return nil, nil
	}

	switch frame.Kind {
	case protocol.KindMessage:
		decoded, err := s.compressor.Decompress(frame.Bytes)
		if err != nil {
			return nil, err
		}
		return [][]byte{decoded}, nil
	default: // protocol.KindBatch
		raw, err := s.compressor.Decompress(frame.Bytes)
		if err != nil {
			return nil, err
		}
		return decodeBatch(raw)
	}
}

// Close finishes the subscriber's underlying stream.
func (s *Subscriber) Close() error { return s.ka.Close() }
