package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/selium-io/selium/protocol"
)

// Requestor is the client side of a requestor stream: it sends Request
// frames tagged with a locally-minted request_id and correlates each
// Reply back to the caller awaiting it, even when replies for concurrent
// requests return out of order — the one background recvLoop goroutine
// is the stream's sole reader, dispatching by request_id into a
// per-request channel.
type Requestor struct {
	ka *keepAlive

	nextID uint32

	mu      sync.Mutex
	pending map[uint32]chan protocol.Frame

	done     chan struct{}
	closeErr error
	once     sync.Once
}

// Request sends payload as a new Request frame and waits for its
// correlated Reply. timeout <= 0 waits indefinitely (bounded only by
// ctx); a positive timeout abandons the pending request locally and
// returns *RequestTimeoutError without sending any cancellation to the
// broker — no cancel frame exists on the wire, so the reply, if it ever
// arrives, is discarded.
func (r *Requestor) Request(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	id := atomic.AddUint32(&r.nextID, 1)
	ch := make(chan protocol.Frame, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	if err := r.ka.withWriter(ctx, func(w *protocol.FrameWriter) error {
		return w.WriteFrame(protocol.RequestFrame(id, payload))
	}); err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case f := <-ch:
		if f.Kind == protocol.KindSignal {
			return nil, &SignalError{Kind: f.Signal}
		}
		return f.Bytes, nil
	case <-timeoutCh:
		return nil, &RequestTimeoutError{RequestID: id}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, r.closeErr
	}
}

// recvLoop is the requestor's single background reader, started by
// Builder.OpenRequestor. It runs until the stream's keep-alive gives up
// (TooManyRetriesError) or hits an unrecoverable error, at which point
// every still-pending Request unblocks with that same error.
func (r *Requestor) recvLoop() {
	for {
		var frame protocol.Frame
		err := r.ka.withReader(context.Background(), func(rd *protocol.FrameReader) error {
			f, err := rd.ReadFrame()
			if err != nil {
				return err
			}
			frame = f
			return nil
		})
		if err != nil {
			r.fail(err)
			return
		}

		switch frame.Kind {
		case protocol.KindReply:
			r.mu.Lock()
			ch := r.pending[frame.RequestID]
			r.mu.Unlock()
			if ch != nil {
				select {
				case ch <- frame:
				default:
				}
			}
		case protocol.KindSignal:
			// Signal carries no request_id: it applies to the stream
			// as a whole (e.g. StreamClosedPrematurely from an unbound
			// replier's timeout), so every currently pending request
			// is told about it rather than one arbitrarily chosen one.
			r.mu.Lock()
			for _, ch := range r.pending {
				select {
				case ch <- frame:
				default:
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *Requestor) fail(err error) {
	r.once.Do(func() {
		r.closeErr = errors.Wrap(err, "client: requestor stream failed")
		close(r.done)
	})
}

// Close finishes the requestor's underlying stream.
func (r *Requestor) Close() error { return r.ka.Close() }
