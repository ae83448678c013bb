package client

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/protocol"
)

// Handler answers one ServerRequest's payload with a reply payload. An
// error return is logged and the request is left unanswered (a
// per-request failure never breaks the stream); callers that want the
// requestor to see a typed failure should encode that into the reply
// bytes themselves, since the wire carries no error channel of its own
// for application-level failures.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Replier is the client side of a replier stream: it reads
// ServerRequest frames and answers each with a ServerReply,
// dispatching concurrently (one goroutine per in-flight request) so a
// slow handler never blocks the next request from being read.
type Replier struct {
	ka *keepAlive
}

// Serve reads ServerRequest frames and dispatches each to handler until
// ctx is canceled, the keep-alive gives up, or the broker signals this
// replier was redundant (Signal(ReplierAlreadyBound) — returned as
// *SignalError, unrecoverable: a second Serve call must open a fresh
// Replier, not retry this one).
func (rp *Replier) Serve(ctx context.Context, handler Handler) error {
	group, gctx := errgroup.WithContext(ctx)

	for {
		var frame protocol.Frame
		err := rp.ka.withReader(ctx, func(r *protocol.FrameReader) error {
			f, err := r.ReadFrame()
			if err != nil {
				return err
			}
			frame = f
			return nil
		})
		if err != nil {
			_ = group.Wait()
			return err
		}

		switch frame.Kind {
		case protocol.KindServerRequest:
			clientID, reqID, payload := frame.ClientID, frame.RequestID, frame.Bytes
			group.Go(func() error {
				rp.handle(gctx, handler, clientID, reqID, payload)
				return nil
			})
		case protocol.KindSignal:
			if frame.Signal == protocol.SignalReplierAlreadyBound {
				_ = group.Wait()
				return &SignalError{Kind: frame.Signal}
			}
			logging.Warningf("client: replier stream received %s", frame)
		}
	}
}

func (rp *Replier) handle(ctx context.Context, handler Handler, clientID uint64, reqID uint32, payload []byte) {
	reply, err := handler(ctx, payload)
	if err != nil {
		logging.Errorf("client: replier handler failed for request %d: %v", reqID, err)
		return
	}
	if err := rp.ka.withWriter(ctx, func(w *protocol.FrameWriter) error {
		return w.WriteFrame(protocol.ServerReplyFrame(clientID, reqID, reply))
	}); err != nil {
		logging.Errorf("client: replier failed to send reply %d: %v", reqID, err)
	}
}

// Close finishes the replier's underlying stream.
func (rp *Replier) Close() error { return rp.ka.Close() }
