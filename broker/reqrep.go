package broker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/protocol"
)

// pendingRequest is a request buffered because no replier is currently
// bound: it waits, bounded, for a replier to bind, or expires with
// Signal(StreamClosedPrematurely) after the configured timeout.
type pendingRequest struct {
	clientID uint64
	reqID    uint32
	bytes    []byte
	deadline time.Time // zero: no timeout, buffer indefinitely
}

// reqRepTopic is the per-topic request/reply matchmaker: exactly one
// bound replier, zero or more requestors keyed by a sequentially
// assigned client_id, and a bounded pending-request buffer for the
// no-replier window.
type reqRepTopic struct {
	path string
	cfg  ReqRepConfig

	mu         sync.Mutex
	replier    *frameSink
	requestors map[uint64]replySink
	pending    []pendingRequest
	clientIDs  sequencer

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

func newReqRepTopic(path string, cfg ReqRepConfig) *reqRepTopic {
	ctx, cancel := context.WithCancel(context.Background())
	return &reqRepTopic{
		path:       path,
		cfg:        cfg,
		requestors: make(map[uint64]replySink),
		ctx:        ctx,
		cancel:     cancel,
		group:      new(errgroup.Group),
	}
}

// replySink is the narrow capability reqRepTopic needs from anything it
// forwards a Reply or ServerRequest to: an external client's frameSink
// (the common case), or — for the cloud-auth adapter's internal use of
// this same machinery — an in-process loopbackSink with no real
// transport underneath.
type replySink interface {
	Send(protocol.Frame) error
	Close() error
}

func (t *reqRepTopic) Path() string { return t.path }
func (t *reqRepTopic) Kind() Kind   { return KindReqRep }

func (t *reqRepTopic) Register(role protocol.Role, stream *protocol.Stream) {
	sink := newFrameSink(stream)

	switch role {
	case protocol.RoleReplier:
		t.registerReplier(sink)
	case protocol.RoleRequestor:
		t.registerRequestor(sink)
	default:
		sink.SendSignalAndClose(protocol.SignalUnknownError)
	}
}

func (t *reqRepTopic) registerReplier(sink *frameSink) {
	t.mu.Lock()
	if t.replier != nil {
		t.mu.Unlock()
		sink.SendSignalAndClose(protocol.SignalReplierAlreadyBound)
		return
	}
	t.replier = sink
	drain := t.drainPendingLocked()
	t.mu.Unlock()

	for _, p := range drain {
		_ = sink.Send(protocol.ServerRequestFrame(p.clientID, p.reqID, p.bytes))
	}

	t.group.Go(func() error {
		t.relayReplier(sink)
		return nil
	})
}

// drainPendingLocked clears the pending buffer and returns every request
// still within its deadline, for forwarding to the replier that just
// bound. Must be called with t.mu held.
func (t *reqRepTopic) drainPendingLocked() []pendingRequest {
	now := time.Now()
	out := t.pending[:0:0]
	for _, p := range t.pending {
		if !p.deadline.IsZero() && now.After(p.deadline) {
			continue
		}
		out = append(out, p)
	}
	t.pending = nil
	return out
}

func (t *reqRepTopic) relayReplier(sink *frameSink) {
	defer sink.Close()

	for {
		f, err := sink.Recv()
		if err != nil {
			t.mu.Lock()
			if t.replier == sink {
				t.replier = nil
			}
			t.mu.Unlock()
			return
		}
		if f.Kind != protocol.KindServerReply {
			logging.Warningf("broker: topic %s: replier sent illegal frame %s, closing channel", t.path, f)
			t.mu.Lock()
			if t.replier == sink {
				t.replier = nil
			}
			t.mu.Unlock()
			return
		}

		t.mu.Lock()
		requestor := t.requestors[f.ClientID]
		t.mu.Unlock()

		if requestor == nil {
			continue // requestor departed; the reply is dropped
		}
		_ = requestor.Send(protocol.ReplyFrame(f.RequestID, f.Bytes))
	}
}

func (t *reqRepTopic) registerRequestor(sink *frameSink) {
	clientID := t.clientIDs.nextID()

	t.mu.Lock()
	t.requestors[clientID] = sink
	t.mu.Unlock()

	t.group.Go(func() error {
		t.relayRequestor(clientID, sink)
		return nil
	})
}

func (t *reqRepTopic) relayRequestor(clientID uint64, sink *frameSink) {
	defer sink.Close()
	defer func() {
		t.mu.Lock()
		delete(t.requestors, clientID)
		out := t.pending[:0:0]
		for _, p := range t.pending {
			if p.clientID != clientID {
				out = append(out, p)
			}
		}
		t.pending = out
		t.mu.Unlock()
	}()

	for {
		f, err := sink.Recv()
		if err != nil {
			return
		}
		if f.Kind != protocol.KindRequest {
			logging.Warningf("broker: topic %s: requestor sent illegal frame %s, closing channel", t.path, f)
			return
		}
		t.forwardRequest(clientID, f.RequestID, f.Bytes, sink)
	}
}

func (t *reqRepTopic) forwardRequest(clientID uint64, reqID uint32, bytes []byte, sink replySink) {
	t.mu.Lock()
	replier := t.replier
	if replier == nil {
		var deadline time.Time
		if t.cfg.PendingTimeout > 0 {
			deadline = time.Now().Add(t.cfg.PendingTimeout)
		}
		if len(t.pending) >= t.cfg.PendingLimit {
			t.mu.Unlock()
			_ = sink.Send(protocol.SignalFrame(protocol.SignalStreamClosedPrematurely))
			return
		}
		t.pending = append(t.pending, pendingRequest{clientID: clientID, reqID: reqID, bytes: bytes, deadline: deadline})
		t.mu.Unlock()

		if t.cfg.PendingTimeout > 0 {
			t.group.Go(func() error {
				t.expirePending(clientID, reqID, t.cfg.PendingTimeout, sink)
				return nil
			})
		}
		return
	}
	t.mu.Unlock()

	_ = replier.Send(protocol.ServerRequestFrame(clientID, reqID, bytes))
}

// expirePending signals StreamClosedPrematurely to a requestor whose
// request is still buffered (no replier ever bound, or bound too late)
// once its configured timeout elapses.
func (t *reqRepTopic) expirePending(clientID uint64, reqID uint32, timeout time.Duration, sink replySink) {
	select {
	case <-time.After(timeout):
	case <-t.ctx.Done():
		return
	}

	t.mu.Lock()
	found := false
	out := t.pending[:0:0]
	for _, p := range t.pending {
		if p.clientID == clientID && p.reqID == reqID {
			found = true
			continue
		}
		out = append(out, p)
	}
	if found {
		t.pending = out
	}
	t.mu.Unlock()

	if found {
		_ = sink.Send(protocol.SignalFrame(protocol.SignalStreamClosedPrematurely))
	}
}

// Close cancels every pending-expiry timer this topic owns, force-closes
// the bound replier and every known requestor (unblocking their relay
// goroutines' Recv calls), and waits for all of them to exit — the same
// "signal, force-close, await" shutdown shape as pubSubTopic.Close.
func (t *reqRepTopic) Close() {
	t.cancel()

	t.mu.Lock()
	sinks := make([]replySink, 0, len(t.requestors)+1)
	if t.replier != nil {
		sinks = append(sinks, t.replier)
	}
	for _, r := range t.requestors {
		sinks = append(sinks, r)
	}
	t.mu.Unlock()

	for _, s := range sinks {
		s.Close()
	}
	_ = t.group.Wait()
}
