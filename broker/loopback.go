package broker

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/selium-io/selium/protocol"
)

// loopbackSink is a replySink with no transport underneath: a single
// buffered channel a local caller blocks on. It exists so the cloud-auth
// adapter can act as a requestor against the broker's own request/reply
// topic plane without opening a real transport channel to itself.
type loopbackSink struct {
	mu     sync.Mutex
	ch     chan protocol.Frame
	closed bool
}

func newLoopbackSink() *loopbackSink {
	return &loopbackSink{ch: make(chan protocol.Frame, 1)}
}

func (l *loopbackSink) Send(f protocol.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("broker: loopback sink closed")
	}
	select {
	case l.ch <- f:
	default:
	}
	return nil
}

func (l *loopbackSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	return nil
}
