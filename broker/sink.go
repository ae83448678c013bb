package broker

import (
	"sync"

	"github.com/selium-io/selium/protocol"
)

// frameSink wraps one accepted protocol.Stream after its NewStream frame
// has already been consumed by the acceptor. It splits the stream into
// independent read/write halves (protocol.Stream.Split) so one goroutine
// can drain incoming frames while others concurrently push outgoing ones
// — exactly the shape the request/reply actor needs for its bound
// replier (§4.6: the replier is written to by every requestor's relay
// goroutine, and read from by the actor's own reply-draining goroutine).
type frameSink struct {
	stream *protocol.Stream
	reader *protocol.FrameReader
	writer *protocol.FrameWriter

	mu sync.Mutex
}

func newFrameSink(s *protocol.Stream) *frameSink {
	r, w := s.Split()
	return &frameSink{stream: s, reader: r, writer: w}
}

// Send writes f to the sink, serialized against any other concurrent
// sender sharing this sink.
func (fs *frameSink) Send(f protocol.Frame) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writer.WriteFrame(f)
}

// Recv reads the next frame. Callers must not call Recv concurrently from
// more than one goroutine; each sink has exactly one dedicated reader.
func (fs *frameSink) Recv() (protocol.Frame, error) {
	return fs.reader.ReadFrame()
}

// SendSignalAndClose is the standard "reject and drop" path used
// throughout §4.5/§4.6 for misbehaving or redundant channels: best-effort
// signal, then close regardless of whether the signal made it out.
func (fs *frameSink) SendSignalAndClose(kind protocol.SignalKind) {
	_ = fs.Send(protocol.SignalFrame(kind))
	fs.Close()
}

func (fs *frameSink) Close() error { return fs.stream.Close() }
