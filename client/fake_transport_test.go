package client

import (
	"context"
	"crypto/x509"
	"io"
	"sync"

	"github.com/selium-io/selium/transportapi"
)

// pipeBuf is one direction of an in-memory duplex channel: writes append
// to an internal buffer and never block, reads block until data or close.
// Unlike net.Pipe (fully synchronous, write blocks until a reader shows
// up) this matches the buffered semantics of a real QUIC stream, which
// keepAlive relies on when it replays a NewStream header before the
// broker side has gotten around to reading it.
type pipeBuf struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	closed bool
}

func newPipeBuf() *pipeBuf {
	p := &pipeBuf{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipeBuf) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.data = append(p.data, b...)
	p.cond.Broadcast()
	return len(b), nil
}

func (p *pipeBuf) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.data) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *pipeBuf) close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// fakeChannel is one end of an in-memory transportapi.Channel pair.
type fakeChannel struct {
	rd, wr *pipeBuf
}

func newFakeChannelPair() (fakeChannel, fakeChannel) {
	a, b := newPipeBuf(), newPipeBuf()
	return fakeChannel{rd: a, wr: b}, fakeChannel{rd: b, wr: a}
}

func (f fakeChannel) Read(b []byte) (int, error)  { return f.rd.Read(b) }
func (f fakeChannel) Write(b []byte) (int, error) { return f.wr.Write(b) }

func (f fakeChannel) Close() error {
	f.rd.close()
	f.wr.close()
	return nil
}

func (f fakeChannel) CloseWrite() error {
	f.wr.close()
	return nil
}

// fakeConnection is a transportapi.Connection whose OpenChannel mints a
// fresh channel pair per call, handing the broker-side half to the test
// over serverChannels so it can drive protocol.AcceptStream directly —
// no real transport, matching the narrow seam transportapi.Connection
// defines.
type fakeConnection struct {
	serverChannels chan transportapi.Channel
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{serverChannels: make(chan transportapi.Channel, 8)}
}

func (c *fakeConnection) OpenChannel(context.Context) (transportapi.Channel, error) {
	clientHalf, serverHalf := newFakeChannelPair()
	c.serverChannels <- serverHalf
	return clientHalf, nil
}

func (c *fakeConnection) AcceptChannel(context.Context) (transportapi.Channel, error) {
	select {}
}

func (c *fakeConnection) PeerCertificates() []*x509.Certificate { return nil }
func (c *fakeConnection) RemoteAddr() string                    { return "fake" }
func (c *fakeConnection) CloseWithError(uint64, string) error   { return nil }

// fakeDialer always reconnects to the same fakeConnection; each
// keep-alive recovery still gets a genuinely fresh channel out of it,
// which is all the reconnect path observes.
type fakeDialer struct{ conn *fakeConnection }

func (d *fakeDialer) Dial(context.Context) (transportapi.Connection, error) { return d.conn, nil }
