package client

import (
	"context"

	"github.com/selium-io/selium/compressor"
	"github.com/selium-io/selium/protocol"
)

// Builder is the staged stream configuration: a topic, then an optional
// codec/compressor, then optional batching (for publishers), then Open.
// Unlike a type-state encoding (a distinct Go type per stage), this is
// one struct with runtime validation at Open time — the four OpenX
// methods share every field but Batch, and a type-state ladder would
// need four near-identical staged type families to cover them.
type Builder struct {
	conn    *Connection
	backoff BackoffStrategy
	topic   string

	compressor compressor.Compressor
	batchSize  int
}

// NewBuilder starts a builder for topic over conn, retrying lost streams
// per backoff. compressor.None{} and no batching (batchSize 1, i.e. every
// Send produces its own Message frame) are the defaults.
func NewBuilder(conn *Connection, backoff BackoffStrategy, topic string) *Builder {
	return &Builder{conn: conn, backoff: backoff, topic: topic, compressor: compressor.None{}, batchSize: 1}
}

// Compressor selects the Compressor a Publisher's Send/Flush and a
// Subscriber's decode path use. The zero value is compressor.None{}.
func (b *Builder) Compressor(c compressor.Compressor) *Builder {
	b.compressor = c
	return b
}

// Batch enables publisher-side batching: up to n messages are
// accumulated and flushed as a single Batch frame. n <= 1 disables
// batching (the default).
func (b *Builder) Batch(n int) *Builder {
	b.batchSize = n
	return b
}

// OpenPublisher opens a Publisher stream against b's topic.
func (b *Builder) OpenPublisher(ctx context.Context) (*Publisher, error) {
	header := protocol.NewStreamFrame(protocol.RolePublisher, b.topic)
	ka := newKeepAlive(b.conn, header, b.backoff)
	if err := ka.open(ctx); err != nil {
		return nil, err
	}
	batchSize := b.batchSize
	if batchSize < 1 {
		batchSize = 1
	}
	return &Publisher{ka: ka, compressor: b.compressor, batchSize: batchSize}, nil
}

// OpenSubscriber opens a Subscriber stream against b's topic, starting
// from off (FromBeginning or FromEnd).
func (b *Builder) OpenSubscriber(ctx context.Context, off protocol.Offset) (*Subscriber, error) {
	path := protocol.EncodeSubscriberPath(b.topic, off)
	header := protocol.NewStreamFrame(protocol.RoleSubscriber, path)
	ka := newKeepAlive(b.conn, header, b.backoff)
	ka.path = b.topic
	if err := ka.open(ctx); err != nil {
		return nil, err
	}
	sub := &Subscriber{ka: ka, compressor: b.compressor}
	sub.attachDedup()
	return sub, nil
}

// OpenRequestor opens a Requestor stream against b's topic.
func (b *Builder) OpenRequestor(ctx context.Context) (*Requestor, error) {
	header := protocol.NewStreamFrame(protocol.RoleRequestor, b.topic)
	ka := newKeepAlive(b.conn, header, b.backoff)
	if err := ka.open(ctx); err != nil {
		return nil, err
	}
	r := &Requestor{
		ka:      ka,
		pending: make(map[uint32]chan protocol.Frame),
		done:    make(chan struct{}),
	}
	go r.recvLoop()
	return r, nil
}

// OpenReplier opens a Replier stream against b's topic. Exactly one
// Replier may be bound per topic at a time; a second concurrent attempt
// receives Signal(ReplierAlreadyBound) on its next I/O, surfaced as a
// *SignalError from Serve.
func (b *Builder) OpenReplier(ctx context.Context) (*Replier, error) {
	header := protocol.NewStreamFrame(protocol.RoleReplier, b.topic)
	ka := newKeepAlive(b.conn, header, b.backoff)
	if err := ka.open(ctx); err != nil {
		return nil, err
	}
	return &Replier{ka: ka}, nil
}
