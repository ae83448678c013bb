package client

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/selium-io/selium/compressor"
	"github.com/selium-io/selium/protocol"
)

// Publisher is the client side of a publisher stream: it sends Message
// frames, or accumulates up to batchSize messages and flushes them as
// one Batch frame, wrapped in keep-alive so a lost transport retries and
// replays its NewStream registration transparently.
type Publisher struct {
	ka         *keepAlive
	compressor compressor.Compressor
	batchSize  int

	mu  sync.Mutex
	buf [][]byte
}

// Send compresses payload and either writes it immediately as a Message
// frame (batchSize == 1, the default) or appends it to the pending
// batch, flushing automatically once the batch reaches batchSize.
func (p *Publisher) Send(ctx context.Context, payload []byte) error {
	if p.batchSize <= 1 {
		encoded, err := p.compressor.Compress(payload)
		if err != nil {
			return err
		}
		return p.send(ctx, protocol.MessageFrame(encoded))
	}

	p.mu.Lock()
	p.buf = append(p.buf, payload)
	var flush [][]byte
	if len(p.buf) >= p.batchSize {
		flush, p.buf = p.buf, nil
	}
	p.mu.Unlock()

	if flush == nil {
		return nil
	}
	return p.sendBatch(ctx, flush)
}

// Flush writes any messages accumulated for batching but not yet sent,
// as a single (possibly short) Batch frame. A no-op if nothing is
// pending.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	flush := p.buf
	p.buf = nil
	p.mu.Unlock()

	if len(flush) == 0 {
		return nil
	}
	return p.sendBatch(ctx, flush)
}

func (p *Publisher) sendBatch(ctx context.Context, msgs [][]byte) error {
	raw := encodeBatch(msgs)
	compressed, err := p.compressor.Compress(raw)
	if err != nil {
		return err
	}
	return p.send(ctx, protocol.BatchFrame(compressed))
}

func (p *Publisher) send(ctx context.Context, f protocol.Frame) error {
	return p.ka.withWriter(ctx, func(w *protocol.FrameWriter) error { return w.WriteFrame(f) })
}

// encodeBatch concatenates msgs into a Batch frame's plaintext body: a
// length-prefixed sequence of messages, compressed as one unit by the
// caller. Must stay bit-compatible with
// broker/pubsub.go's countBatchRecords, which walks this same structure
// on the receiving side to recover batch_size.
func encodeBatch(msgs [][]byte) []byte {
	size := 0
	for _, m := range msgs {
		size += 4 + len(m)
	}
	out := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, m := range msgs {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(m)))
		out = append(out, lenBuf[:]...)
		out = append(out, m...)
	}
	return out
}

// decodeBatch reverses encodeBatch, for Subscriber's decode path.
func decodeBatch(b []byte) ([][]byte, error) {
	var out [][]byte
	pos := 0
	for pos < len(b) {
		if pos+4 > len(b) {
			return nil, errShortBatch
		}
		n := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
		pos += 4
		if pos+n > len(b) {
			return nil, errShortBatch
		}
		out = append(out, b[pos:pos+n])
		pos += n
	}
	return out, nil
}

// Close finishes the publisher's underlying stream, flushing nothing
// left in the batch buffer — callers that batch should call Flush first.
func (p *Publisher) Close() error { return p.ka.Close() }
