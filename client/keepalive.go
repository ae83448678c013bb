package client

import (
	"context"
	"sync"
	"time"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/protocol"
)

// halves is one channel's independent read/write halves, as returned by
// protocol.Stream.Split: a requestor or replier reads and writes
// concurrently from two different goroutines (recvLoop versus
// Request/handle), which Split supports — one dedicated reader, one
// dedicated writer, both validating against the stream's shared codec
// timeline. Publisher and Subscriber only ever use one side of halves,
// but splitting unconditionally keeps keepAlive uniform across all four
// roles.
type halves struct {
	stream *protocol.Stream // kept only for Close/Finish; never read/written after Split
	reader *protocol.FrameReader
	writer *protocol.FrameWriter
}

// keepAlive is the protocol-independent reconnect wrapper: a stream's
// "how to re-register me" is reduced to one replayable header frame
// plus a Connection to reopen a channel on. Every one of the four
// role-specific stream types (Publisher, Subscriber, Requestor, Replier)
// embeds a keepAlive and drives its I/O exclusively through
// withWriter/withReader so recovery is identical across roles.
//
// The wire format has no dedicated registration-ack frame — the broker
// only ever sends a Signal when it is rejecting a registration
// (ReplierAlreadyBound, InvalidTopicName, ...); there is nothing to wait
// for on a successful one. So reopening never blocks on a speculative
// read: the replayed NewStream frame either succeeds silently or is
// rejected, and a rejection surfaces as a Signal on the very next frame
// the role reads in its normal course of business (a publisher's next
// write attempt receiving a Signal in reply, a requestor's next Request,
// a replier's next ServerRequest poll, a subscriber's next poll). The
// error classification in withWriter/withReader (isRecoverable) already
// treats any Signal as unrecoverable, so the "await ack" behavior falls
// out of the ordinary recv path rather than a dedicated step.
type keepAlive struct {
	conn    *Connection
	header  protocol.Frame
	path    string
	backoff BackoffStrategy

	mu       sync.Mutex
	current  halves
	attempts int

	// onReconnect, if set, runs after a successful recover() swaps in a
	// fresh pair of halves, before recover returns. Only Subscriber uses
	// this, to snapshot its dedup high-water mark (see subscriber.go).
	onReconnect func()
}

func newKeepAlive(conn *Connection, header protocol.Frame, backoff BackoffStrategy) *keepAlive {
	return &keepAlive{conn: conn, header: header, path: header.Path, backoff: backoff}
}

// open performs the very first channel open and NewStream send for this
// stream, outside of any error-recovery path.
func (k *keepAlive) open(ctx context.Context) error {
	h, err := k.dialAndRegister(ctx)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.current = h
	k.mu.Unlock()
	return nil
}

func (k *keepAlive) dialAndRegister(ctx context.Context) (halves, error) {
	ch, err := k.conn.OpenChannel(ctx)
	if err != nil {
		return halves{}, err
	}
	stream := protocol.NewStream(ch)
	if err := stream.Send(k.header); err != nil {
		stream.Close()
		return halves{}, err
	}
	reader, writer := stream.Split()
	return halves{stream: stream, reader: reader, writer: writer}, nil
}

func (k *keepAlive) currentHalves() halves {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// recover runs the recovery procedure once: bump the attempt counter,
// fail with TooManyRetriesError past MaxAttempts, sleep the backoff
// delay, reconnect the shared Connection, open a fresh channel, and
// replay the registration header. On success the new halves are swapped
// in and the attempt counter is left untouched here — callers reset it
// via resetAttempts after their next successful user operation, not
// inside recover itself, since recover does not know whether the
// caller's retried operation will itself succeed.
func (k *keepAlive) recover(ctx context.Context, cause error) error {
	if !isRecoverable(cause) {
		return cause
	}

	k.mu.Lock()
	k.attempts++
	attempt := k.attempts
	k.mu.Unlock()

	max := k.backoff.MaxAttempts()
	if max == 0 || attempt > max {
		return &TooManyRetriesError{Path: k.path, Attempts: attempt}
	}

	delay := k.backoff.Next(attempt)
	logging.Warningf("client: %s: reconnecting in %s (attempt %d): %v", k.path, delay, attempt, cause)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := k.conn.Reconnect(ctx); err != nil {
		return err
	}
	h, err := k.dialAndRegister(ctx)
	if err != nil {
		return err
	}

	k.mu.Lock()
	old := k.current
	k.current = h
	onReconnect := k.onReconnect
	k.mu.Unlock()
	if old.stream != nil {
		old.stream.Close()
	}
	if onReconnect != nil {
		onReconnect()
	}
	return nil
}

// resetAttempts clears the retry counter after a successful user
// operation.
func (k *keepAlive) resetAttempts() {
	k.mu.Lock()
	k.attempts = 0
	k.mu.Unlock()
}

// withWriter runs fn against the current send half, retrying through
// recover on any recoverable error until fn succeeds, an unrecoverable
// error is hit, or retries are exhausted.
func (k *keepAlive) withWriter(ctx context.Context, fn func(*protocol.FrameWriter) error) error {
	for {
		err := fn(k.currentHalves().writer)
		if err == nil {
			k.resetAttempts()
			return nil
		}
		if rerr := k.recover(ctx, err); rerr != nil {
			return rerr
		}
	}
}

// withReader runs fn against the current receive half, retrying through
// recover on any recoverable error until fn succeeds, an unrecoverable
// error is hit, or retries are exhausted.
func (k *keepAlive) withReader(ctx context.Context, fn func(*protocol.FrameReader) error) error {
	for {
		err := fn(k.currentHalves().reader)
		if err == nil {
			k.resetAttempts()
			return nil
		}
		if rerr := k.recover(ctx, err); rerr != nil {
			return rerr
		}
	}
}

// Close tears down the channel currently in use. It does not touch the
// shared Connection, which other streams may still be using.
func (k *keepAlive) Close() error {
	h := k.currentHalves()
	if h.stream == nil {
		return nil
	}
	return h.stream.Finish()
}
