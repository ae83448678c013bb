package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/selium-io/selium/transportapi"
)

// Connection is the shared transport handle every stream a client opens
// clones a reference to: each stream stores a handle so it can reopen
// itself on reconnect, but the handle itself never holds a
// back-reference to its streams. The underlying transportapi.Connection
// is guarded by a mutex held only while (re)dialing; steady-state
// OpenChannel calls race-free against a concurrent Reconnect because
// each caller snapshots the current connection once under the lock
// before using it outside of it.
type Connection struct {
	dialer transportapi.Dialer

	mu   sync.Mutex
	conn transportapi.Connection
}

// NewConnection wraps dialer. The first Dial (or the first reconnect
// attempt by any stream) establishes the underlying transport; no I/O
// happens in this constructor.
func NewConnection(dialer transportapi.Dialer) *Connection {
	return &Connection{dialer: dialer}
}

// Dial establishes (or re-establishes) the underlying transport
// connection, serialized against any other concurrent Dial/Reconnect
// call by c.mu — the only lock this shared handle ever takes.
func (c *Connection) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return errors.Wrap(err, "client: dial")
	}
	if c.conn != nil {
		_ = c.conn.CloseWithError(0, "reconnecting")
	}
	c.conn = conn
	return nil
}

// Reconnect is an alias for Dial used by keep-alive supervisors, kept as
// a distinct name so call sites read as "a stream is reopening the
// shared connection after a failure" rather than "the application is
// dialing for the first time".
func (c *Connection) Reconnect(ctx context.Context) error { return c.Dial(ctx) }

// OpenChannel opens a fresh bidirectional channel on whichever transport
// connection is current at the moment of the call. A stream calls this
// once at initial open and again after every successful Reconnect; it
// never needs to hold c.mu itself.
func (c *Connection) OpenChannel(ctx context.Context) (transportapi.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("client: connection not yet established")
	}
	ch, err := conn.OpenChannel(ctx)
	return ch, errors.Wrap(err, "client: open channel")
}

// Close tears down the current underlying transport connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.CloseWithError(0, "client closing")
}
