// Package transportapi defines the narrow seam between Selium's core
// protocol/broker/client logic and the concrete certificate-authenticated,
// multiplexed, bidirectional transport underneath it (the QUIC handshake,
// certificate loading, and connection establishment). transportquic
// provides the one production adapter (quic-go); tests exercise the same
// broker and client code over in-memory fakes implementing these same
// interfaces.
package transportapi

import (
	"context"
	"crypto/x509"
	"io"
)

// Channel is one bidirectional logical stream multiplexed over a
// Connection: exactly what protocol.Stream wraps with framing and the
// state machine. CloseWrite half-closes the send direction, matching
// protocol.Stream.Finish's halfCloser interface.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
	CloseWrite() error
}

// Connection is one established transport session between a client and
// the broker, capable of opening or accepting any number of Channels.
// PeerCertificates exposes the connection's authenticated peer chain, the
// seam the cloud-auth adapter (broker/cloudauth.go) uses to recover the
// connecting client's public key without the core topic/codec logic ever
// touching TLS.
type Connection interface {
	OpenChannel(ctx context.Context) (Channel, error)
	AcceptChannel(ctx context.Context) (Channel, error)
	PeerCertificates() []*x509.Certificate
	RemoteAddr() string
	CloseWithError(code uint64, reason string) error
}

// Endpoint is the broker's listening side: it accepts Connections, each of
// which yields Channels.
type Endpoint interface {
	Accept(ctx context.Context) (Connection, error)
	Addr() string
	Close() error
}

// Dialer is the client's side: it establishes one Connection to the
// broker's Endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}
