// Package transportquic is the one production transportapi.{Endpoint,
// Dialer,Connection,Channel} implementation, backed by
// github.com/quic-go/quic-go. QUIC transport setup (TLS handshake,
// certificate loading, connection establishment) stays behind the
// transportapi seam so nothing in protocol/ or broker/ ever touches
// quic-go directly.
package transportquic

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/selium-io/selium/transportapi"
)

// TLSFiles names the PEM-encoded certificate material the broker or
// client loads from disk via the --cert/--key/--ca flags. This package
// only consumes already-loaded material; reading the files themselves is
// left to the caller (loadTLSFiles in cmd/selium-broker/main.go).
type TLSFiles struct {
	CertPEM, KeyPEM []byte
	CAPEM           []byte // empty: use the system root pool
}

// BuildTLSConfig loads TLSFiles into a *tls.Config suitable for either
// side of the connection. serverSide selects whether client certificates
// are required (mutual TLS, matching the broker's --ca flag requiring a
// CA to verify connecting clients' public keys for cloud-auth).
func BuildTLSConfig(files TLSFiles, serverSide bool, nextProtos []string) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(files.CertPEM, files.KeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "transportquic: load certificate")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   nextProtos,
		MinVersion:   tls.VersionTLS13,
	}

	if len(files.CAPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(files.CAPEM) {
			return nil, errors.New("transportquic: no certificates parsed from CA PEM")
		}
		if serverSide {
			cfg.ClientCAs = pool
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.RootCAs = pool
		}
	}

	return cfg, nil
}

// Endpoint wraps a *quic.Listener as a transportapi.Endpoint.
type Endpoint struct {
	ln *quic.Listener
}

// Listen binds addr and returns an Endpoint accepting QUIC connections
// authenticated per tlsConf. maxIdleTimeout and statelessRetry mirror the
// broker's --max-idle-timeout and --stateless-retry flags.
func Listen(addr string, tlsConf *tls.Config, maxIdleTimeout time.Duration, statelessRetry bool) (*Endpoint, error) {
	qConf := &quic.Config{
		MaxIdleTimeout:           maxIdleTimeout,
		RequireAddressValidation: func(net.Addr) bool { return statelessRetry },
	}
	ln, err := quic.ListenAddr(addr, tlsConf, qConf)
	if err != nil {
		return nil, errors.Wrap(err, "transportquic: listen")
	}
	return &Endpoint{ln: ln}, nil
}

func (e *Endpoint) Accept(ctx context.Context) (transportapi.Connection, error) {
	conn, err := e.ln.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "transportquic: accept connection")
	}
	return &Connection{conn: conn}, nil
}

func (e *Endpoint) Addr() string { return e.ln.Addr().String() }

func (e *Endpoint) Close() error { return e.ln.Close() }

// Dialer wraps a remote address and TLS config as a transportapi.Dialer.
type Dialer struct {
	addr    string
	tlsConf *tls.Config
}

// NewDialer builds a Dialer for the client side of the handshake.
func NewDialer(addr string, tlsConf *tls.Config) *Dialer {
	return &Dialer{addr: addr, tlsConf: tlsConf}
}

func (d *Dialer) Dial(ctx context.Context) (transportapi.Connection, error) {
	conn, err := quic.DialAddr(ctx, d.addr, d.tlsConf, &quic.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "transportquic: dial")
	}
	return &Connection{conn: conn}, nil
}

// Connection wraps a quic.Connection as a transportapi.Connection.
type Connection struct {
	conn quic.Connection
}

func (c *Connection) OpenChannel(ctx context.Context) (transportapi.Channel, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "transportquic: open stream")
	}
	return &Channel{stream: stream}, nil
}

func (c *Connection) AcceptChannel(ctx context.Context) (transportapi.Channel, error) {
	stream, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "transportquic: accept stream")
	}
	return &Channel{stream: stream}, nil
}

func (c *Connection) PeerCertificates() []*x509.Certificate {
	state := c.conn.ConnectionState().TLS
	return state.PeerCertificates
}

func (c *Connection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *Connection) CloseWithError(code uint64, reason string) error {
	return c.conn.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

// Channel wraps a quic.Stream as a transportapi.Channel.
type Channel struct {
	stream quic.Stream
}

func (ch *Channel) Read(p []byte) (int, error)  { return ch.stream.Read(p) }
func (ch *Channel) Write(p []byte) (int, error) { return ch.stream.Write(p) }

// Close stops reading immediately and closes the send direction (the
// same close CloseWrite performs); used when a protocol error makes the
// channel unusable. Orderly shutdowns should call CloseWrite
// first and let the peer see EOF.
func (ch *Channel) Close() error {
	ch.stream.CancelRead(0)
	return ch.stream.Close()
}

// CloseWrite half-closes the stream's send direction, matching
// protocol.Stream.Finish's halfCloser seam.
func (ch *Channel) CloseWrite() error { return ch.stream.Close() }
