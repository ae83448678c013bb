package broker

import (
	"context"
	"crypto/x509"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/protocol"
	"github.com/selium-io/selium/transportapi"
)

// Acceptor is the broker's connection/channel dispatch loop: accept
// transport connections, accept channels on each, read the channel's
// NewStream frame, validate the topic name, optionally run cloud auth,
// then hand the stream to its topic for registration. Fan-out across
// connections and channels is coordinated with errgroup.
type Acceptor struct {
	endpoint  transportapi.Endpoint
	registry  *Registry
	cloudAuth *CloudAuth

	group *errgroup.Group
}

// NewAcceptor builds an Acceptor. cloudAuth may be nil, disabling the
// cloud-auth step entirely.
func NewAcceptor(endpoint transportapi.Endpoint, registry *Registry, cloudAuth *CloudAuth) *Acceptor {
	return &Acceptor{endpoint: endpoint, registry: registry, cloudAuth: cloudAuth, group: new(errgroup.Group)}
}

// Run accepts connections until ctx is canceled or the endpoint returns a
// non-cancellation error, spawning one task per connection
// (handleConnection) and blocking until every channel handler it ever
// spawned has returned. Callers implement the rest of the shutdown
// sequence around this: cancel ctx (or close the endpoint) to stop
// Accept, let Run return, then call Registry.CloseAll to signal every
// topic closed, then close the transport endpoint if not already closed.
func (a *Acceptor) Run(ctx context.Context) error {
	defer a.group.Wait()

	for {
		conn, err := a.endpoint.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		a.group.Go(func() error {
			a.handleConnection(ctx, conn)
			return nil
		})
	}
}

func (a *Acceptor) handleConnection(ctx context.Context, conn transportapi.Connection) {
	connID := newConnID()
	logging.Infof("broker: connection %s accepted from %s", connID, conn.RemoteAddr())

	for {
		ch, err := conn.AcceptChannel(ctx)
		if err != nil {
			logging.Infof("broker: connection %s closed: %v", connID, err)
			return
		}
		a.group.Go(func() error {
			a.handleChannel(ctx, conn, ch)
			return nil
		})
	}
}

// handleChannel is the per-channel half of the dispatch: the broker's
// side of a channel never originates it, so it always starts from
// protocol.AcceptStream and ReadNewStream.
func (a *Acceptor) handleChannel(ctx context.Context, conn transportapi.Connection, ch transportapi.Channel) {
	stream := protocol.AcceptStream(ch)
	hdr, err := stream.ReadNewStream()
	if err != nil {
		stream.Close()
		return
	}

	// The wire NewStream frame carries no dedicated offset field; a
	// subscriber's starting offset rides along as a path suffix
	// (protocol/offset.go). Decode here only far enough to recover the
	// clean path for name validation and namespace extraction — the
	// topic's own Register re-decodes the full offset from stream.Path().
	path, _, err := protocol.DecodeSubscriberPath(hdr.Path)
	if err != nil {
		a.reject(stream, protocol.SignalUnknownError)
		return
	}

	if err := protocol.ValidateTopicName(path, false); err != nil {
		logging.Warningf("broker: rejecting channel from %s: %v", conn.RemoteAddr(), err)
		a.reject(stream, protocol.SignalInvalidTopicName)
		return
	}

	if a.cloudAuth != nil {
		ns, _, _ := strings.Cut(path, "/")
		if err := a.cloudAuth.Authorize(ctx, leafPublicKey(conn.PeerCertificates()), ns); err != nil {
			logging.Warningf("broker: cloud auth rejected %s for %s: %v", conn.RemoteAddr(), path, err)
			a.reject(stream, protocol.SignalCloudAuthFailed)
			return
		}
	}

	topic, err := a.registry.GetOrCreate(path, hdr.Role)
	if err != nil {
		logging.Warningf("broker: topic lookup failed for %s: %v", path, err)
		a.reject(stream, protocol.SignalUnknownError)
		return
	}

	topic.Register(hdr.Role, stream)
}

func (a *Acceptor) reject(stream *protocol.Stream, kind protocol.SignalKind) {
	_ = stream.Send(protocol.SignalFrame(kind))
	stream.Close()
}

// leafPublicKey recovers the connecting peer's public key in a form
// suitable for CloudAuth's fingerprint comparison, or nil if the
// connection presented no certificate (cloud auth then always fails
// unless the proxy itself is configured to accept anonymous peers,
// which this repo does not support).
func leafPublicKey(certs []*x509.Certificate) []byte {
	if len(certs) == 0 {
		return nil
	}
	der, err := x509.MarshalPKIXPublicKey(certs[0].PublicKey)
	if err != nil {
		return nil
	}
	return der
}
