package broker

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"

	"github.com/selium-io/selium/protocol"
)

// fingerprintSeed is an arbitrary constant distinguishing this checksum's
// domain from any other xxhash.Checksum64S use in the process.
const fingerprintSeed = 0x53454c49 // "SELI"

// ProxyTopic is the reserved request/reply topic the broker itself acts
// as a requestor against, asking the well-known cloud-auth proxy which
// namespace a connecting client's public key is authorised for.
const ProxyTopic = protocol.ReservedNamespace + "/proxy"

// CloudAuth asks the proxy topic whether pubKey is authorised for ns,
// unless pubKey belongs to the proxy itself (that connection is exempt —
// it IS the authority). It is nil on a broker that doesn't enable cloud
// auth at all, the common case.
type CloudAuth struct {
	registry    *Registry
	proxyPubKey []byte
	timeout     time.Duration
}

// NewCloudAuth builds a CloudAuth adapter. proxyPubKey identifies the
// trusted proxy's own connection, exempting it from having to ask itself.
func NewCloudAuth(registry *Registry, proxyPubKey []byte, timeout time.Duration) *CloudAuth {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CloudAuth{registry: registry, proxyPubKey: proxyPubKey, timeout: timeout}
}

// getNamespaceRequest/Response are the JSON bodies exchanged with the
// proxy over the reserved request/reply topic — the broker's own
// req/rep topic plane (§4.6), used internally rather than just between
// external clients.
type getNamespaceRequest struct {
	PubKeyFingerprint string `json:"pub_key_fingerprint"`
}

type getNamespaceResponse struct {
	Namespace string `json:"namespace"`
}

// ErrCloudAuthRetry signals the caller should retry the connection later
// (no reply arrived within the timeout) — a slow proxy is not a hard
// authorization failure.
var ErrCloudAuthRetry = errors.New("broker: cloud auth proxy did not respond in time")

// ErrCloudAuthFailed signals the proxy authorised a different namespace
// than the one the client is registering against.
var ErrCloudAuthFailed = errors.New("broker: cloud auth namespace mismatch")

// Authorize checks whether pubKey is permitted to use namespace ns. A
// connection whose public key matches the configured proxy key is always
// authorized (it is the source of truth, not a subject of it).
func (ca *CloudAuth) Authorize(ctx context.Context, pubKey []byte, ns string) error {
	if ca.samePubKey(pubKey) {
		return nil
	}

	frame, err := ca.ask(ctx, pubKey)
	if err != nil {
		return err
	}
	if frame.Kind == protocol.KindSignal {
		return ErrCloudAuthRetry
	}

	var resp getNamespaceResponse
	if err := json.Unmarshal(frame.Bytes, &resp); err != nil {
		return errors.Wrap(err, "broker: decode cloud auth proxy reply")
	}
	if resp.Namespace != ns {
		return ErrCloudAuthFailed
	}
	return nil
}

func (ca *CloudAuth) samePubKey(pubKey []byte) bool {
	if len(ca.proxyPubKey) == 0 {
		return false
	}
	a, b := sha256.Sum256(ca.proxyPubKey), sha256.Sum256(pubKey)
	return a == b
}

// ask registers a loopbackSink as a requestor of ProxyTopic and forwards
// one GetNamespace request through it, using the same reqRepTopic
// machinery every external client's Request goes through — the broker is,
// for this one purpose, simultaneously a client of its own request/reply
// plane.
func (ca *CloudAuth) ask(ctx context.Context, pubKey []byte) (protocol.Frame, error) {
	topic, err := ca.registry.GetOrCreate(ProxyTopic, protocol.RoleRequestor)
	if err != nil {
		return protocol.Frame{}, errors.Wrap(err, "broker: resolve cloud auth proxy topic")
	}
	rr, ok := topic.(*reqRepTopic)
	if !ok {
		return protocol.Frame{}, errors.New("broker: proxy topic is not a request/reply topic")
	}

	body, err := json.Marshal(getNamespaceRequest{PubKeyFingerprint: fingerprint(pubKey)})
	if err != nil {
		return protocol.Frame{}, err
	}

	clientID := rr.clientIDs.nextID()
	local := newLoopbackSink()
	rr.mu.Lock()
	rr.requestors[clientID] = local
	rr.mu.Unlock()
	defer func() {
		rr.mu.Lock()
		delete(rr.requestors, clientID)
		rr.mu.Unlock()
	}()

	rr.forwardRequest(clientID, 1, body, local)

	select {
	case f, ok := <-local.ch:
		if !ok {
			return protocol.Frame{}, errors.New("broker: loopback sink closed before reply")
		}
		return f, nil
	case <-time.After(ca.timeout):
		return protocol.Frame{}, ErrCloudAuthRetry
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

// fingerprint is a short, non-cryptographic correlation id for the request
// body only — the security-sensitive comparison is samePubKey's sha256,
// not this.
func fingerprint(pubKey []byte) string {
	return strconv.FormatUint(xxhash.Checksum64S(pubKey, fingerprintSeed), 16)
}
