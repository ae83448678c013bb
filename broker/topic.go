// Package broker implements the broker-side topic plane (publisher
// fan-in, subscriber fan-out, the request/reply matchmaker), the
// connection acceptor/dispatcher, and the surfaces around them:
// cloud-auth, the admin/observability HTTP endpoint, and layered
// CLI+YAML configuration.
package broker

import "github.com/selium-io/selium/protocol"

// Kind distinguishes a topic's traffic pattern, fixed at the moment the
// first channel registers that topic path.
type Kind int

const (
	// KindPubSub topics admit Publisher and Subscriber roles.
	KindPubSub Kind = iota
	// KindReqRep topics admit Requestor and Replier roles.
	KindReqRep
)

func (k Kind) String() string {
	if k == KindReqRep {
		return "req/rep"
	}
	return "pub/sub"
}

// kindForRole maps a connecting stream's declared Role to the topic Kind
// it implies.
func kindForRole(role protocol.Role) Kind {
	if role == protocol.RoleRequestor || role == protocol.RoleReplier {
		return KindReqRep
	}
	return KindPubSub
}

// Topic is the common handle the acceptor holds for any registered topic,
// regardless of kind: a name, a way to hand it a freshly accepted channel
// for a given role, and a way to tear it down on broker shutdown.
type Topic interface {
	Path() string
	Kind() Kind
	// Register plugs an accepted, header-validated stream into the
	// topic's fan-in or fan-out for the given role. It takes ownership
	// of stream: on any registration or protocol error it closes the
	// stream itself — topic actors never surface per-client errors,
	// they close the offending channel.
	Register(role protocol.Role, stream *protocol.Stream)
	// Close cancels every goroutine the topic owns and releases its
	// resources. It blocks until those goroutines have exited.
	Close()
}
