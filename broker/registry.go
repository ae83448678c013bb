package broker

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/selium-io/selium/msglog"
	"github.com/selium-io/selium/protocol"
)

// ErrTopicKindMismatch is returned when a channel declares a role that
// implies a different Kind than the one already bound to that topic path
// (e.g. a Requestor opening against a path a Publisher already claimed).
var ErrTopicKindMismatch = errors.New("broker: topic already bound to a different kind")

// Registry is the broker's name ⇒ topic lookup, guarded by an exclusive
// lock held only for the insert/lookup: once a topic exists, all further
// traffic for it is serialized by the topic actor's own channels, not by
// this lock.
type Registry struct {
	mu     sync.Mutex
	topics map[string]Topic

	logCfg   msglog.Config
	archiver *msglog.Archiver
	reqrep   ReqRepConfig
}

// ReqRepConfig parameterizes every request/reply topic the registry
// creates: the buffered-request limit and the timeout before a
// requestor waiting on an unbound replier is told the stream closed
// prematurely. PendingTimeout of 0 disables the timeout (requests buffer
// indefinitely until a replier binds).
type ReqRepConfig struct {
	PendingLimit   int
	PendingTimeout time.Duration
}

// NewRegistry builds an empty Registry. logCfg seeds every pub/sub
// topic's msglog.Log; archiver may be nil (no tiered archival).
func NewRegistry(logCfg msglog.Config, archiver *msglog.Archiver, reqrep ReqRepConfig) *Registry {
	return &Registry{
		topics:   make(map[string]Topic),
		logCfg:   logCfg,
		archiver: archiver,
		reqrep:   reqrep,
	}
}

// GetOrCreate returns the topic bound to path, creating it (with the kind
// implied by role) if this is the first channel to ever reference path.
func (r *Registry) GetOrCreate(path string, role protocol.Role) (Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.topics[path]; ok {
		if t.Kind() != kindForRole(role) {
			return nil, errors.Wrapf(ErrTopicKindMismatch, "topic %q is %s, role implies %s", path, t.Kind(), kindForRole(role))
		}
		return t, nil
	}

	var (
		t   Topic
		err error
	)
	switch kindForRole(role) {
	case KindReqRep:
		t = newReqRepTopic(path, r.reqrepConfig())
	default:
		t, err = newPubSubTopic(path, r.logCfg, r.archiver)
	}
	if err != nil {
		return nil, err
	}

	r.topics[path] = t
	return t, nil
}

func (r *Registry) reqrepConfig() ReqRepConfig {
	cfg := r.reqrep
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = 256
	}
	return cfg
}

// Snapshot returns a stable copy of the registry for the admin HTTP
// surface's GET /v1/topics.
func (r *Registry) Snapshot() map[string]Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Kind, len(r.topics))
	for path, t := range r.topics {
		out[path] = t.Kind()
	}
	return out
}

// CloseAll signals every registered topic to close and waits for their
// tasks, used on broker shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		t.Close()
	}
}
