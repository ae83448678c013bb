package broker

import (
	"sync/atomic"

	"github.com/teris-io/shortid"
)

// connIDGen mints short, URL-safe correlation ids for log lines tracing
// one accepted transport connection across its many channels.
var connIDGen = shortid.MustNew(1, shortid.DefaultABC, 0x5E11D)

func newConnID() string {
	id, err := connIDGen.Generate()
	if err != nil {
		return "conn-unknown"
	}
	return id
}

// sequencer hands out strictly increasing uint64 ids, used for a topic's
// publisher stream ids and a request/reply topic's sequential client_id
// assignment. Safe for concurrent use.
type sequencer struct{ next uint64 }

func (s *sequencer) nextID() uint64 { return atomic.AddUint64(&s.next, 1) }
