package broker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/msglog"
	"github.com/selium-io/selium/protocol"
)

// subscriberSupervisor spawns one task per subscriber, draining the
// shared log from that subscriber's cursor forward and pushing each
// record as a Message or Batch frame. Termination is driven by the
// topic's cancellation context, propagated here so dropping the topic
// handle cancels every subscriber task deterministically. Fan-out uses
// errgroup, same as the acceptor's per-connection dispatch.
type subscriberSupervisor struct {
	ctx          context.Context
	log          *msglog.Log
	pollInterval time.Duration

	// failTopic terminates the whole owning topic; invoked when the
	// shared log itself fails, which no single subscriber can be
	// quarantined from.
	failTopic func()

	group *errgroup.Group
}

func newSubscriberSupervisor(ctx context.Context, log *msglog.Log, pollInterval time.Duration, failTopic func()) *subscriberSupervisor {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &subscriberSupervisor{
		ctx:          ctx,
		log:          log,
		pollInterval: pollInterval,
		failTopic:    failTopic,
		group:        new(errgroup.Group),
	}
}

func (s *subscriberSupervisor) add(sink *frameSink, cursor uint64) {
	s.group.Go(func() error {
		s.run(sink, cursor)
		return nil
	})
}

func (s *subscriberSupervisor) run(sink *frameSink, cursor uint64) {
	defer sink.Close()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		records, next, err := s.log.ReadSlice(cursor, nil)
		if err != nil {
			// The shared log is broken for every reader and writer on
			// this topic, not just this subscriber: terminate the topic.
			logging.Errorf("broker: subscriber read_slice failed, terminating topic: %v", err)
			s.failTopic()
			return
		}
		cursor = next

		if len(records) == 0 {
			select {
			case <-time.After(s.pollInterval):
			case <-s.ctx.Done():
				return
			}
			continue
		}

		for _, rec := range records {
			frame := protocol.MessageFrame(rec.Bytes)
			if rec.BatchSize > 1 {
				frame = protocol.BatchFrame(rec.Bytes)
			}
			if err := sink.Send(frame); err != nil {
				// a dead sink terminates this subscriber, not the topic
				return
			}
		}
	}
}

// stopAll waits for every subscriber task spawned by this supervisor to
// observe ctx.Done and exit. Callers must already have canceled ctx
// before calling stopAll, or this blocks forever.
func (s *subscriberSupervisor) stopAll() {
	_ = s.group.Wait()
}
