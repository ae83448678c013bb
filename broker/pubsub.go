package broker

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/selium-io/selium/logging"
	"github.com/selium-io/selium/msglog"
	"github.com/selium-io/selium/protocol"
)

// pubsubRegistration carries a freshly accepted channel from the acceptor
// into the topic actor's single goroutine.
type pubsubRegistration struct {
	publisher  *frameSink // non-nil for a Publisher registration
	subscriber *frameSink // non-nil for a Subscriber registration
	offset     protocol.Offset
}

type publishedFrame struct {
	from  *frameSink
	frame protocol.Frame
}

// pubSubTopic is the per-topic pub/sub runtime: a shared log, a
// registration point for publisher channels, and a subscriber supervisor
// fanning out from the log to every subscriber.
type pubSubTopic struct {
	path string
	log  *msglog.Log
	cfg  msglog.Config

	cleaner *msglog.Cleaner

	register chan pubsubRegistration
	frames   chan publishedFrame

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	streamIDs sequencer

	mu        sync.Mutex
	openSinks []*frameSink
	group     *errgroup.Group
}

func newPubSubTopic(path string, cfg msglog.Config, archiver *msglog.Archiver) (*pubSubTopic, error) {
	dir := topicDir(cfg.Dir, path)
	log, err := msglog.Open(dir, cfg)
	if err != nil {
		return nil, err
	}

	var cleaner *msglog.Cleaner
	if archiver != nil {
		cleaner = msglog.StartCleanerWithArchiver(log, archiver)
	} else {
		cleaner = msglog.StartCleaner(log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &pubSubTopic{
		path:     path,
		log:      log,
		cfg:      cfg,
		cleaner:  cleaner,
		register: make(chan pubsubRegistration, 16),
		frames:   make(chan publishedFrame, 256),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		group:    new(errgroup.Group),
	}
	go t.run()
	return t, nil
}

func (t *pubSubTopic) Path() string { return t.path }
func (t *pubSubTopic) Kind() Kind   { return KindPubSub }

// Register implements Topic.Register for the two pub/sub roles.
func (t *pubSubTopic) Register(role protocol.Role, stream *protocol.Stream) {
	// The wire format carries no offset field on NewStream; it is
	// threaded through the path via protocol.DecodeSubscriberPath (see
	// protocol/offset.go). Read the path before Split/newFrameSink so it
	// is captured regardless of which half the codec state lives on.
	_, offset, offsetErr := protocol.DecodeSubscriberPath(stream.Path())

	sink := newFrameSink(stream)

	switch role {
	case protocol.RolePublisher:
		t.trackSink(sink)
		t.group.Go(func() error {
			t.relayPublisher(sink)
			return nil
		})
	case protocol.RoleSubscriber:
		if offsetErr != nil {
			sink.SendSignalAndClose(protocol.SignalUnknownError)
			return
		}
		t.trackSink(sink)
		select {
		case t.register <- pubsubRegistration{subscriber: sink, offset: offset}:
		case <-t.ctx.Done():
			sink.Close()
		}
	default:
		sink.SendSignalAndClose(protocol.SignalUnknownError)
	}
}

// trackSink remembers sink so topic shutdown can force-close it,
// unblocking any goroutine parked in a blocking Recv/Send on it. Sinks
// are never removed from this list individually; the whole topic (and
// the list with it) is torn down together on Close.
func (t *pubSubTopic) trackSink(sink *frameSink) {
	t.mu.Lock()
	t.openSinks = append(t.openSinks, sink)
	t.mu.Unlock()
}

// relayPublisher drains Message/Batch frames from a publisher's channel
// into the topic's frame queue until the channel errors or the topic
// closes. Any other frame kind on a publisher channel is a protocol
// error: the offending channel is closed, the topic is unaffected.
func (t *pubSubTopic) relayPublisher(sink *frameSink) {
	select {
	case t.register <- pubsubRegistration{publisher: sink}:
	case <-t.ctx.Done():
		sink.Close()
		return
	}

	for {
		f, err := sink.Recv()
		if err != nil {
			sink.Close()
			return
		}
		if f.Kind != protocol.KindMessage && f.Kind != protocol.KindBatch {
			logging.Warningf("broker: topic %s: publisher sent illegal frame %s, closing channel", t.path, f)
			sink.Close()
			return
		}
		select {
		case t.frames <- publishedFrame{from: sink, frame: f}:
		case <-t.ctx.Done():
			sink.Close()
			return
		}
	}
}

func (t *pubSubTopic) run() {
	defer close(t.done)

	subs := newSubscriberSupervisor(t.ctx, t.log, t.cfg.SubscriberPollingInterval, t.terminate)
	defer subs.stopAll()

	for {
		select {
		case <-t.ctx.Done():
			return
		case reg := <-t.register:
			if reg.subscriber != nil {
				cursor := resolveOffset(reg.offset, t.log)
				subs.add(reg.subscriber, cursor)
			}
			// a publisher registration needs no bookkeeping beyond the
			// relay goroutine already spawned by Register; the stream id
			// sequencer is advanced here, but the id is neither stored nor
			// exposed anywhere.
			if reg.publisher != nil {
				_ = t.streamIDs.nextID()
			}
		case pf := <-t.frames:
			t.writeFrame(pf)
		}
	}
}

func (t *pubSubTopic) writeFrame(pf publishedFrame) {
	batchSize := uint32(1)
	if pf.frame.Kind == protocol.KindBatch {
		batchSize = countBatchRecords(pf.frame.Bytes)
	}
	_, err := t.log.Write(pf.frame.Bytes, batchSize, uint64(time.Now().UnixNano()))
	if err != nil {
		// A failed log write means the shared log can no longer be
		// trusted; the whole topic terminates, not just this publisher.
		logging.Errorf("broker: topic %s: log write failed, terminating topic: %v", t.path, err)
		t.terminate()
	}
}

// terminate cancels the topic's goroutines and force-closes every channel
// ever registered with it, unblocking goroutines parked in a blocking
// Recv or Send. It does not wait for them to exit (Close does) and is
// safe to call from the topic's own goroutines and more than once — both
// the log-failure path and ordinary shutdown funnel through here.
func (t *pubSubTopic) terminate() {
	t.cancel()

	t.mu.Lock()
	sinks := t.openSinks
	t.openSinks = nil
	t.mu.Unlock()
	for _, s := range sinks {
		s.Close()
	}
}

// countBatchRecords recovers a Batch frame's message count by walking it
// as a sequence of length-prefixed blobs, the uncompressed batch
// structure. When the publisher's builder selected a real compressor the
// bytes are opaque to the broker, so a malformed walk degrades to
// batch_size=1 rather than guessing: the broker never decompresses on a
// client's behalf.
func countBatchRecords(b []byte) uint32 {
	var count uint32
	pos := 0
	for pos < len(b) {
		if pos+4 > len(b) {
			return 1
		}
		n := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
		pos += 4 + n
		if pos > len(b) {
			return 1
		}
		count++
	}
	if count == 0 {
		return 1
	}
	return count
}

// Close terminates the topic, waits for its goroutines to exit, and
// stops the retention cleaner. This is what lets the broker's shutdown
// sequence join every topic task before the transport itself goes away.
func (t *pubSubTopic) Close() {
	t.terminate()

	<-t.done
	_ = t.group.Wait()
	t.cleaner.Stop()
}
