package msglog

import (
	"context"
	"time"
)

// Cleaner periodically removes non-active segments whose newest entry has
// aged past the log's retention period: a ticking loop selecting between
// its interval and a cancellation signal.
type Cleaner struct {
	log      *Log
	cfg      Config
	archiver *Archiver
	cancel   context.CancelFunc
	done     chan struct{}
}

// StartCleaner launches the cleaner's background loop and returns a handle
// to stop it. A RetentionPeriod or CleanerInterval of 0 disables cleaning.
func StartCleaner(l *Log) *Cleaner {
	return startCleaner(l, nil)
}

// StartCleanerWithArchiver is StartCleaner, but uploads each stale segment
// to archiver before deleting it locally instead of deleting outright.
func StartCleanerWithArchiver(l *Log, archiver *Archiver) *Cleaner {
	return startCleaner(l, archiver)
}

func startCleaner(l *Log, archiver *Archiver) *Cleaner {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cleaner{log: l, cfg: l.cfg, archiver: archiver, cancel: cancel, done: make(chan struct{})}

	if c.cfg.CleanerInterval <= 0 || c.cfg.RetentionPeriod <= 0 {
		close(c.done)
		return c
	}

	go c.run(ctx)
	return c
}

func (c *Cleaner) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.CleanerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeStaleSegments(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cleaner) removeStaleSegments(now time.Time) {
	segments := c.log.Segments()
	if len(segments) == 0 {
		return
	}
	active := segments[len(segments)-1].BaseOffset

	for _, seg := range segments {
		if seg.BaseOffset == active {
			continue
		}
		newest, ok := seg.NewestTimestamp()
		if !ok {
			continue
		}
		age := now.Sub(time.Unix(0, int64(newest)))
		if age < c.cfg.RetentionPeriod {
			continue
		}
		if c.archiver != nil {
			_, _ = c.log.ArchiveBeforeRemove(context.Background(), c.archiver, seg.BaseOffset)
			continue
		}
		_, _ = c.log.RemoveSegment(seg.BaseOffset)
	}
}

// Stop cancels the cleaner's loop and waits for it to exit.
func (c *Cleaner) Stop() {
	c.cancel()
	<-c.done
}
