package msglog

import "time"

// Config parameterizes a Log's on-disk layout and background policies.
// Field names mirror the broker CLI flags (--log-segments-directory,
// --log-maximum-entries, etc.); see broker/config.go for the flag-parsing
// layer that populates this struct.
type Config struct {
	// Dir is the root directory under which every topic's segments live,
	// as <Dir>/<namespace>/<topic>/<base_offset>.{data,index}.
	Dir string

	// MaxIndexEntries is the fixed index capacity C per segment.
	MaxIndexEntries int

	// FlushIntervalWrites triggers a flush after this many writes since
	// the last one; 0 disables the writes-based trigger.
	FlushIntervalWrites int

	// FlushInterval triggers a flush after this much wall time has
	// elapsed since the last one; 0 disables the time-based trigger.
	FlushInterval time.Duration

	// RetentionPeriod is how long a non-active segment's newest entry may
	// age before the cleaner removes the segment.
	RetentionPeriod time.Duration

	// CleanerInterval is how often the retention cleaner runs.
	CleanerInterval time.Duration

	// SubscriberPollingInterval is how long a subscriber task sleeps
	// after an empty read_slice before polling again.
	SubscriberPollingInterval time.Duration
}

// DefaultConfig returns sane defaults, used by tests and as a base for the
// broker's CLI-populated configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                       dir,
		MaxIndexEntries:           4096,
		FlushIntervalWrites:       100,
		FlushInterval:             time.Second,
		RetentionPeriod:           7 * 24 * time.Hour,
		CleanerInterval:           time.Minute,
		SubscriberPollingInterval: 50 * time.Millisecond,
	}
}
