// Package logging is Selium's leveled, buffered logger, shared by the
// broker and every client package: package-level severity-prefixed
// functions writing through a mutex-guarded buffered writer, with
// InitFlags registering the "log to stderr" knobs on a standard flag set.
// Selium never rotates or writes per-role log files — a broker or client
// process logs to one stream for its whole lifetime.
package logging

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() byte {
	switch s {
	case sevWarn:
		return 'W'
	case sevErr:
		return 'E'
	default:
		return 'I'
	}
}

var (
	mu           sync.Mutex
	out          = bufio.NewWriter(os.Stderr)
	toStderr     bool
	alsoToStderr bool
	lastFlush    = time.Now()
)

// InitFlags registers Selium's logging flags on flset so a broker or
// client binary wires logging the same way it wires every other flag.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of the default writer")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error in addition to the default writer")
}

// SetOutput redirects non-stderr log output, e.g. to a file opened by the
// binary's main(). The default is os.Stderr, already buffered.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	_ = out.Flush()
	out = bufio.NewWriter(w)
}

func log(sev severity, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	line := fmt.Sprintf(format, args...)
	if !toStderr {
		fmt.Fprintf(out, "%c%s %s\n", sev.tag(), time.Now().Format("0102 15:04:05.000000"), line)
	}
	if alsoToStderr || toStderr {
		fmt.Fprintf(os.Stderr, "%c%s %s\n", sev.tag(), time.Now().Format("0102 15:04:05.000000"), line)
	}
	if time.Since(lastFlush) > 2*time.Second {
		_ = out.Flush()
		lastFlush = time.Now()
	}
}

func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }

// Flush forces the buffered writer out; call on clean shutdown.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	_ = out.Flush()
}
