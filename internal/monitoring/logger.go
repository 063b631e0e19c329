// Package monitoring holds the process-wide diagnostic loggers used by the
// reconstruction stages and the CLI.
package monitoring

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables Debugf output.
func SetVerbose(on bool) { verbose.Store(on) }

// Verbose reports whether Debugf output is enabled.
func Verbose() bool { return verbose.Load() }

// Warnf logs through Logf with a warning prefix.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}

// Debugf logs through Logf only when verbose output is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}

// Recorder collects formatted log lines. Install it with SetLogger(r.Logf).
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf records one formatted line.
func (r *Recorder) Logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
