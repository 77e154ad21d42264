// Package debug provides conditional debug logging for boardsync.
//
// Debug logging is enabled by setting the BOARDSYNC_DEBUG environment variable:
//
//	BOARDSYNC_DEBUG=1 boardsync game.pgn
//
// When enabled, debug messages are written to stderr with timestamps.
// When disabled (default), all debug functions are no-ops.
//
// Usage:
//
//	import "github.com/vanderheijden86/boardsync/pkg/debug"
//
//	func fetch() {
//	    debug.Log("fetching ply %d (token %d)", ply, token)
//	    // ...
//	    debug.LogTiming("fetch", elapsed)
//	}
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var (
	mu sync.RWMutex
	// enabled is true when BOARDSYNC_DEBUG env var is set
	enabled bool
	// logger writes to stderr with [BOARDSYNC] prefix
	logger *log.Logger
)

func init() {
	if os.Getenv("BOARDSYNC_DEBUG") != "" {
		enabled = true
		logger = newLogger(os.Stderr)
	}
	initEvents()
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "[BOARDSYNC] ", log.Ltime|log.Lmicroseconds)
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = e
	if e && logger == nil {
		logger = newLogger(os.Stderr)
	}
}

// SetOutput redirects debug output. Used by the TUI so log lines do not
// tear the alternate screen, and by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	logger.Printf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	logger.Printf("%s took %v", name, d)
}

// LogIf writes a debug message only if the condition is true.
func LogIf(cond bool, format string, args ...any) {
	if !cond {
		return
	}
	Log(format, args...)
}

// LogEnterExit logs function entry and exit with timing.
// Usage:
//
//	func reconcile() {
//	    defer debug.LogEnterExit("reconcile")()
//	    // ...
//	}
func LogEnterExit(name string) func() {
	if !Enabled() {
		return func() {}
	}
	Log("-> %s", name)
	start := time.Now()
	return func() {
		Log("<- %s (%v)", name, time.Since(start))
	}
}

// Dump logs a value with its type for debugging complex structures.
func Dump(name string, v any) {
	Log("%s: %T = %+v", name, v, v)
}

// Assert logs a message and panics if the condition is false.
// Only active when debug is enabled.
func Assert(cond bool, msg string) {
	if !Enabled() || cond {
		return
	}
	Log("ASSERTION FAILED: %s", msg)
	panic(fmt.Sprintf("debug assertion failed: %s", msg))
}
