package debug

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Level controls structured event verbosity.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "none"
	}
}

// ParseLevel maps a BOARDSYNC_LOG_LEVEL value to a Level. Unknown values
// fall back to warn.
func ParseLevel(raw string) Level {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "none", "off", "0":
		return LevelNone
	case "error", "err", "1":
		return LevelError
	case "warn", "warning", "2":
		return LevelWarn
	case "info", "3":
		return LevelInfo
	case "debug", "4":
		return LevelDebug
	case "trace", "5":
		return LevelTrace
	default:
		return LevelWarn
	}
}

var (
	eventMu    sync.Mutex
	eventLevel = LevelWarn
	eventOut   io.Writer
	traceFile  *os.File
)

func initEvents() {
	eventLevel = ParseLevel(os.Getenv("BOARDSYNC_LOG_LEVEL"))
	if path := strings.TrimSpace(os.Getenv("BOARDSYNC_TRACE")); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			traceFile = f
		}
	}
}

// SetEventLevel changes the structured event threshold.
func SetEventLevel(l Level) {
	eventMu.Lock()
	defer eventMu.Unlock()
	eventLevel = l
}

// SetEventOutput redirects structured events. nil restores the standard
// logger.
func SetEventOutput(w io.Writer) {
	eventMu.Lock()
	defer eventMu.Unlock()
	eventOut = w
}

// Event writes one JSON line describing a component event when level is at
// or below the configured threshold. The trace file, when configured,
// receives every event regardless of level.
func Event(level Level, component, event string, fields map[string]any) {
	if level == LevelNone {
		return
	}
	eventMu.Lock()
	defer eventMu.Unlock()
	if traceFile == nil && (eventLevel == LevelNone || level > eventLevel) {
		return
	}

	payload := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"component": component,
		"event":     event,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("debug: failed to marshal event %s: %v", event, err)
		return
	}

	if eventLevel != LevelNone && level <= eventLevel {
		if eventOut != nil {
			_, _ = eventOut.Write(append(b, '\n'))
		} else {
			log.Printf("%s", b)
		}
	}
	if traceFile != nil {
		_, _ = traceFile.Write(append(b, '\n'))
	}
}

// CloseTrace closes the trace file if one is open.
func CloseTrace() {
	eventMu.Lock()
	defer eventMu.Unlock()
	if traceFile != nil {
		_ = traceFile.Close()
		traceFile = nil
	}
}
