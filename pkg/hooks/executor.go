package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vanderheijden86/boardsync/pkg/debug"
)

// HookResult records one hook run.
type HookResult struct {
	Hook     string
	Phase    HookPhase
	Success  bool
	Stdout   string
	Stderr   string
	Error    error
	Duration time.Duration
}

// Executor runs the hooks of one export.
type Executor struct {
	config  *Config
	context ExportContext
	results []HookResult
}

// NewExecutor creates an executor for config and the given export.
func NewExecutor(config *Config, ctx ExportContext) *Executor {
	if config == nil {
		config = &Config{}
	}
	return &Executor{config: config, context: ctx}
}

// RunHooks loads <dir>/hooks.yaml and returns an executor, or nil when
// noHooks is set or nothing is configured.
func RunHooks(dir string, ctx ExportContext, noHooks bool) (*Executor, error) {
	if noHooks {
		return nil, nil
	}
	loader := NewLoader(WithDir(dir))
	if err := loader.Load(); err != nil {
		return nil, err
	}
	for _, w := range loader.Warnings() {
		debug.Event(debug.LevelWarn, "hooks", "config_warning", map[string]any{"warning": w})
	}
	if !loader.HasHooks() {
		return nil, nil
	}
	return NewExecutor(loader.Config(), ctx), nil
}

// Around runs write between the pre- and post-export hooks configured in
// dir. A failing pre-export hook cancels the write. The returned executor is
// nil when no hooks ran.
func Around(dir string, ctx ExportContext, noHooks bool, write func() error) (*Executor, error) {
	e, err := RunHooks(dir, ctx, noHooks)
	if err != nil {
		return nil, err
	}
	if e != nil {
		if err := e.RunPreExport(); err != nil {
			return e, fmt.Errorf("export cancelled: %w", err)
		}
	}
	if err := write(); err != nil {
		return e, err
	}
	if e != nil {
		if err := e.RunPostExport(); err != nil {
			return e, err
		}
	}
	return e, nil
}

// RunPreExport runs pre-export hooks in order and stops at the first
// failing hook with on_error=fail.
func (e *Executor) RunPreExport() error {
	for _, h := range e.config.Hooks.PreExport {
		r := e.run(h, PreExport)
		if !r.Success && h.OnError != "continue" {
			return fmt.Errorf("pre-export hook %q failed: %w", h.Name, r.Error)
		}
	}
	return nil
}

// RunPostExport runs every post-export hook and reports the first failure
// of a hook with on_error=fail.
func (e *Executor) RunPostExport() error {
	var first error
	for _, h := range e.config.Hooks.PostExport {
		r := e.run(h, PostExport)
		if !r.Success && h.OnError == "fail" && first == nil {
			first = fmt.Errorf("post-export hook %q failed: %w", h.Name, r.Error)
		}
	}
	return first
}

func (e *Executor) run(h Hook, phase HookPhase) HookResult {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
	cmd.Env = append(os.Environ(), e.context.ToEnv()...)
	for k, v := range h.Env {
		cmd.Env = append(cmd.Env, k+"="+os.ExpandEnv(v))
	}
	// Children of sh may hold the pipes open after a timeout kill.
	cmd.WaitDelay = 500 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r := HookResult{
		Hook:     h.Name,
		Phase:    phase,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.Error = fmt.Errorf("timed out after %s", timeout)
	case err != nil:
		r.Error = err
	default:
		r.Success = true
	}

	debug.Event(debug.LevelDebug, "hooks", "ran", map[string]any{
		"hook":     h.Name,
		"phase":    string(phase),
		"success":  r.Success,
		"duration": r.Duration.String(),
	})
	e.results = append(e.results, r)
	return r
}

// Results returns the runs so far, in order.
func (e *Executor) Results() []HookResult {
	return append([]HookResult(nil), e.results...)
}

// Summary is a short report of the runs, with one line per failure.
func (e *Executor) Summary() string {
	if len(e.results) == 0 {
		return ""
	}
	ok, failed := 0, 0
	var lines []string
	for _, r := range e.results {
		if r.Success {
			ok++
			continue
		}
		failed++
		msg := fmt.Sprintf("  %s (%s): %v", r.Hook, r.Phase, r.Error)
		if r.Stderr != "" {
			msg += ": " + truncate(r.Stderr, 120)
		}
		lines = append(lines, msg)
	}
	head := fmt.Sprintf("Hooks: %d succeeded, %d failed", ok, failed)
	return strings.Join(append([]string{head}, lines...), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
