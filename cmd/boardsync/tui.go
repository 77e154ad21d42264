package main

import (
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/debug"
)

const autoCloseEnv = "BOARDSYNC_TUI_AUTOCLOSE_MS"

// tuiRunner runs the board screen and owns the controller's lifetime.
// Shutdown closes the controller first; the model sees the closed update
// stream and quits on its own. The program is killed only if it has not
// exited within grace.
type tuiRunner struct {
	ctrl      *analyzer.Controller
	autoClose time.Duration
	grace     time.Duration
	opts      []tea.ProgramOption
}

func newTUIRunner(ctrl *analyzer.Controller) *tuiRunner {
	return &tuiRunner{
		ctrl:      ctrl,
		autoClose: autoCloseFromEnv(),
		grace:     5 * time.Second,
		opts:      []tea.ProgramOption{tea.WithAltScreen()},
	}
}

// autoCloseFromEnv reads the auto-quit delay used by scripted runs.
func autoCloseFromEnv() time.Duration {
	v := os.Getenv(autoCloseEnv)
	if v == "" {
		return 0
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		debug.Log("tui: ignoring %s=%q", autoCloseEnv, v)
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (r *tuiRunner) Run(m tea.Model) error {
	defer r.ctrl.Close()

	opts := append([]tea.ProgramOption{tea.WithoutSignalHandler()}, r.opts...)
	p := tea.NewProgram(m, opts...)

	runDone := make(chan struct{})
	defer close(runDone)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	trigger := make(chan struct{})
	go func() {
		var timer <-chan time.Time
		if r.autoClose > 0 {
			t := time.NewTimer(r.autoClose)
			defer t.Stop()
			timer = t.C
		}
		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-timer:
		}
		close(trigger)
	}()
	go r.shutdown(p, trigger, runDone, sigCh)

	_, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted)) {
		return nil
	}
	return err
}

// shutdown closes the controller once trigger fires, then kills the program
// on a second signal or when grace runs out.
func (r *tuiRunner) shutdown(p *tea.Program, trigger, runDone <-chan struct{}, sigCh <-chan os.Signal) {
	select {
	case <-runDone:
		return
	case <-trigger:
	}

	r.ctrl.Close()

	select {
	case <-runDone:
		return
	case <-sigCh:
	case <-time.After(r.grace):
	}
	p.Kill()
}
