// Package uciengine runs a UCI chess engine (such as Stockfish) as the
// analysis backend.
//
// Analysis is iterative deepening: the engine searches depth 1, 2, ... up to
// the configured depth and a PV update is emitted after each completed
// depth. A new position abandons the running search at the next depth
// boundary. Threat searches run on a second engine process so they never
// disturb the main analysis.
package uciengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/freeeve/uci"

	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/enginesync"
	"github.com/vanderheijden86/boardsync/pkg/model"
)

// ErrEngineClosed is returned once the engine process has exited or Close
// was called.
var ErrEngineClosed = enginesync.ErrEngineClosed

// Options configures an Engine.
type Options struct {
	Path        string
	Args        []string
	MultiPV     int
	Threads     int
	HashMB      int
	Depth       int
	ThreatDepth int
}

func (o Options) withDefaults() Options {
	if o.MultiPV <= 0 {
		o.MultiPV = 3
	}
	if o.Depth <= 0 {
		o.Depth = 20
	}
	if o.ThreatDepth <= 0 {
		o.ThreatDepth = 12
	}
	return o
}

// process is the subset of *uci.Engine the adapter drives.
type process interface {
	SetOptions(opt uci.Options) error
	SendCommand(cmd string) error
	GoDepth(depth int, resultOpts ...uint) (*uci.Results, error)
	Close()
}

// starter launches an engine process.
type starter func(path string, args ...string) (process, error)

func startUCI(path string, args ...string) (process, error) {
	eng, err := uci.NewEngine(path, args...)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

// Engine implements enginesync.Engine over a UCI executable.
type Engine struct {
	opts  Options
	start starter

	mu   sync.Mutex // serializes use of main
	main process

	threatMu sync.Mutex
	threat   process

	cbMu sync.RWMutex
	onPV func(model.PV)

	gen    atomic.Uint64
	closed atomic.Bool
}

var _ enginesync.Engine = (*Engine)(nil)

// New starts the main engine process.
func New(opts Options) (*Engine, error) {
	return newEngine(opts, startUCI)
}

func newEngine(opts Options, start starter) (*Engine, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("uciengine: no engine path configured")
	}
	main, err := start(opts.Path, opts.Args...)
	if err != nil {
		return nil, fmt.Errorf("start engine %s: %w", opts.Path, err)
	}
	if err := main.SetOptions(uci.Options{MultiPV: opts.MultiPV, Hash: opts.HashMB, Threads: opts.Threads}); err != nil {
		main.Close()
		return nil, fmt.Errorf("configure engine: %w", err)
	}
	debug.Event(debug.LevelInfo, "uciengine", "started", map[string]any{
		"path":    opts.Path,
		"multipv": opts.MultiPV,
		"depth":   opts.Depth,
	})
	return &Engine{opts: opts, start: start, main: main}, nil
}

// OnPV registers the PV callback. It is called from the search goroutine.
func (e *Engine) OnPV(fn func(model.PV)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onPV = fn
}

func (e *Engine) emit(pv model.PV) {
	e.cbMu.RLock()
	fn := e.onPV
	e.cbMu.RUnlock()
	if fn != nil {
		fn(pv)
	}
}

// SetPosition abandons the current search and starts analysing pos in the
// background.
func (e *Engine) SetPosition(ctx context.Context, pos model.EnginePosition) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	gen := e.gen.Add(1)
	go e.analyse(gen, pos)
	return nil
}

func (e *Engine) current(gen uint64) bool {
	return e.gen.Load() == gen && !e.closed.Load()
}

func (e *Engine) analyse(gen uint64, pos model.EnginePosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen) {
		return
	}

	if err := e.main.SendCommand(PositionCommand(pos)); err != nil {
		e.fail(err)
		return
	}
	mult := SideMultiplier(pos.FEN)
	for depth := 1; depth <= e.opts.Depth; depth++ {
		if !e.current(gen) {
			return
		}
		res, err := e.main.GoDepth(depth, uci.HighestDepthOnly)
		if err != nil {
			e.fail(err)
			return
		}
		if !e.current(gen) {
			return
		}
		if pv := ToPV(pos.Token, pos.FEN, depth, res, mult); len(pv.Lines) > 0 {
			e.emit(pv)
		}
	}
	debug.Log("uciengine: finished depth %d for token %d", e.opts.Depth, pos.Token)
}

// fail marks the engine closed after an I/O error with the process.
func (e *Engine) fail(err error) {
	if e.closed.Swap(true) {
		return
	}
	debug.Event(debug.LevelError, "uciengine", "process_failed", map[string]any{"error": err.Error()})
}

// Threat returns the best move for the side not to move, searched on a
// separate process to ThreatDepth. An empty string means no move.
func (e *Engine) Threat(ctx context.Context, pos model.EnginePosition) (string, error) {
	if e.closed.Load() {
		return "", ErrEngineClosed
	}
	fen, err := FlipTurn(pos.FEN)
	if err != nil {
		return "", err
	}

	type reply struct {
		move string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		mv, err := e.searchThreat(fen)
		ch <- reply{mv, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.move, r.err
	}
}

func (e *Engine) searchThreat(fen string) (string, error) {
	e.threatMu.Lock()
	defer e.threatMu.Unlock()

	if e.threat == nil {
		p, err := e.start(e.opts.Path, e.opts.Args...)
		if err != nil {
			return "", fmt.Errorf("start threat engine: %w", err)
		}
		if err := p.SetOptions(uci.Options{MultiPV: 1, Hash: e.opts.HashMB, Threads: 1}); err != nil {
			p.Close()
			return "", fmt.Errorf("configure threat engine: %w", err)
		}
		e.threat = p
	}
	if err := e.threat.SendCommand("position fen " + fen); err != nil {
		return "", err
	}
	res, err := e.threat.GoDepth(e.opts.ThreatDepth, uci.HighestDepthOnly)
	if err != nil {
		return "", err
	}
	if res.BestMove == "" || res.BestMove == "(none)" || res.BestMove == "0000" {
		return "", nil
	}
	return res.BestMove, nil
}

// Stop abandons the running search after its current depth.
func (e *Engine) Stop() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.gen.Add(1)
	return nil
}

// Close shuts down both engine processes.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.gen.Add(1)

	e.mu.Lock()
	e.main.Close()
	e.mu.Unlock()

	e.threatMu.Lock()
	if e.threat != nil {
		e.threat.Close()
		e.threat = nil
	}
	e.threatMu.Unlock()
}
