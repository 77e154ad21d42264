// Package enginesync pushes the displayed position to the analysis engine.
//
// Positions are debounced so that scrubbing through a game sends only the
// position the user settles on. Engine output is tagged with the navigation
// token of the position it was computed for and dropped on arrival when a
// newer token exists.
package enginesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/watcher"
)

// ErrEngineClosed is returned by an Engine whose process has exited.
var ErrEngineClosed = errors.New("analysis engine closed")

// Engine is the analysis backend.
type Engine interface {
	// SetPosition starts analysing pos. PV updates for it are delivered to
	// the OnPV callback carrying pos.Token.
	SetPosition(ctx context.Context, pos model.EnginePosition) error
	// Threat returns the opponent's best move if it were their turn.
	Threat(ctx context.Context, pos model.EnginePosition) (string, error)
	OnPV(fn func(model.PV))
	Stop() error
}

// Options configures a Scheduler.
type Options struct {
	Debounce time.Duration
	// Threats enables the one-shot threat search after each sync.
	Threats bool
	// Latest returns the current navigation token. Engine output for any
	// other token is dropped. Defaults to the last token passed to
	// RequestSync.
	Latest func() uint64
	// OnPV receives PV updates for the latest position.
	OnPV func(model.PV)
	// OnThreat receives the threat move for the latest position.
	OnThreat func(token uint64, move string)
	// OnRunning is called whenever the running flag changes.
	OnRunning func(running bool)
	// ThreatTimeout bounds a single threat search.
	ThreatTimeout time.Duration
}

// DefaultThreatTimeout bounds a threat search when Options leaves it unset.
const DefaultThreatTimeout = 10 * time.Second

// Scheduler debounces engine syncs and filters stale engine output.
type Scheduler struct {
	engine    Engine
	opts      Options
	debouncer *watcher.Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	running   bool
	requested *model.EnginePosition // last position passed to RequestSync
	next      *model.EnginePosition // fired position waiting for the worker
	lastToken uint64
	closed    bool
}

// New creates a scheduler and starts its worker. The engine starts stopped.
func New(engine Engine, opts Options) *Scheduler {
	if opts.ThreatTimeout <= 0 {
		opts.ThreatTimeout = DefaultThreatTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		engine:    engine,
		opts:      opts,
		debouncer: watcher.NewDebouncer(opts.Debounce),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	engine.OnPV(s.handlePV)
	go s.loop()
	return s
}

func (s *Scheduler) latest() uint64 {
	if s.opts.Latest != nil {
		return s.opts.Latest()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastToken
}

// RequestSync records pos as the position to analyse and restarts the
// debounce timer. Only the last position requested within the quiet
// period reaches the engine.
func (s *Scheduler) RequestSync(pos model.EnginePosition) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	p := pos
	s.requested = &p
	if pos.Token > s.lastToken {
		s.lastToken = pos.Token
	}
	s.mu.Unlock()

	s.debouncer.Trigger(func() { s.fire(p) })
}

func (s *Scheduler) fire(pos model.EnginePosition) {
	s.mu.Lock()
	if !s.running || s.closed {
		s.mu.Unlock()
		return
	}
	s.next = &pos
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop sends fired positions to the engine one at a time so the engine
// always ends up on the most recent one.
func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		s.mu.Lock()
		pos := s.next
		s.next = nil
		running := s.running
		s.mu.Unlock()
		if pos == nil || !running {
			continue
		}
		s.sync(*pos)
	}
}

func (s *Scheduler) sync(pos model.EnginePosition) {
	metrics.EngineSyncs.Inc()
	stop := metrics.Timer(metrics.EngineSync)
	err := s.engine.SetPosition(s.ctx, pos)
	stop()

	if err != nil {
		debug.Event(debug.LevelWarn, "enginesync", "set_position_failed", map[string]any{
			"token": pos.Token,
			"ply":   pos.Ply,
			"error": err.Error(),
		})
		if errors.Is(err, ErrEngineClosed) {
			s.setRunning(false)
		}
		return
	}
	debug.Log("enginesync: synced ply %d (token %d)", pos.Ply, pos.Token)

	if s.opts.Threats && !pos.Terminal {
		go s.threat(pos)
	}
}

func (s *Scheduler) threat(pos model.EnginePosition) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ThreatTimeout)
	defer cancel()

	stop := metrics.Timer(metrics.ThreatSearch)
	mv, err := s.engine.Threat(ctx, pos)
	stop()
	if err != nil {
		debug.Event(debug.LevelInfo, "enginesync", "threat_failed", map[string]any{
			"token": pos.Token,
			"error": err.Error(),
		})
		return
	}
	if pos.Token != s.latest() || !s.Running() {
		metrics.StaleThreats.Inc()
		debug.Log("enginesync: dropping threat for stale token %d", pos.Token)
		return
	}
	if s.opts.OnThreat != nil {
		s.opts.OnThreat(pos.Token, mv)
	}
}

func (s *Scheduler) handlePV(pv model.PV) {
	if pv.Token != s.latest() || !s.Running() {
		metrics.StalePVs.Inc()
		return
	}
	if s.opts.OnPV != nil {
		s.opts.OnPV(pv)
	}
}

// Start marks the engine running and syncs the last requested position
// without waiting for the debounce.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.closed || s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	req := s.requested
	s.mu.Unlock()

	s.notifyRunning(true)
	if req != nil {
		s.debouncer.Cancel()
		s.fire(*req)
	}
}

// Stop marks the engine stopped, drops any pending sync and halts the
// current search.
func (s *Scheduler) Stop() error {
	if !s.setRunning(false) {
		return nil
	}
	s.debouncer.Cancel()
	if err := s.engine.Stop(); err != nil && !errors.Is(err, ErrEngineClosed) {
		return err
	}
	return nil
}

// Running reports whether the engine is running.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// setRunning returns whether the flag changed.
func (s *Scheduler) setRunning(v bool) bool {
	s.mu.Lock()
	if s.running == v {
		s.mu.Unlock()
		return false
	}
	s.running = v
	if !v {
		s.next = nil
	}
	s.mu.Unlock()
	s.notifyRunning(v)
	return true
}

func (s *Scheduler) notifyRunning(v bool) {
	debug.Event(debug.LevelInfo, "enginesync", "running", map[string]any{"running": v})
	if s.opts.OnRunning != nil {
		s.opts.OnRunning(v)
	}
}

// Close stops the worker. Pending syncs are dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Cancel()
	s.cancel()
	<-s.done
}
