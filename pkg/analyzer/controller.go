// Package analyzer is the board controller. It owns the navigation index,
// the rendered pieces, the promotion gate and the overlay arrows, and
// publishes an immutable View after every change.
//
// Every navigation or move bumps a monotonically increasing token. Fetches
// run in the background and carry the token they were issued with; a
// result whose token is no longer current is discarded on arrival, so the
// last command always wins regardless of completion order.
package analyzer

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/enginesync"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/overlay"
	"github.com/vanderheijden86/boardsync/pkg/promotion"
	"github.com/vanderheijden86/boardsync/pkg/reconcile"
	"github.com/vanderheijden86/boardsync/pkg/watcher"
)

// PositionStore produces authoritative snapshots. Implementations must be
// safe for concurrent use.
type PositionStore interface {
	// Snapshot returns the position after ply; -1 is the start position.
	Snapshot(ctx context.Context, ply int) (*model.BoardSnapshot, error)
	// ApplyMove plays req from the position after basePly and returns the
	// resulting snapshot.
	ApplyMove(ctx context.Context, basePly int, req model.MoveRequest) (*model.BoardSnapshot, error)
	// Len is the number of moves in the loaded line.
	Len() int
}

// Options configures a Controller.
type Options struct {
	Mode Mode
	// Debounce is the engine sync quiet period.
	Debounce time.Duration
	// Threats enables the threat search after each engine sync.
	Threats bool
	// StartEngine starts analysis immediately.
	StartEngine    bool
	ShowSuggestion bool
	ShowThreat     bool
	// GhostPlies bounds the hover preview.
	GhostPlies int
	Flipped    bool
	// FetchTimeout bounds a single store call. Zero means no limit.
	FetchTimeout time.Duration
}

// DefaultOptions shows both engine arrows in sandbox mode.
func DefaultOptions() Options {
	return Options{
		Mode:           Sandbox,
		Debounce:       watcher.DefaultDebounceDuration,
		Threats:        true,
		ShowSuggestion: true,
		ShowThreat:     true,
		GhostPlies:     overlay.DefaultGhostPlies,
	}
}

// Controller serializes all board commands behind one mutex.
type Controller struct {
	store PositionStore
	sched *enginesync.Scheduler
	gate  promotion.Gate
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	latest  atomic.Uint64
	updates chan View

	mu       sync.Mutex
	index    int
	token    uint64
	loading  bool
	applying bool // a move is on its way to the store
	applyTo  int  // ply the pending move will occupy
	pieces   []model.RenderedPiece
	snapshot *model.BoardSnapshot
	arrows   overlay.ArrowSet
	ghosts   []model.GhostPiece
	hovered  int
	pv       *model.PV
	threat   string
	running  bool
	flipped  bool
	lastErr  error
	seq      uint64
	view     View
	closed   bool
}

// New creates a controller over store. engine may be nil, in which case
// the engine commands return ErrNoEngine.
func New(store PositionStore, engine enginesync.Engine, opts Options) *Controller {
	if opts.GhostPlies <= 0 {
		opts.GhostPlies = overlay.DefaultGhostPlies
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:   store,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan View, 1),
		index:   -1,
		flipped: opts.Flipped,
	}
	if engine != nil {
		c.sched = enginesync.New(engine, enginesync.Options{
			Debounce:  opts.Debounce,
			Threats:   opts.Threats,
			Latest:    c.latest.Load,
			OnPV:      c.onPV,
			OnThreat:  c.onThreat,
			OnRunning: c.onRunning,
		})
		if opts.StartEngine {
			c.sched.Start()
		}
	}
	c.mu.Lock()
	c.publishLocked()
	c.mu.Unlock()
	return c
}

// Updates delivers published views. The channel holds only the newest
// view; a slow reader skips intermediate ones.
func (c *Controller) Updates() <-chan View {
	return c.updates
}

// View returns the most recently published view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Load fetches the last position of the line synchronously and displays
// it. It is used for the initial display and after the line is replaced.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ply := c.store.Len() - 1
	tok := c.nextTokenLocked(ply)
	c.loading = true
	c.publishLocked()
	c.mu.Unlock()

	snap, err := c.store.Snapshot(ctx, ply)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settleLocked("snapshot", tok, ply, snap, err)
}

// Refresh refetches the current index, clamped to the store's length.
// Used after the underlying line changed on disk.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	ply := clamp(c.index, c.lenLocked())
	c.startFetchLocked(ply)
}

// First shows the start position.
func (c *Controller) First() bool { return c.GoTo(-1) }

// Last shows the final position.
func (c *Controller) Last() bool { return c.GoTo(math.MaxInt32) }

// Step moves the index by delta plies.
func (c *Controller) Step(delta int) bool {
	c.mu.Lock()
	target := c.index + delta
	c.mu.Unlock()
	return c.GoTo(target)
}

// GoTo shows the position after ply, clamped to [-1, Len()-1]. Len counts a
// move still on its way to the store. It reports whether the index changed;
// an unchanged index issues no fetch.
func (c *Controller) GoTo(ply int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ply = clamp(ply, c.lenLocked())
	if ply == c.index {
		return false
	}
	if _, err := c.gate.Cancel(); err == nil {
		debug.Log("analyzer: navigation cancelled pending promotion")
	}
	c.startFetchLocked(ply)
	return true
}

// lenLocked is the store's length, or one past the pending move's base while
// a move is being applied.
func (c *Controller) lenLocked() int {
	n := c.store.Len()
	if c.applying && c.applyTo+1 > n {
		n = c.applyTo + 1
	}
	return n
}

func clamp(ply, n int) int {
	if ply > n-1 {
		ply = n - 1
	}
	if ply < -1 {
		ply = -1
	}
	return ply
}

// nextTokenLocked moves to ply under a fresh token and drops overlays tied
// to the previous position.
func (c *Controller) nextTokenLocked(ply int) uint64 {
	c.token++
	c.latest.Store(c.token)
	c.index = ply
	c.pv = nil
	c.threat = ""
	c.ghosts = nil
	c.hovered = 0
	c.arrows = c.arrows.ClearEngine()
	return c.token
}

func (c *Controller) startFetchLocked(ply int) {
	tok := c.nextTokenLocked(ply)
	c.loading = true
	c.publishLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.fetchContext()
		defer cancel()

		snap, err := c.store.Snapshot(ctx, ply)

		c.mu.Lock()
		defer c.mu.Unlock()
		_ = c.settleLocked("snapshot", tok, ply, snap, err)
	}()
}

func (c *Controller) fetchContext() (context.Context, context.CancelFunc) {
	if c.opts.FetchTimeout > 0 {
		return context.WithTimeout(c.ctx, c.opts.FetchTimeout)
	}
	return context.WithCancel(c.ctx)
}

// settleLocked applies a store result if tok is still current. The engine
// sync is requested under the lock so a stale result can never reach the
// scheduler after a newer one.
func (c *Controller) settleLocked(op string, tok uint64, ply int, snap *model.BoardSnapshot, err error) error {
	if c.closed {
		return ErrClosed
	}
	if tok != c.token {
		metrics.StaleSnapshots.Inc()
		debug.Log("analyzer: discarding %s for token %d (current %d)", op, tok, c.token)
		return nil
	}
	c.loading = false
	if err != nil {
		fe := &FetchError{Op: op, Ply: ply, Token: tok, Cause: err}
		c.lastErr = fe
		metrics.FetchErrors.Inc()
		debug.Event(debug.LevelWarn, "analyzer", "fetch_failed", map[string]any{
			"op":    op,
			"ply":   ply,
			"token": tok,
			"error": err.Error(),
		})
		if c.snapshot != nil {
			// Undo any optimistic move and fall back to the last good position.
			c.pieces = reconcile.Reconcile(c.pieces, c.snapshot)
			c.index = c.snapshot.Ply
		}
		c.publishLocked()
		return fe
	}

	// Records hidden at an earlier settle have had their exit; drop them
	// before hiding the next ones.
	c.pieces = reconcile.Reconcile(reconcile.Collect(c.pieces), snap)
	c.snapshot = snap
	c.index = snap.Ply
	c.lastErr = nil
	c.publishLocked()

	if c.sched != nil {
		c.sched.RequestSync(model.PositionFor(snap, tok))
	}
	return nil
}

// AttemptMove handles a drag or click move from one square to another. A
// pawn reaching the last rank opens a promotion request instead of moving.
func (c *Controller) AttemptMove(from, to model.Coord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.gate.State() == promotion.AwaitingChoice {
		return ErrPromotionPending
	}
	if c.opts.Mode == Review {
		return ErrReviewMode
	}
	if c.applying {
		return ErrMoveInFlight
	}
	mover, ok := reconcile.At(c.pieces, from)
	if !ok {
		return ErrNoPieceAtOrigin
	}
	held, err := c.gate.Intercept(mover, from, to)
	if err != nil {
		return err
	}
	if held {
		c.publishLocked()
		return nil
	}
	c.submitLocked(model.MoveRequest{From: from, To: to})
	return nil
}

// ResolvePromotion completes the pending promotion with kind and forwards
// exactly one move. kind must be one of promotion.Choices.
func (c *Controller) ResolvePromotion(kind model.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	res, err := c.gate.Resolve(kind)
	if err != nil {
		return err
	}
	c.submitLocked(res.Move())
	return nil
}

// CancelPromotion drops the pending promotion. Nothing is forwarded.
func (c *Controller) CancelPromotion() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.gate.Cancel(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// submitLocked shows the move immediately and sends it to the store. The
// move is played from the displayed snapshot, which lags the index while a
// navigation fetch is in flight.
func (c *Controller) submitLocked(req model.MoveRequest) {
	base := c.index
	if c.snapshot != nil {
		base = c.snapshot.Ply
	}
	if next, ok := reconcile.ApplyLocalMove(c.pieces, req.From, req.To, req.Promotion); ok {
		c.pieces = next
	}
	tok := c.nextTokenLocked(base + 1)
	c.loading = true
	c.applying = true
	c.applyTo = base + 1
	c.publishLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.fetchContext()
		defer cancel()

		snap, err := c.store.ApplyMove(ctx, base, req)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.applying = false
		_ = c.settleLocked("apply_move", tok, base+1, snap, err)
	}()
}

// DrawArrow toggles a user arrow.
func (c *Controller) DrawArrow(from, to model.Coord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrows = c.arrows.ToggleUser(from, to)
	c.publishLocked()
}

// ClearArrows removes all user arrows.
func (c *Controller) ClearArrows() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrows = c.arrows.ClearUser()
	c.publishLocked()
}

// Hover previews the PV line of the given rank as ghost pieces.
func (c *Controller) Hover(rank int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hovered = rank
	c.hoverLocked()
	c.publishLocked()
}

// ClearHover removes the ghost preview.
func (c *Controller) ClearHover() {
	c.Hover(0)
}

func (c *Controller) hoverLocked() {
	c.ghosts = nil
	c.arrows = c.arrows.WithGhosts(nil)
	if c.hovered == 0 || c.pv == nil {
		return
	}
	line, ok := c.pv.Lines[c.hovered]
	if !ok {
		return
	}
	ghosts, arrows := overlay.Ghosts(c.pieces, line, c.opts.GhostPlies)
	c.ghosts = ghosts
	c.arrows = c.arrows.WithGhosts(arrows)
}

// Flip turns the board around.
func (c *Controller) Flip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flipped = !c.flipped
	c.publishLocked()
}

// SetMode switches between sandbox and review.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Mode = m
	if m == Review {
		_, _ = c.gate.Cancel()
	}
	c.publishLocked()
}

// ToggleOverlay flips visibility of the suggestion or threat arrow.
func (c *Controller) ToggleOverlay(kind model.ArrowKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case model.ArrowSuggestion:
		c.opts.ShowSuggestion = !c.opts.ShowSuggestion
	case model.ArrowThreat:
		c.opts.ShowThreat = !c.opts.ShowThreat
	}
	c.publishLocked()
}

// StartEngine starts analysis of the displayed position.
func (c *Controller) StartEngine() error {
	if c.sched == nil {
		return ErrNoEngine
	}
	c.sched.Start()
	return nil
}

// StopEngine stops analysis and clears the engine overlays.
func (c *Controller) StopEngine() error {
	if c.sched == nil {
		return ErrNoEngine
	}
	return c.sched.Stop()
}

// ToggleEngine starts or stops analysis.
func (c *Controller) ToggleEngine() error {
	if c.sched == nil {
		return ErrNoEngine
	}
	if c.sched.Running() {
		return c.sched.Stop()
	}
	c.sched.Start()
	return nil
}

func (c *Controller) onPV(pv model.PV) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || pv.Token != c.token {
		metrics.StalePVs.Inc()
		return
	}
	p := pv
	c.pv = &p
	c.arrows = c.arrows.WithSuggestion(overlay.Suggestion(&p))
	if c.hovered != 0 {
		c.hoverLocked()
	}
	c.publishLocked()
}

func (c *Controller) onThreat(tok uint64, move string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || tok != c.token {
		metrics.StaleThreats.Inc()
		return
	}
	c.threat = move
	c.arrows = c.arrows.WithThreat(overlay.Threat(move))
	c.publishLocked()
}

func (c *Controller) onRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.running = running
	if !running {
		c.pv = nil
		c.threat = ""
		c.ghosts = nil
		c.arrows = c.arrows.ClearEngine()
	}
	c.publishLocked()
}

// publishLocked snapshots the state into a View and offers it to Updates,
// replacing any view the reader has not taken yet.
func (c *Controller) publishLocked() {
	if c.closed {
		return
	}
	c.seq++
	v := View{
		Seq:           c.seq,
		Token:         c.token,
		Index:         c.index,
		Ply:           -1,
		Len:           c.lenLocked(),
		Loading:       c.loading,
		Pieces:        append([]model.RenderedPiece(nil), c.pieces...),
		Snapshot:      c.snapshot,
		Arrows:        c.arrows.All(c.opts.ShowSuggestion, c.opts.ShowThreat),
		Ghosts:        append([]model.GhostPiece(nil), c.ghosts...),
		Threat:        c.threat,
		Promotion:     c.gate.Pending(),
		EngineRunning: c.running,
		HasEngine:     c.sched != nil,
		Mode:          c.opts.Mode,
		Flipped:       c.flipped,
	}
	if c.snapshot != nil {
		v.Ply = c.snapshot.Ply
		v.LastMove = lastMove(c.snapshot)
	}
	if c.pv != nil {
		pv := *c.pv
		v.PV = &pv
	}
	if c.lastErr != nil {
		v.LastError = c.lastErr.Error()
	}
	c.view = v

	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}

func lastMove(s *model.BoardSnapshot) *model.Arrow {
	if s.Ply < 0 || s.Ply >= len(s.Moves) {
		return nil
	}
	from, to, ok := overlay.ParseToken(s.Moves[s.Ply].UCI)
	if !ok {
		return nil
	}
	return &model.Arrow{From: from, To: to, Color: overlay.ColorLastMove, Kind: model.ArrowLastMove}
}

// Done is closed by Close.
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close stops the engine scheduler, waits for outstanding fetches and
// closes the Updates channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	// publishLocked never sends once closed is set.
	close(c.updates)
	c.mu.Unlock()

	c.cancel()
	if c.sched != nil {
		c.sched.Close()
	}
	c.wg.Wait()
}
