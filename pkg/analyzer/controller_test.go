package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/boardsync/internal/datasource"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/overlay"
)

var italian = []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6"}

// gatedStore wraps a real GameStore. Snapshot calls for gated plies block
// until the gate is closed; failing plies return an error.
type gatedStore struct {
	*datasource.GameStore

	mu      sync.Mutex
	gates   map[int]chan struct{}
	fail    map[int]error
	applied []model.MoveRequest
	hold    chan struct{}
}

func newGatedStore(t *testing.T, moves ...string) *gatedStore {
	t.Helper()
	gs, err := datasource.LoadUCI(datasource.StartFEN, moves)
	require.NoError(t, err)
	return &gatedStore{GameStore: gs, gates: map[int]chan struct{}{}, fail: map[int]error{}}
}

func (g *gatedStore) gate(ply int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[ply] = make(chan struct{})
}

func (g *gatedStore) release(ply int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gates[ply])
}

func (g *gatedStore) failAt(ply int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[ply] = err
}

func (g *gatedStore) Snapshot(ctx context.Context, ply int) (*model.BoardSnapshot, error) {
	g.mu.Lock()
	gate, err := g.gates[ply], g.fail[ply]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return g.GameStore.Snapshot(ctx, ply)
}

// holdMoves blocks ApplyMove until the returned func is called.
func (g *gatedStore) holdMoves() func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = make(chan struct{})
	return func() { close(g.hold) }
}

func (g *gatedStore) ApplyMove(ctx context.Context, basePly int, req model.MoveRequest) (*model.BoardSnapshot, error) {
	g.mu.Lock()
	g.applied = append(g.applied, req)
	hold := g.hold
	g.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.GameStore.ApplyMove(ctx, basePly, req)
}

func (g *gatedStore) line() []string {
	var out []string
	for _, m := range g.GameStore.Moves() {
		out = append(out, m.UCI)
	}
	return out
}

func (g *gatedStore) moves() []model.MoveRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.MoveRequest(nil), g.applied...)
}

type recordingEngine struct {
	mu        sync.Mutex
	positions []model.EnginePosition
	onPV      func(model.PV)
}

func (e *recordingEngine) SetPosition(_ context.Context, pos model.EnginePosition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = append(e.positions, pos)
	return nil
}

func (e *recordingEngine) Threat(context.Context, model.EnginePosition) (string, error) {
	return "", nil
}

func (e *recordingEngine) OnPV(fn func(model.PV)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPV = fn
}

func (e *recordingEngine) Stop() error { return nil }

func (e *recordingEngine) synced() []model.EnginePosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.EnginePosition(nil), e.positions...)
}

func (e *recordingEngine) emit(pv model.PV) {
	e.mu.Lock()
	fn := e.onPV
	e.mu.Unlock()
	fn(pv)
}

func settled(c *Controller, ply int) func() bool {
	return func() bool {
		v := c.View()
		return !v.Loading && v.Ply == ply
	}
}

// requireMatches checks that the visible pieces are exactly the snapshot's.
func requireMatches(t *testing.T, pieces []model.RenderedPiece, snap *model.BoardSnapshot) {
	t.Helper()
	visible := 0
	for _, p := range pieces {
		if !p.Visible {
			continue
		}
		visible++
		sq := snap.PieceAt(p.At())
		require.NotNil(t, sq, "piece %d on empty square %s", p.PieceID, p.At())
		require.Equal(t, sq.ID, p.PieceID)
		require.Equal(t, sq.Kind, p.Kind)
		require.Equal(t, sq.Color, p.Color)
	}
	occupied := 0
	for r := 0; r < 8; r++ {
		for col := 0; col < 8; col++ {
			if snap.Squares[r][col] != nil {
				occupied++
			}
		}
	}
	require.Equal(t, occupied, visible)
}

func TestLastTokenWinsRegardlessOfCompletionOrder(t *testing.T) {
	store := newGatedStore(t, italian...)
	for _, ply := range []int{1, 2, 3} {
		store.gate(ply)
	}
	c := New(store, nil, DefaultOptions())
	defer c.Close()

	stale := metrics.StaleSnapshots.Value()
	require.True(t, c.GoTo(1))
	require.True(t, c.GoTo(2))
	require.True(t, c.GoTo(3))
	require.Equal(t, 3, c.View().Index)

	store.release(3)
	require.Eventually(t, settled(c, 3), time.Second, 5*time.Millisecond)
	store.release(1)
	store.release(2)
	require.Eventually(t, func() bool {
		return metrics.StaleSnapshots.Value() == stale+2
	}, time.Second, 5*time.Millisecond)

	v := c.View()
	require.Equal(t, 3, v.Ply)
	require.Equal(t, 3, v.Index)
	direct, err := store.GameStore.Snapshot(context.Background(), 3)
	require.NoError(t, err)
	requireMatches(t, v.Pieces, direct)
}

func TestRapidNavigationSyncsEngineOnce(t *testing.T) {
	store := newGatedStore(t, italian...)
	store.gate(3)
	store.gate(0)
	engine := &recordingEngine{}
	opts := DefaultOptions()
	opts.StartEngine = true
	opts.Threats = false
	c := New(store, engine, opts)
	defer c.Close()

	c.GoTo(3)
	c.GoTo(0)
	c.GoTo(5)
	require.Eventually(t, settled(c, 5), time.Second, 5*time.Millisecond)
	store.release(3)
	store.release(0)

	require.Eventually(t, func() bool { return len(engine.synced()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * opts.Debounce)

	synced := engine.synced()
	require.Len(t, synced, 1)
	require.Equal(t, 5, synced[0].Ply)
	require.Equal(t, italian, synced[0].Moves)
	require.True(t, synced[0].Terminal)

	direct, err := store.GameStore.Snapshot(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, direct.FEN, synced[0].FEN)
	requireMatches(t, c.View().Pieces, direct)
}

func TestNavigationClampsAndSkipsUnchanged(t *testing.T) {
	store := newGatedStore(t, italian...)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	require.Equal(t, 5, c.View().Ply)

	tok := c.View().Token
	require.False(t, c.Last())
	require.False(t, c.GoTo(99))
	require.Equal(t, tok, c.View().Token, "no-op navigation keeps the token")

	require.True(t, c.First())
	require.Eventually(t, settled(c, -1), time.Second, 5*time.Millisecond)
	require.False(t, c.Step(-1))
	require.True(t, c.Step(2))
	require.Eventually(t, settled(c, 1), time.Second, 5*time.Millisecond)

	v := c.View()
	require.NotNil(t, v.LastMove)
	require.Equal(t, model.Coord{Row: 1, Col: 4}, v.LastMove.From)
	require.Equal(t, model.Coord{Row: 3, Col: 4}, v.LastMove.To)
	require.Equal(t, model.ArrowLastMove, v.LastMove.Kind)
}

func TestPromotionScenario(t *testing.T) {
	gs, err := datasource.NewGameStoreFromFEN("8/4P3/8/8/8/8/k7/7K w - - 0 1")
	require.NoError(t, err)
	store := &gatedStore{GameStore: gs, gates: map[int]chan struct{}{}, fail: map[int]error{}}
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	e7 := model.Coord{Row: 1, Col: 4}
	e8 := model.Coord{Row: 0, Col: 4}
	pawn, ok := c.View().PieceAt(e7)
	require.True(t, ok)
	require.Equal(t, model.Pawn, pawn.Kind)

	require.NoError(t, c.AttemptMove(e7, e8))
	v := c.View()
	require.Equal(t, &model.PromotionRequest{From: e7, To: e8, Color: model.White}, v.Promotion)
	_, moved := v.PieceAt(e8)
	require.False(t, moved, "nothing moves until a piece is chosen")

	// Every other move attempt is ignored while the choice is open.
	require.ErrorIs(t, c.AttemptMove(model.Coord{Row: 7, Col: 7}, model.Coord{Row: 7, Col: 6}), ErrPromotionPending)
	require.ErrorIs(t, c.AttemptMove(e7, e8), ErrPromotionPending)
	require.Empty(t, store.moves())

	require.NoError(t, c.ResolvePromotion(model.Queen))
	require.Eventually(t, settled(c, 0), time.Second, 5*time.Millisecond)

	queen := model.Queen
	require.Equal(t, []model.MoveRequest{{From: e7, To: e8, Promotion: &queen}}, store.moves())
	got, ok := c.View().PieceAt(e8)
	require.True(t, ok)
	require.Equal(t, model.Queen, got.Kind)
	require.Equal(t, pawn.PieceID, got.PieceID)
	require.Nil(t, c.View().Promotion)

	require.ErrorIs(t, c.ResolvePromotion(model.Queen), ErrNoPromotion)
}

func TestCancelPromotionForwardsNothing(t *testing.T) {
	gs, err := datasource.NewGameStoreFromFEN("8/4P3/8/8/8/8/k7/7K w - - 0 1")
	require.NoError(t, err)
	store := &gatedStore{GameStore: gs, gates: map[int]chan struct{}{}, fail: map[int]error{}}
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.AttemptMove(model.Coord{Row: 1, Col: 4}, model.Coord{Row: 0, Col: 4}))
	require.NoError(t, c.CancelPromotion())
	require.Nil(t, c.View().Promotion)
	require.Empty(t, store.moves())

	// The gate is idle again, so ordinary moves go through.
	require.NoError(t, c.AttemptMove(model.Coord{Row: 7, Col: 7}, model.Coord{Row: 7, Col: 6}))
	require.Eventually(t, settled(c, 0), time.Second, 5*time.Millisecond)
	require.Len(t, store.moves(), 1)
}

func TestSandboxMoveBranchesFromDisplayedPly(t *testing.T) {
	store := newGatedStore(t, italian...)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	require.True(t, c.GoTo(1))
	require.Eventually(t, settled(c, 1), time.Second, 5*time.Millisecond)
	knight, ok := c.View().PieceAt(model.Coord{Row: 7, Col: 1})
	require.True(t, ok)

	require.NoError(t, c.AttemptMove(model.Coord{Row: 7, Col: 1}, model.Coord{Row: 5, Col: 2}))
	require.Eventually(t, settled(c, 2), time.Second, 5*time.Millisecond)

	v := c.View()
	require.Equal(t, 3, v.Len)
	got, ok := v.PieceAt(model.Coord{Row: 5, Col: 2})
	require.True(t, ok)
	require.Equal(t, knight.PieceID, got.PieceID)
}

func TestMoveWhileLoadingPlaysFromDisplayedPosition(t *testing.T) {
	store := newGatedStore(t, italian...)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	store.gate(1)
	require.True(t, c.GoTo(1))
	v := c.View()
	require.True(t, v.Loading)
	require.Equal(t, 1, v.Index)
	require.Equal(t, 5, v.Ply, "pieces still show the last settled position")

	// d2-d3 is legal only in the displayed position, after 3...Nf6.
	require.NoError(t, c.AttemptMove(model.Coord{Row: 6, Col: 3}, model.Coord{Row: 5, Col: 3}))
	require.Eventually(t, settled(c, 6), time.Second, 5*time.Millisecond)
	store.release(1)

	require.Equal(t, append(append([]string(nil), italian...), "d2d3"), store.line())
	v = c.View()
	require.Equal(t, 7, v.Len)
	require.Equal(t, 6, v.Index)
	require.Empty(t, v.LastError)
	direct, err := store.GameStore.Snapshot(context.Background(), 6)
	require.NoError(t, err)
	requireMatches(t, v.Pieces, direct)
}

func TestStepForwardWhileMoveIsApplied(t *testing.T) {
	store := newGatedStore(t, italian...)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	release := store.holdMoves()
	d2, d3 := model.Coord{Row: 6, Col: 3}, model.Coord{Row: 5, Col: 3}
	pawn, ok := c.View().PieceAt(d2)
	require.True(t, ok)
	require.NoError(t, c.AttemptMove(d2, d3))

	v := c.View()
	require.Equal(t, 6, v.Index)
	require.Equal(t, 7, v.Len, "the pending move counts toward the line")
	tok := v.Token

	require.False(t, c.Step(1), "already at the newest ply")
	require.False(t, c.Last())
	require.Equal(t, tok, c.View().Token)
	require.ErrorIs(t, c.AttemptMove(model.Coord{Row: 6, Col: 0}, model.Coord{Row: 5, Col: 0}), ErrMoveInFlight)

	release()
	require.Eventually(t, settled(c, 6), time.Second, 5*time.Millisecond)
	require.Len(t, store.moves(), 1)
	got, ok := c.View().PieceAt(d3)
	require.True(t, ok)
	require.Equal(t, pawn.PieceID, got.PieceID)

	// The next move is accepted once the first has landed.
	require.NoError(t, c.AttemptMove(model.Coord{Row: 1, Col: 0}, model.Coord{Row: 2, Col: 0}))
	require.Eventually(t, settled(c, 7), time.Second, 5*time.Millisecond)
}

func TestHiddenRecordsAreCollectedAtNextSettle(t *testing.T) {
	store := newGatedStore(t, "e2e4", "d7d5", "e4d5", "g8f6")
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	count := func(v View) (records, hidden int) {
		for _, p := range v.Pieces {
			records++
			if !p.Visible {
				hidden++
			}
		}
		return records, hidden
	}

	require.True(t, c.GoTo(1))
	require.Eventually(t, settled(c, 1), time.Second, 5*time.Millisecond)
	records, hidden := count(c.View())
	require.Equal(t, 32, records)
	require.Zero(t, hidden)

	// exd5 hides the captured pawn for one settle.
	require.True(t, c.GoTo(2))
	require.Eventually(t, settled(c, 2), time.Second, 5*time.Millisecond)
	records, hidden = count(c.View())
	require.Equal(t, 32, records)
	require.Equal(t, 1, hidden)

	require.True(t, c.GoTo(3))
	require.Eventually(t, settled(c, 3), time.Second, 5*time.Millisecond)
	records, hidden = count(c.View())
	require.Equal(t, 31, records)
	require.Zero(t, hidden)
}

func TestSettleRecordsOneReconcile(t *testing.T) {
	enabled := metrics.Enabled()
	metrics.SetEnabled(true)
	t.Cleanup(func() { metrics.SetEnabled(enabled) })

	store := newGatedStore(t, italian...)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	before := metrics.Reconcile.Count()
	require.True(t, c.GoTo(2))
	require.Eventually(t, settled(c, 2), time.Second, 5*time.Millisecond)
	require.Equal(t, before+1, metrics.Reconcile.Count())
}

func TestIllegalMoveRevertsOptimisticDisplay(t *testing.T) {
	store := newGatedStore(t)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	e2 := model.Coord{Row: 6, Col: 4}
	pawn, _ := c.View().PieceAt(e2)
	require.NoError(t, c.AttemptMove(e2, model.Coord{Row: 2, Col: 4}))
	require.Eventually(t, func() bool { return c.View().LastError != "" }, time.Second, 5*time.Millisecond)

	v := c.View()
	require.Equal(t, -1, v.Ply)
	require.Equal(t, -1, v.Index)
	back, ok := v.PieceAt(e2)
	require.True(t, ok)
	require.Equal(t, pawn.PieceID, back.PieceID)
}

func TestFetchErrorKeepsPreviousPosition(t *testing.T) {
	store := newGatedStore(t, italian...)
	c := New(store, nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	before := c.View()

	store.failAt(4, errors.New("disk gone"))
	require.True(t, c.GoTo(4))
	require.Eventually(t, func() bool {
		v := c.View()
		return !v.Loading && v.LastError != ""
	}, time.Second, 5*time.Millisecond)

	v := c.View()
	require.Equal(t, 5, v.Ply)
	require.Equal(t, 5, v.Index)
	require.Equal(t, before.Pieces, v.Pieces)
	require.Contains(t, v.LastError, "disk gone")

	// The next navigation retries and clears the error.
	store.failAt(4, nil)
	require.True(t, c.GoTo(4))
	require.Eventually(t, settled(c, 4), time.Second, 5*time.Millisecond)
	require.Empty(t, c.View().LastError)
}

func TestLoadReturnsFetchError(t *testing.T) {
	store := newGatedStore(t, italian...)
	cause := errors.New("locked")
	store.failAt(5, cause)
	c := New(store, nil, DefaultOptions())
	defer c.Close()

	err := c.Load(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "snapshot", fe.Op)
	require.Equal(t, 5, fe.Ply)
	require.ErrorIs(t, err, cause)
}

func TestReviewModeRejectsMoves(t *testing.T) {
	store := newGatedStore(t, italian...)
	opts := DefaultOptions()
	opts.Mode = Review
	c := New(store, nil, opts)
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	require.ErrorIs(t, c.AttemptMove(model.Coord{Row: 6, Col: 0}, model.Coord{Row: 5, Col: 0}), ErrReviewMode)
	require.Empty(t, store.moves())
	require.True(t, c.Step(-1))
	require.Eventually(t, settled(c, 4), time.Second, 5*time.Millisecond)
}

func TestEngineOverlays(t *testing.T) {
	store := newGatedStore(t, "e2e4", "e7e5")
	engine := &recordingEngine{}
	opts := DefaultOptions()
	opts.StartEngine = true
	opts.Threats = false
	opts.Debounce = 10 * time.Millisecond
	c := New(store, engine, opts)
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	require.Eventually(t, func() bool { return len(engine.synced()) == 1 }, time.Second, 5*time.Millisecond)
	tok := engine.synced()[0].Token
	require.True(t, c.View().EngineRunning)

	engine.emit(model.PV{Token: tok - 1, Lines: map[int]model.PVLine{1: {Moves: "d2d4"}}})
	require.Nil(t, c.View().PV)

	engine.emit(model.PV{Token: tok, Depth: 8, Lines: map[int]model.PVLine{
		1: {Moves: "g1f3 b8c6", EvalValue: 40},
		2: {Moves: "f1c4", EvalValue: 25},
	}})
	v := c.View()
	require.NotNil(t, v.PV)
	require.Contains(t, v.Arrows, model.Arrow{
		From: model.Coord{Row: 7, Col: 6}, To: model.Coord{Row: 5, Col: 5},
		Color: overlay.ColorSuggestion, Kind: model.ArrowSuggestion,
	})

	c.Hover(1)
	require.NotEmpty(t, c.View().Ghosts)
	c.ClearHover()
	require.Empty(t, c.View().Ghosts)

	c.ToggleOverlay(model.ArrowSuggestion)
	for _, a := range c.View().Arrows {
		require.NotEqual(t, model.ArrowSuggestion, a.Kind)
	}

	require.NoError(t, c.StopEngine())
	require.Eventually(t, func() bool {
		v := c.View()
		return !v.EngineRunning && v.PV == nil
	}, time.Second, 5*time.Millisecond)
}

func TestUserArrowsAndFlip(t *testing.T) {
	c := New(newGatedStore(t), nil, DefaultOptions())
	defer c.Close()

	a, b := model.Coord{Row: 6, Col: 4}, model.Coord{Row: 4, Col: 4}
	c.DrawArrow(a, b)
	require.Len(t, c.View().Arrows, 1)
	c.DrawArrow(a, b)
	require.Empty(t, c.View().Arrows)
	c.DrawArrow(a, b)
	c.ClearArrows()
	require.Empty(t, c.View().Arrows)

	c.Flip()
	require.True(t, c.View().Flipped)
	require.ErrorIs(t, c.StartEngine(), ErrNoEngine)
}

func TestUpdatesHoldsNewestView(t *testing.T) {
	c := New(newGatedStore(t, italian...), nil, DefaultOptions())
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	c.Flip()

	v := <-c.Updates()
	require.Equal(t, c.View().Seq, v.Seq)
	require.True(t, v.Flipped)
}

func TestClosedControllerRejectsCommands(t *testing.T) {
	c := New(newGatedStore(t, italian...), nil, DefaultOptions())
	c.Close()
	c.Close()
	require.False(t, c.GoTo(2))
	require.ErrorIs(t, c.AttemptMove(model.Coord{Row: 6, Col: 0}, model.Coord{Row: 5, Col: 0}), ErrClosed)
	require.ErrorIs(t, c.Load(context.Background()), ErrClosed)
}
