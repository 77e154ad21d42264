package datasource

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/testutil"
)

func sq(s string) model.Coord {
	return model.Coord{Row: 8 - int(s[1]-'0'), Col: int(s[0] - 'a')}
}

func snapAt(t *testing.T, s *GameStore, ply int) *model.BoardSnapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), ply)
	require.NoError(t, err)
	return snap
}

func TestInitialIDsScanOrder(t *testing.T) {
	s := NewGameStore()
	snap := snapAt(t, s, -1)

	require.Equal(t, 1, snap.PieceAt(sq("a8")).ID)
	require.Equal(t, 16, snap.PieceAt(sq("h7")).ID)
	require.Equal(t, 17, snap.PieceAt(sq("a2")).ID)
	require.Equal(t, 32, snap.PieceAt(sq("h1")).ID)
	require.Equal(t, model.White, snap.Turn)
	require.Equal(t, 0, snap.Len())
	require.True(t, snap.Castling.WhiteKingside && snap.Castling.BlackQueenside)
}

func TestLoadUCIFollowsIdentity(t *testing.T) {
	s, err := LoadUCI("", []string{"e2e4", "d7d5", "e4d5"})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	start := snapAt(t, s, -1)
	pawn := start.PieceAt(sq("e2")).ID
	victim := start.PieceAt(sq("d7")).ID

	after := snapAt(t, s, 2)
	require.Equal(t, pawn, after.PieceAt(sq("d5")).ID)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := after.Squares[r][c]; p != nil {
				require.NotEqual(t, victim, p.ID, "captured id must disappear")
			}
		}
	}
	require.Equal(t, []string{"e2e4", "d7d5", "e4d5"}, after.UCIMoves())
	require.Equal(t, "exd5", after.Moves[2].SAN)
	require.True(t, after.Terminal())
	require.False(t, snapAt(t, s, 1).Terminal())
}

func TestIdentityThroughCastling(t *testing.T) {
	s, err := LoadUCI("", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1"})
	require.NoError(t, err)

	start := snapAt(t, s, -1)
	rook := start.PieceAt(sq("h1")).ID
	king := start.PieceAt(sq("e1")).ID

	castled := snapAt(t, s, 6)
	require.Equal(t, rook, castled.PieceAt(sq("f1")).ID)
	require.Equal(t, king, castled.PieceAt(sq("g1")).ID)
	require.Nil(t, castled.PieceAt(sq("h1")))
	require.False(t, castled.Castling.WhiteKingside)
}

func TestIdentityThroughQueensideCastling(t *testing.T) {
	s, err := LoadUCI("r3k3/8/8/8/8/8/8/4K3 b q - 0 1", []string{"e8c8"})
	require.NoError(t, err)
	start := snapAt(t, s, -1)
	rook := start.PieceAt(sq("a8")).ID
	after := snapAt(t, s, 0)
	require.Equal(t, rook, after.PieceAt(sq("d8")).ID)
	require.Nil(t, after.PieceAt(sq("a8")))
}

func TestIdentityThroughEnPassant(t *testing.T) {
	s, err := LoadUCI("", []string{"e2e4", "a7a6", "e4e5", "d7d5", "e5d6"})
	require.NoError(t, err)

	beforeEP := snapAt(t, s, 3)
	require.NotNil(t, beforeEP.EnPassant)
	require.Equal(t, sq("d6"), *beforeEP.EnPassant)
	capturer := beforeEP.PieceAt(sq("e5")).ID

	after := snapAt(t, s, 4)
	require.Nil(t, after.PieceAt(sq("d5")), "en passant victim must be removed")
	require.Equal(t, capturer, after.PieceAt(sq("d6")).ID)
}

func TestIdentityThroughPromotion(t *testing.T) {
	s, err := LoadUCI("8/4P3/8/8/8/8/k7/7K w - - 0 1", []string{"e7e8=Q"})
	require.NoError(t, err)
	pawn := snapAt(t, s, -1).PieceAt(sq("e7")).ID

	after := snapAt(t, s, 0)
	q := after.PieceAt(sq("e8"))
	require.NotNil(t, q)
	require.Equal(t, pawn, q.ID)
	require.Equal(t, model.Queen, q.Kind)
	require.Equal(t, "e7e8q", after.Moves[0].UCI)
}

func TestSnapshotOutOfRange(t *testing.T) {
	s, err := LoadUCI("", []string{"e2e4"})
	require.NoError(t, err)

	_, err = s.Snapshot(context.Background(), 1)
	require.ErrorIs(t, err, ErrPlyOutOfRange)
	_, err = s.Snapshot(context.Background(), -2)
	require.ErrorIs(t, err, ErrPlyOutOfRange)
}

func TestSnapshotHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGameStore().Snapshot(ctx, -1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotTargets(t *testing.T) {
	snap := snapAt(t, NewGameStore(), -1)
	require.ElementsMatch(t, []model.Coord{sq("e3"), sq("e4")}, snap.Targets[sq("e2")])
	require.ElementsMatch(t, []model.Coord{sq("f3"), sq("h3")}, snap.Targets[sq("g1")])
	require.Empty(t, snap.Targets[sq("e1")])
}

func TestConcurrentSnapshotsShareResult(t *testing.T) {
	s, err := LoadUCI("", []string{"d2d4", "d7d5", "c2c4"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*model.BoardSnapshot, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := s.Snapshot(context.Background(), 2)
			if err == nil {
				results[i] = snap
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.Same(t, results[0], r)
	}
}

func TestApplyMoveBranchesFromBase(t *testing.T) {
	s, err := LoadUCI("", []string{"e2e4", "e7e5", "g1f3"})
	require.NoError(t, err)
	knight := snapAt(t, s, -1).PieceAt(sq("b8")).ID

	snap, err := s.ApplyMove(context.Background(), 0, model.MoveRequest{From: sq("b8"), To: sq("c6")})
	require.NoError(t, err)
	require.Equal(t, 1, snap.Ply)
	require.Equal(t, 2, s.Len())
	require.Equal(t, []string{"e2e4", "b8c6"}, snap.UCIMoves())
	require.Equal(t, knight, snap.PieceAt(sq("c6")).ID)
	require.True(t, snap.Terminal())

	again, err := s.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, snap.FEN, again.FEN)
}

func TestApplyMoveRejectsIllegal(t *testing.T) {
	s := NewGameStore()
	_, err := s.ApplyMove(context.Background(), -1, model.MoveRequest{From: sq("e2"), To: sq("e5")})
	require.ErrorIs(t, err, ErrIllegalMove)
	require.Equal(t, 0, s.Len(), "a rejected move must not change the line")

	_, err = s.ApplyMove(context.Background(), 3, model.MoveRequest{From: sq("e2"), To: sq("e4")})
	require.ErrorIs(t, err, ErrPlyOutOfRange)
}

func TestApplyMovePromotionRequiresKind(t *testing.T) {
	s, err := NewGameStoreFromFEN("8/4P3/8/8/8/8/k7/7K w - - 0 1")
	require.NoError(t, err)

	_, err = s.ApplyMove(context.Background(), -1, model.MoveRequest{From: sq("e7"), To: sq("e8")})
	require.True(t, errors.Is(err, ErrIllegalMove))

	n := model.Knight
	snap, err := s.ApplyMove(context.Background(), -1, model.MoveRequest{From: sq("e7"), To: sq("e8"), Promotion: &n})
	require.NoError(t, err)
	require.Equal(t, model.Knight, snap.PieceAt(sq("e8")).Kind)
}

const samplePGN = `[Event "Club Blitz"]
[White "Alice"]
[Black "Bob"]
[Result "1-0"]

1. e4 {[%clk 0:02:59]} e5 {[%clk 0:02:58]} 2. Qh5 {[%clk 0:02:55]} Nc6 {[%clk 0:02:50]} 3. Bc4 Nf6 4. Qxf7# 1-0
`

func TestLoadPGN(t *testing.T) {
	s, err := LoadPGN(strings.NewReader(samplePGN))
	require.NoError(t, err)
	require.Equal(t, 7, s.Len())

	snap := snapAt(t, s, 6)
	require.Equal(t, "Alice", snap.Tags["White"])
	require.Equal(t, "0:02:59", snap.Moves[0].Clock)
	require.Equal(t, "0:02:50", snap.Moves[3].Clock)
	require.Equal(t, "h5f7", snap.Moves[6].UCI)
	require.Equal(t, model.Queen, snap.PieceAt(sq("f7")).Kind)

	pgn := s.PGN()
	require.Contains(t, pgn, `[White "Alice"]`)
	require.Contains(t, pgn, "1. e4")
	require.True(t, strings.HasSuffix(pgn, "1-0"))
}

func TestReplace(t *testing.T) {
	s := NewGameStore()
	other, err := LoadUCI("", []string{"c2c4"})
	require.NoError(t, err)
	s.Replace(other)
	require.Equal(t, 1, s.Len())
	require.Equal(t, "c2c4", snapAt(t, s, 0).Moves[0].UCI)
}

func TestNormalizeUCI(t *testing.T) {
	require.Equal(t, "e7e8q", normalizeUCI("e7e8=Q"))
	require.Equal(t, "e2e4", normalizeUCI(" e2e4 "))
}

func TestRandomGamesKeepIdentity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := testutil.DefaultConfig()
		cfg.Seed = rapid.Int64Range(1, 1<<40).Draw(rt, "seed")
		g, err := testutil.New(cfg)
		require.NoError(rt, err)
		f := g.RandomLine(rapid.IntRange(1, 60).Draw(rt, "plies"))

		s, err := LoadUCI("", f.Moves)
		require.NoError(rt, err)
		prev, err := s.Snapshot(context.Background(), -1)
		require.NoError(rt, err)
		for ply := 0; ply < s.Len(); ply++ {
			snap, err := s.Snapshot(context.Background(), ply)
			require.NoError(rt, err)
			testutil.AssertUniqueIDs(rt, snap)

			mv := snap.Moves[ply].UCI
			from, to := sq(mv[0:2]), sq(mv[2:4])
			require.Equal(rt, prev.PieceAt(from).ID, snap.PieceAt(to).ID, mv)
			prev = snap
		}

		again, err := LoadPGN(strings.NewReader(s.PGN()))
		require.NoError(rt, err)
		require.Equal(rt, s.Len(), again.Len())
	})
}
