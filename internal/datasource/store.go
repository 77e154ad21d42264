package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/corentings/chess/v2"
	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
)

var (
	// ErrIllegalMove is returned when a move is not legal in the base position.
	ErrIllegalMove = errors.New("illegal move")
	// ErrPlyOutOfRange is returned for a ply outside [-1, Len()-1].
	ErrPlyOutOfRange = errors.New("ply out of range")
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Tags copied from a PGN header into snapshots.
var snapshotTags = []string{"Event", "Site", "Date", "Round", "White", "Black", "Result", "WhiteElo", "BlackElo", "ECO", "Opening", "TimeControl"}

// GameStore is a position store over one line of moves. It validates moves
// with the rules library and carries piece ids from position to position.
//
// Snapshots are built lazily, cached, and shared between callers; they must
// be treated as read-only.
type GameStore struct {
	mu        sync.RWMutex
	positions []*chess.Position // len(moves)+1, positions[0] is the start
	ids       []idGrid          // parallel to positions
	moves     []model.MoveRecord
	tags      map[string]string
	gen       uint64
	cache     map[int]*model.BoardSnapshot

	group singleflight.Group
}

// NewGameStore returns a store holding the standard initial position and
// no moves.
func NewGameStore() *GameStore {
	s, _ := NewGameStoreFromFEN(StartFEN)
	return s
}

// NewGameStoreFromFEN returns an empty store starting from fen.
func NewGameStoreFromFEN(fen string) (*GameStore, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	start := chess.NewGame(opt).Position()
	s := &GameStore{tags: map[string]string{}}
	s.reset(start)
	return s, nil
}

// LoadUCI replays moves from fen. An empty fen means the initial position.
func LoadUCI(fen string, moves []string) (*GameStore, error) {
	if fen == "" {
		fen = StartFEN
	}
	s, err := NewGameStoreFromFEN(fen)
	if err != nil {
		return nil, err
	}
	for i, tok := range moves {
		if err := s.push(normalizeUCI(tok), ""); err != nil {
			return nil, fmt.Errorf("move %d (%s): %w", i+1, tok, err)
		}
	}
	return s, nil
}

// LoadPGN reads the first game of a PGN stream. Clock comments ([%clk ...])
// become move clocks.
func LoadPGN(r io.Reader) (*GameStore, error) {
	opt, err := chess.PGN(r)
	if err != nil {
		return nil, fmt.Errorf("parse pgn: %w", err)
	}
	game := chess.NewGame(opt)
	positions := game.Positions()
	if len(positions) == 0 {
		return nil, fmt.Errorf("parse pgn: no positions")
	}

	s := &GameStore{tags: map[string]string{}}
	s.reset(positions[0])
	for _, k := range snapshotTags {
		if v := game.GetTagPair(k); v != "" {
			s.tags[k] = v
		}
	}
	for i, m := range game.Moves() {
		clock, _ := m.GetCommand("clk")
		tok := chess.UCINotation{}.Encode(s.positions[i], m)
		if err := s.push(tok, clock); err != nil {
			return nil, fmt.Errorf("pgn move %d (%s): %w", i+1, tok, err)
		}
	}
	return s, nil
}

// normalizeUCI accepts "e7e8=q" as well as "e7e8q".
func normalizeUCI(tok string) string {
	tok = strings.TrimSpace(tok)
	if len(tok) == 6 && tok[4] == '=' {
		tok = tok[:4] + strings.ToLower(tok[5:])
	}
	return tok
}

func (s *GameStore) reset(start *chess.Position) {
	s.positions = []*chess.Position{start}
	s.ids = []idGrid{initialIDs(start)}
	s.moves = nil
	s.gen++
	s.cache = make(map[int]*model.BoardSnapshot)
}

// legalMove finds the legal move matching tok in pos.
func legalMove(pos *chess.Position, tok string) (*chess.Move, error) {
	want, err := chess.UCINotation{}.Decode(nil, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	for _, m := range pos.ValidMoves() {
		if m.S1() == want.S1() && m.S2() == want.S2() && m.Promo() == want.Promo() {
			mv := m
			return &mv, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIllegalMove, tok)
}

// push appends a move to the line. Callers hold mu or own s exclusively.
func (s *GameStore) push(tok, clock string) error {
	pre := s.positions[len(s.positions)-1]
	m, err := legalMove(pre, tok)
	if err != nil {
		return err
	}
	post := pre.Update(m)
	s.moves = append(s.moves, model.MoveRecord{
		UCI:   chess.UCINotation{}.Encode(pre, m),
		SAN:   chess.AlgebraicNotation{}.Encode(pre, m),
		Clock: clock,
	})
	s.ids = append(s.ids, follow(s.ids[len(s.ids)-1], pre, m.S1(), m.S2()))
	s.positions = append(s.positions, post)
	return nil
}

// Len returns the number of moves in the line.
func (s *GameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.moves)
}

// Moves returns a copy of the move list.
func (s *GameStore) Moves() []model.MoveRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MoveRecord(nil), s.moves...)
}

// Tags returns a copy of the PGN header tags.
func (s *GameStore) Tags() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		out[k] = v
	}
	return out
}

// Snapshot returns the position after ply moves; -1 is the start position.
// Concurrent requests for the same ply share one build.
func (s *GameStore) Snapshot(ctx context.Context, ply int) (*model.BoardSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer metrics.Timer(metrics.SnapshotFetch)()

	s.mu.RLock()
	if ply < -1 || ply >= len(s.moves) {
		n := len(s.moves)
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %d not in [-1, %d]", ErrPlyOutOfRange, ply, n-1)
	}
	if snap, ok := s.cache[ply]; ok {
		s.mu.RUnlock()
		return snap, nil
	}
	key := strconv.FormatUint(s.gen, 10) + "/" + strconv.Itoa(ply)
	s.mu.RUnlock()

	ch := s.group.DoChan(key, func() (any, error) {
		return s.build(ply)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.BoardSnapshot), nil
	}
}

func (s *GameStore) build(ply int) (*model.BoardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ply < -1 || ply >= len(s.moves) {
		return nil, fmt.Errorf("%w: %d", ErrPlyOutOfRange, ply)
	}
	if snap, ok := s.cache[ply]; ok {
		return snap, nil
	}
	snap := s.snapshotLocked(ply)
	s.cache[ply] = snap
	debug.Log("datasource: built snapshot for ply %d", ply)
	return snap, nil
}

func (s *GameStore) snapshotLocked(ply int) *model.BoardSnapshot {
	pos := s.positions[ply+1]
	ids := s.ids[ply+1]

	snap := &model.BoardSnapshot{
		Turn:          colorOf(pos.Turn()),
		HalfmoveClock: pos.HalfMoveClock(),
		Moves:         append([]model.MoveRecord(nil), s.moves...),
		Ply:           ply,
		FEN:           pos.String(),
		StartFEN:      s.positions[0].String(),
		Targets:       make(map[model.Coord][]model.Coord),
		Tags:          make(map[string]string, len(s.tags)),
	}
	for k, v := range s.tags {
		snap.Tags[k] = v
	}
	for sq, p := range pos.Board().SquareMap() {
		c := coordOf(sq)
		snap.Squares[c.Row][c.Col] = &model.Piece{ID: ids[sq], Color: colorOf(p.Color()), Kind: kindOf(p.Type())}
	}

	cr := pos.CastleRights()
	snap.Castling = model.Castling{
		WhiteKingside:  cr.CanCastle(chess.White, chess.KingSide),
		WhiteQueenside: cr.CanCastle(chess.White, chess.QueenSide),
		BlackKingside:  cr.CanCastle(chess.Black, chess.KingSide),
		BlackQueenside: cr.CanCastle(chess.Black, chess.QueenSide),
	}
	if ep := pos.EnPassantSquare(); ep != chess.NoSquare {
		c := coordOf(ep)
		snap.EnPassant = &c
	}
	snap.FullmoveNumber = fullmoveFromFEN(snap.FEN)

	for _, m := range pos.ValidMoves() {
		from, to := coordOf(m.S1()), coordOf(m.S2())
		if !containsCoord(snap.Targets[from], to) {
			snap.Targets[from] = append(snap.Targets[from], to)
		}
	}
	return snap
}

func containsCoord(cs []model.Coord, c model.Coord) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

func fullmoveFromFEN(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ApplyMove plays req from the position after basePly. Moves after basePly
// are discarded, so a sandbox line branches from whatever ply is displayed.
// The returned snapshot is at basePly+1.
func (s *GameStore) ApplyMove(ctx context.Context, basePly int, req model.MoveRequest) (*model.BoardSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer metrics.Timer(metrics.MoveApply)()
	if !req.From.Valid() || !req.To.Valid() {
		return nil, fmt.Errorf("%w: off-board square", ErrIllegalMove)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if basePly < -1 || basePly >= len(s.moves) {
		return nil, fmt.Errorf("%w: base %d not in [-1, %d]", ErrPlyOutOfRange, basePly, len(s.moves)-1)
	}

	pre := s.positions[basePly+1]
	tok := req.UCI()
	m, err := legalMove(pre, tok)
	if err != nil {
		metrics.MoveRejects.Inc()
		return nil, err
	}
	if p := pre.Board().Piece(m.S1()); req.Promotion != nil && p.Type() != chess.Pawn {
		return nil, fmt.Errorf("%w: only pawns promote", ErrIllegalMove)
	}

	s.positions = s.positions[:basePly+2]
	s.ids = s.ids[:basePly+2]
	s.moves = s.moves[:basePly+1]
	if err := s.push(tok, ""); err != nil {
		return nil, err
	}
	s.gen++
	s.cache = make(map[int]*model.BoardSnapshot)

	debug.Event(debug.LevelDebug, "datasource", "apply_move", map[string]any{
		"base_ply": basePly,
		"uci":      tok,
	})
	snap := s.snapshotLocked(basePly + 1)
	s.cache[basePly+1] = snap
	return snap, nil
}

// Replace swaps in the line held by other, e.g. after the game file was
// rewritten. Outstanding snapshots stay valid.
func (s *GameStore) Replace(other *GameStore) {
	other.mu.RLock()
	positions := append([]*chess.Position(nil), other.positions...)
	ids := append([]idGrid(nil), other.ids...)
	moves := append([]model.MoveRecord(nil), other.moves...)
	tags := make(map[string]string, len(other.tags))
	for k, v := range other.tags {
		tags[k] = v
	}
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions, s.ids, s.moves, s.tags = positions, ids, moves, tags
	s.gen++
	s.cache = make(map[int]*model.BoardSnapshot)
}

// PGN renders the line as movetext with its header tags.
func (s *GameStore) PGN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for _, k := range snapshotTags {
		if v, ok := s.tags[k]; ok {
			fmt.Fprintf(&b, "[%s %q]\n", k, v)
		}
	}
	start := s.positions[0].String()
	if start != StartFEN {
		fmt.Fprintf(&b, "[SetUp \"1\"]\n[FEN %q]\n", start)
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	for i, m := range s.moves {
		pre := s.positions[i]
		n := fullmoveFromFEN(pre.String())
		switch {
		case pre.Turn() == chess.White:
			fmt.Fprintf(&b, "%d. ", n)
		case i == 0:
			fmt.Fprintf(&b, "%d... ", n)
		}
		b.WriteString(m.SAN)
		if m.Clock != "" {
			fmt.Fprintf(&b, " {[%%clk %s]}", m.Clock)
		}
		b.WriteByte(' ')
	}
	result := s.tags["Result"]
	if result == "" {
		result = "*"
	}
	b.WriteString(result)
	return b.String()
}
