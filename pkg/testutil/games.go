// Package testutil provides chess game fixtures for tests.
// All generators produce deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/corentings/chess/v2"
)

// MiniaturePGN is a short decisive game: four moves ending in Qxf7#.
const MiniaturePGN = `[Event "Club Blitz"]
[White "Alice"]
[Black "Bob"]
[Result "1-0"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0
`

// PromotionFEN has a white pawn one step from queening.
const PromotionFEN = "8/4P3/8/8/8/8/k7/7K w - - 0 1"

// GameFixture is a generated line from a start position.
type GameFixture struct {
	Description string   `json:"description"`
	FEN         string   `json:"fen"`
	Moves       []string `json:"moves"` // UCI tokens
	Final       string   `json:"final"` // FEN after the last move
}

// GeneratorConfig controls game generation.
type GeneratorConfig struct {
	Seed     int64     // Random seed for determinism (0 = use current time)
	StartFEN string    // Start position (default: standard setup)
	White    string    // PGN White tag (default: "White")
	Black    string    // PGN Black tag (default: "Black")
	BaseTime time.Time // PGN Date tag (default: fixed time)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		White:    "White",
		Black:    "Black",
		BaseTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Generator plays random legal games.
type Generator struct {
	cfg   GeneratorConfig
	rng   *rand.Rand
	start *chess.Position
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) (*Generator, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	if cfg.White == "" {
		cfg.White = "White"
	}
	if cfg.Black == "" {
		cfg.Black = "Black"
	}
	start := chess.NewGame().Position()
	if cfg.StartFEN != "" {
		opt, err := chess.FEN(cfg.StartFEN)
		if err != nil {
			return nil, fmt.Errorf("start fen: %w", err)
		}
		start = chess.NewGame(opt).Position()
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed)), start: start}, nil
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	g, _ := New(DefaultConfig())
	return g
}

// RandomLine plays up to plies random legal moves. The line is shorter when
// the game ends first.
func (g *Generator) RandomLine(plies int) GameFixture {
	pos := g.start
	moves := make([]string, 0, plies)
	for len(moves) < plies {
		valid := pos.ValidMoves()
		if len(valid) == 0 {
			break
		}
		m := valid[g.rng.Intn(len(valid))]
		moves = append(moves, chess.UCINotation{}.Encode(pos, &m))
		pos = pos.Update(&m)
	}
	return GameFixture{
		Description: fmt.Sprintf("random line of %d plies", len(moves)),
		FEN:         g.start.String(),
		Moves:       moves,
		Final:       pos.String(),
	}
}

// PromotionLine plays random moves until some pawn can promote, then stops
// before the promotion. ok is false when no promotion arose within plies.
func (g *Generator) PromotionLine(plies int) (fixture GameFixture, promo string, ok bool) {
	pos := g.start
	var moves []string
	for len(moves) < plies {
		valid := pos.ValidMoves()
		if len(valid) == 0 {
			break
		}
		for i := range valid {
			if valid[i].Promo() != chess.NoPieceType {
				return GameFixture{
					Description: fmt.Sprintf("promotion available after %d plies", len(moves)),
					FEN:         g.start.String(),
					Moves:       moves,
					Final:       pos.String(),
				}, chess.UCINotation{}.Encode(pos, &valid[i]), true
			}
		}
		m := valid[g.rng.Intn(len(valid))]
		moves = append(moves, chess.UCINotation{}.Encode(pos, &m))
		pos = pos.Update(&m)
	}
	return GameFixture{}, "", false
}

// PGN renders a fixture as a PGN game with the configured tags.
func (g *Generator) PGN(f GameFixture) (string, error) {
	pos := g.start
	if f.FEN != "" && f.FEN != pos.String() {
		opt, err := chess.FEN(f.FEN)
		if err != nil {
			return "", err
		}
		pos = chess.NewGame(opt).Position()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"Generated\"]\n[Date %q]\n[White %q]\n[Black %q]\n[Result \"*\"]\n",
		g.cfg.BaseTime.Format("2006.01.02"), g.cfg.White, g.cfg.Black)
	if pos.String() != chess.NewGame().Position().String() {
		fmt.Fprintf(&b, "[SetUp \"1\"]\n[FEN %q]\n", pos.String())
	}
	b.WriteByte('\n')

	for i, tok := range f.Moves {
		m, err := decode(pos, tok)
		if err != nil {
			return "", fmt.Errorf("move %d: %w", i+1, err)
		}
		if pos.Turn() == chess.White {
			fmt.Fprintf(&b, "%d. ", fullmove(pos))
		} else if i == 0 {
			fmt.Fprintf(&b, "%d... ", fullmove(pos))
		}
		b.WriteString(chess.AlgebraicNotation{}.Encode(pos, m))
		b.WriteByte(' ')
		pos = pos.Update(m)
	}
	b.WriteString("*\n")
	return b.String(), nil
}

func decode(pos *chess.Position, tok string) (*chess.Move, error) {
	want, err := chess.UCINotation{}.Decode(nil, tok)
	if err != nil {
		return nil, err
	}
	for _, m := range pos.ValidMoves() {
		if m.S1() == want.S1() && m.S2() == want.S2() && m.Promo() == want.Promo() {
			mv := m
			return &mv, nil
		}
	}
	return nil, fmt.Errorf("illegal move %s", tok)
}

func fullmove(pos *chess.Position) int {
	fields := strings.Fields(pos.String())
	if len(fields) < 6 {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(fields[5], "%d", &n); err != nil || n < 1 {
		return 1
	}
	return n
}
