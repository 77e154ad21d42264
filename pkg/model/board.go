// Package model defines the board, piece and analysis types shared by the
// boardsync packages.
//
// Coordinates follow the board's array layout: Coord{0, 0} is a8 and
// Coord{7, 7} is h1, so row = 8 - rank and col = file index. Orientation
// (viewing the board from Black's side) is applied by the presentation layer
// with Coord.Flip and never stored here.
package model

import (
	"fmt"
	"time"
)

// Color is the side a piece belongs to.
type Color int8

const (
	White Color = iota
	Black
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == Black {
		return "Black"
	}
	return "White"
}

// Kind is the type of a chess piece.
type Kind int8

const (
	Pawn Kind = iota
	Knight
	Bishop
	Rook
	Queen
	King
)

func (k Kind) String() string {
	switch k {
	case Pawn:
		return "Pawn"
	case Knight:
		return "Knight"
	case Bishop:
		return "Bishop"
	case Rook:
		return "Rook"
	case Queen:
		return "Queen"
	case King:
		return "King"
	default:
		return fmt.Sprintf("Kind(%d)", int8(k))
	}
}

// Letter returns the lower-case UCI/FEN letter for the kind.
func (k Kind) Letter() byte {
	switch k {
	case Knight:
		return 'n'
	case Bishop:
		return 'b'
	case Rook:
		return 'r'
	case Queen:
		return 'q'
	case King:
		return 'k'
	default:
		return 'p'
	}
}

// KindFromLetter parses a UCI/FEN piece letter in either case.
func KindFromLetter(b byte) (Kind, bool) {
	switch b {
	case 'p', 'P':
		return Pawn, true
	case 'n', 'N':
		return Knight, true
	case 'b', 'B':
		return Bishop, true
	case 'r', 'R':
		return Rook, true
	case 'q', 'Q':
		return Queen, true
	case 'k', 'K':
		return King, true
	}
	return Pawn, false
}

// KindFromName parses a full kind name such as "Queen".
func KindFromName(s string) (Kind, bool) {
	for k := Pawn; k <= King; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return Pawn, false
}

// Coord addresses a square by array row and column.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Valid reports whether the coordinate is on the board.
func (c Coord) Valid() bool {
	return c.Row >= 0 && c.Row < 8 && c.Col >= 0 && c.Col < 8
}

// Flip mirrors the coordinate for the opposite viewpoint.
func (c Coord) Flip() Coord {
	return Coord{Row: 7 - c.Row, Col: 7 - c.Col}
}

// Key is the "row-col" overlay encoding, e.g. "6-4" for e2.
func (c Coord) Key() string {
	return fmt.Sprintf("%d-%d", c.Row, c.Col)
}

// Square returns the algebraic name of the coordinate, e.g. "e2".
func (c Coord) Square() string {
	if !c.Valid() {
		return "??"
	}
	return string([]byte{byte('a' + c.Col), byte('0' + 8 - c.Row)})
}

func (c Coord) String() string {
	return c.Square()
}

// TerminalRow is the promotion row for pawns of the given color.
func TerminalRow(c Color) int {
	if c == White {
		return 0
	}
	return 7
}

// Piece is an occupant of a square. ID is stable for the lifetime of the
// physical piece, across moves and promotion.
type Piece struct {
	ID    int   `json:"id"`
	Color Color `json:"color"`
	Kind  Kind  `json:"kind"`
}

// Castling holds the remaining castling rights.
type Castling struct {
	WhiteKingside  bool `json:"white_kingside"`
	WhiteQueenside bool `json:"white_queenside"`
	BlackKingside  bool `json:"black_kingside"`
	BlackQueenside bool `json:"black_queenside"`
}

// MoveRecord is one ply of the loaded move list.
type MoveRecord struct {
	UCI       string    `json:"uci"`
	SAN       string    `json:"san,omitempty"`
	Clock     string    `json:"clock,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// BoardSnapshot is an immutable authoritative position produced by a
// position store. Consumers must not mutate it.
type BoardSnapshot struct {
	Squares        [8][8]*Piece      `json:"squares"`
	Turn           Color             `json:"turn"`
	Castling       Castling          `json:"castling"`
	EnPassant      *Coord            `json:"en_passant,omitempty"`
	HalfmoveClock  int               `json:"halfmove_clock"`
	FullmoveNumber int               `json:"fullmove_number"`
	Moves          []MoveRecord      `json:"moves"`
	Ply            int               `json:"ply"`
	FEN            string            `json:"fen"`
	StartFEN       string            `json:"start_fen"`
	Targets        map[Coord][]Coord `json:"-"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// PieceAt returns the occupant of c, or nil.
func (s *BoardSnapshot) PieceAt(c Coord) *Piece {
	if s == nil || !c.Valid() {
		return nil
	}
	return s.Squares[c.Row][c.Col]
}

// Len is the length of the loaded move list.
func (s *BoardSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Moves)
}

// Terminal reports whether the snapshot is the last position of its move list.
func (s *BoardSnapshot) Terminal() bool {
	return s != nil && s.Ply == len(s.Moves)-1
}

// UCIMoves returns the UCI tokens leading from StartFEN to this snapshot.
func (s *BoardSnapshot) UCIMoves() []string {
	if s == nil || s.Ply < 0 {
		return nil
	}
	n := s.Ply + 1
	if n > len(s.Moves) {
		n = len(s.Moves)
	}
	out := make([]string, 0, n)
	for _, m := range s.Moves[:n] {
		out = append(out, m.UCI)
	}
	return out
}

// RenderedPiece is the reconciler's record of a displayed piece. Records are
// never recreated while their PieceID persists; an absent piece is kept with
// Visible=false so its disappearance can be animated.
type RenderedPiece struct {
	PieceID int   `json:"piece_id"`
	Kind    Kind  `json:"kind"`
	Color   Color `json:"color"`
	Row     int   `json:"row"`
	Col     int   `json:"col"`
	Visible bool  `json:"visible"`
}

// At returns the record's coordinate.
func (p RenderedPiece) At() Coord {
	return Coord{Row: p.Row, Col: p.Col}
}

// GhostPiece is a hover-derived preview piece with no identity.
type GhostPiece struct {
	Kind  Kind  `json:"kind"`
	Color Color `json:"color"`
	At    Coord `json:"at"`
}

// PromotionRequest is a pawn move waiting for the user's piece choice.
type PromotionRequest struct {
	From  Coord `json:"from"`
	To    Coord `json:"to"`
	Color Color `json:"color"`
}

// MoveRequest is a move forwarded to the position store.
type MoveRequest struct {
	From      Coord `json:"from"`
	To        Coord `json:"to"`
	Promotion *Kind `json:"promotion,omitempty"`
}

// UCI encodes the request as a 4-5 character UCI token.
func (m MoveRequest) UCI() string {
	s := m.From.Square() + m.To.Square()
	if m.Promotion != nil {
		s += string(m.Promotion.Letter())
	}
	return s
}
