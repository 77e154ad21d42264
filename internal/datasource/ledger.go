package datasource

import (
	"github.com/corentings/chess/v2"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

// idGrid maps each square (indexed by chess.Square) to a piece id; 0 is empty.
type idGrid [64]int

// initialIDs numbers the pieces of a position in board scan order, a8..h1,
// starting at 1.
func initialIDs(pos *chess.Position) idGrid {
	var g idGrid
	board := pos.Board()
	next := 1
	for rank := chess.Rank8; ; rank-- {
		for file := chess.FileA; file <= chess.FileH; file++ {
			sq := chess.NewSquare(file, rank)
			if board.Piece(sq) != chess.NoPiece {
				g[sq] = next
				next++
			}
		}
		if rank == chess.Rank1 {
			break
		}
	}
	return g
}

// follow carries ids across one move played from pre. The mover keeps its
// id, including through promotion; a captured piece's id disappears; a
// castling rook keeps its id on its new square.
func follow(prev idGrid, pre *chess.Position, s1, s2 chess.Square) idGrid {
	g := prev
	board := pre.Board()
	mover := board.Piece(s1)
	id := g[s1]
	g[s1] = 0

	// En passant: a pawn changes file onto an empty square.
	if mover.Type() == chess.Pawn && s1.File() != s2.File() && board.Piece(s2) == chess.NoPiece {
		g[chess.NewSquare(s2.File(), s1.Rank())] = 0
	}

	if mover.Type() == chess.King && absInt(int(s2.File())-int(s1.File())) == 2 {
		rank := s1.Rank()
		rookFrom, rookTo := chess.NewSquare(chess.FileH, rank), chess.NewSquare(chess.FileF, rank)
		if s2.File() < s1.File() {
			rookFrom, rookTo = chess.NewSquare(chess.FileA, rank), chess.NewSquare(chess.FileD, rank)
		}
		g[rookTo] = g[rookFrom]
		g[rookFrom] = 0
	}

	g[s2] = id
	return g
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// coordOf converts a library square to a board coordinate.
func coordOf(sq chess.Square) model.Coord {
	return model.Coord{Row: 7 - int(sq.Rank()), Col: int(sq.File())}
}

func colorOf(c chess.Color) model.Color {
	if c == chess.Black {
		return model.Black
	}
	return model.White
}

func kindOf(t chess.PieceType) model.Kind {
	switch t {
	case chess.Knight:
		return model.Knight
	case chess.Bishop:
		return model.Bishop
	case chess.Rook:
		return model.Rook
	case chess.Queen:
		return model.Queen
	case chess.King:
		return model.King
	default:
		return model.Pawn
	}
}
