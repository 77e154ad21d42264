package uciengine

import (
	"fmt"
	"strings"

	"github.com/freeeve/uci"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// PositionCommand builds the UCI "position" command for pos.
func PositionCommand(pos model.EnginePosition) string {
	var b strings.Builder
	if pos.StartFEN == "" || pos.StartFEN == startFEN {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(pos.StartFEN)
	}
	if len(pos.Moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(pos.Moves, " "))
	}
	return b.String()
}

// SideMultiplier converts scores from the side to move's view to White's:
// 1 when White is to move, -1 when Black is.
func SideMultiplier(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return -1
	}
	return 1
}

// FlipTurn hands the move to the other side, clearing the en passant square
// which only belongs to the original side to move.
func FlipTurn(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", fmt.Errorf("uciengine: malformed fen %q", fen)
	}
	switch fields[1] {
	case "w":
		fields[1] = "b"
	case "b":
		fields[1] = "w"
	default:
		return "", fmt.Errorf("uciengine: malformed side to move in %q", fen)
	}
	if len(fields) > 3 {
		fields[3] = "-"
	}
	return strings.Join(fields, " "), nil
}

// ToPV converts one depth's results into a PV keyed by line rank, with
// scores from White's perspective.
func ToPV(token uint64, fen string, depth int, res *uci.Results, mult int) model.PV {
	pv := model.PV{Token: token, FEN: fen, Depth: depth, Lines: map[int]model.PVLine{}}
	if res == nil {
		return pv
	}
	for _, r := range res.Results {
		if r.Depth != depth || r.Upperbound || r.Lowerbound || len(r.BestMoves) == 0 {
			continue
		}
		rank := r.MultiPV
		if rank == 0 {
			rank = 1
		}
		line := model.PVLine{
			Moves:     strings.Join(r.BestMoves, " "),
			EvalKind:  model.Centipawn,
			EvalValue: r.Score * mult,
		}
		if r.Mate {
			line.EvalKind = model.Mate
		}
		pv.Lines[rank] = line
	}
	return pv
}
