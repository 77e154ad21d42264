package overlay

import (
	"fmt"
	"math"
	"strings"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

// DefaultGhostPlies is how far into a hovered line ghosts are shown.
const DefaultGhostPlies = 4

// Ghosts previews the first limit plies of a line. Each ply moves a piece on
// a scratch copy of the visible board and yields a ghost piece on its
// destination and a ghost arrow. The walk stops at the first token that does
// not parse or whose origin is empty.
func Ghosts(pieces []model.RenderedPiece, line model.PVLine, limit int) ([]model.GhostPiece, []model.Arrow) {
	if limit <= 0 {
		limit = DefaultGhostPlies
	}
	var board [8][8]*model.GhostPiece
	for _, p := range pieces {
		if p.Visible && p.At().Valid() {
			board[p.Row][p.Col] = &model.GhostPiece{Kind: p.Kind, Color: p.Color, At: p.At()}
		}
	}

	var ghosts []model.GhostPiece
	var arrows []model.Arrow
	for i, tok := range strings.Fields(line.Moves) {
		if i >= limit {
			break
		}
		from, to, ok := ParseToken(tok)
		if !ok {
			break
		}
		mover := board[from.Row][from.Col]
		if mover == nil {
			break
		}
		moved := *mover
		moved.At = to
		if k, ok := PromotionOf(tok); ok {
			moved.Kind = k
		}
		board[from.Row][from.Col] = nil
		board[to.Row][to.Col] = &moved

		ghosts = append(ghosts, moved)
		arrows = append(arrows, model.Arrow{From: from, To: to, Color: ColorGhost, Kind: model.ArrowGhost})
	}
	return ghosts, arrows
}

// EvalBarClampCp bounds centipawn scores on the eval bar.
const EvalBarClampCp = 500

// EvalBar renders the line's evaluation as text and White's share of the bar
// in percent.
func EvalBar(line model.PVLine) (string, float64) {
	if line.EvalKind == model.Mate {
		switch {
		case line.EvalValue > 0:
			return fmt.Sprintf("M%d", line.EvalValue), 100
		case line.EvalValue < 0:
			return fmt.Sprintf("-M%d", -line.EvalValue), 0
		default:
			return "M0", 50
		}
	}
	cp := math.Max(-EvalBarClampCp, math.Min(EvalBarClampCp, float64(line.EvalValue)))
	return fmt.Sprintf("%+.2f", float64(line.EvalValue)/100), 50 + cp/EvalBarClampCp*50
}
