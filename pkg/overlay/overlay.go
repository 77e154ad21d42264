// Package overlay turns engine output into board arrows.
//
// Every move string coming from the engine is validated before it becomes an
// arrow. A malformed token yields no arrow and a debug diagnostic; it never
// interrupts navigation. Coordinates use the board's array layout
// (row = 8 - rank, col = file index); flipping for Black's viewpoint happens
// when the board is drawn.
package overlay

import (
	"sort"
	"strings"

	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
)

// Arrow colors by kind.
const (
	ColorUser       = "#f59e0b"
	ColorSuggestion = "#22c55e"
	ColorThreat     = "#ef4444"
	ColorGhost      = "#60a5fa"
	ColorLastMove   = "#a3a3a3"
)

// ParseSquare converts an algebraic square such as "e2" to a coordinate.
func ParseSquare(s string) (model.Coord, bool) {
	if len(s) != 2 {
		return model.Coord{}, false
	}
	file, rank := s[0], s[1]
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return model.Coord{}, false
	}
	return model.Coord{Row: 8 - int(rank-'0'), Col: int(file - 'a')}, true
}

// ParseToken reads the first whitespace-delimited token of s as a 4 or 5
// character move and returns its origin and destination.
func ParseToken(s string) (from, to model.Coord, ok bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return from, to, false
	}
	tok := fields[0]
	if len(tok) != 4 && len(tok) != 5 {
		return from, to, false
	}
	if from, ok = ParseSquare(tok[0:2]); !ok {
		return from, to, false
	}
	if to, ok = ParseSquare(tok[2:4]); !ok {
		return from, to, false
	}
	return from, to, true
}

// PromotionOf returns the promotion kind carried by a 5 character token.
func PromotionOf(tok string) (model.Kind, bool) {
	if len(tok) != 5 {
		return model.Pawn, false
	}
	k, ok := model.KindFromLetter(tok[4])
	if !ok || k == model.Pawn || k == model.King {
		return model.Pawn, false
	}
	return k, true
}

func arrowFor(s string, kind model.ArrowKind, color string) *model.Arrow {
	from, to, ok := ParseToken(s)
	if !ok {
		metrics.BadOverlays.Inc()
		debug.Log("overlay: dropping malformed %s token %q", kind, s)
		debug.Event(debug.LevelDebug, "overlay", "malformed_token", map[string]any{
			"kind":  kind.String(),
			"token": s,
		})
		return nil
	}
	return &model.Arrow{From: from, To: to, Color: color, Kind: kind}
}

// Threat validates a threat move string into an arrow.
func Threat(s string) *model.Arrow {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return arrowFor(s, model.ArrowThreat, ColorThreat)
}

// Suggestion returns the arrow for the first move of the best line in pv.
func Suggestion(pv *model.PV) *model.Arrow {
	line, ok := BestLine(pv)
	if !ok {
		return nil
	}
	return arrowFor(line.Moves, model.ArrowSuggestion, ColorSuggestion)
}

// score orders lines: tier 1 is a forced mate for White, tier -1 a forced
// mate for Black, tier 0 a centipawn score. Within a tier, higher is better.
func score(l model.PVLine) (tier, value int) {
	if l.EvalKind != model.Mate || l.EvalValue == 0 {
		if l.EvalKind == model.Mate {
			return 0, 0
		}
		return 0, l.EvalValue
	}
	if l.EvalValue > 0 {
		return 1, -l.EvalValue
	}
	return -1, -l.EvalValue
}

// Better reports whether a ranks strictly above b.
func Better(a, b model.PVLine) bool {
	at, av := score(a)
	bt, bv := score(b)
	if at != bt {
		return at > bt
	}
	return av > bv
}

// BestLine picks the line that is best for the side to move in pv.FEN.
// Scores are from White's perspective, so with Black to move the lowest
// evaluation wins. Equal evaluations resolve to the lowest rank.
func BestLine(pv *model.PV) (model.PVLine, bool) {
	if pv == nil || len(pv.Lines) == 0 {
		return model.PVLine{}, false
	}
	black := SideToMove(pv.FEN) == model.Black
	ranks := Ranks(pv)
	best := pv.Lines[ranks[0]]
	for _, r := range ranks[1:] {
		l := pv.Lines[r]
		if (!black && Better(l, best)) || (black && Better(best, l)) {
			best = l
		}
	}
	return best, true
}

// SideToMove reads the active color of a FEN. Anything unreadable counts
// as White.
func SideToMove(fen string) model.Color {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return model.Black
	}
	return model.White
}

// Ranks returns the line ranks of pv in ascending order.
func Ranks(pv *model.PV) []int {
	if pv == nil {
		return nil
	}
	out := make([]int, 0, len(pv.Lines))
	for r := range pv.Lines {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}
