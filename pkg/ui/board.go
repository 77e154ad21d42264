package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/model"
)

// pieceGlyphs uses the solid glyph set for both sides; color comes from the
// foreground so pieces stay legible on either square color.
var pieceGlyphs = map[model.Kind]string{
	model.King:   "♚",
	model.Queen:  "♛",
	model.Rook:   "♜",
	model.Bishop: "♝",
	model.Knight: "♞",
	model.Pawn:   "♟",
}

// BoardInput is the cursor state drawn on top of a view.
type BoardInput struct {
	Cursor      model.Coord
	Selected    *model.Coord
	SquareWidth int
}

// screenToBoard maps a screen position (row 0 at the top) to the board
// coordinate drawn there.
func screenToBoard(screen model.Coord, flipped bool) model.Coord {
	if flipped {
		return screen.Flip()
	}
	return screen
}

// RenderBoard draws the view as an 8x8 grid of colored cells with rank and
// file labels.
func RenderBoard(t Theme, v analyzer.View, in BoardInput) string {
	w := in.SquareWidth
	if w < 2 {
		w = 2
	}

	marks := arrowMarks(t, v)
	var targets map[model.Coord]bool
	if in.Selected != nil {
		targets = make(map[model.Coord]bool)
		for _, c := range v.Targets(*in.Selected) {
			targets[c] = true
		}
	}
	ghosts := make(map[model.Coord]model.GhostPiece, len(v.Ghosts))
	for _, g := range v.Ghosts {
		ghosts[g.At] = g
	}

	label := t.MutedText
	var sb strings.Builder
	for sr := 0; sr < 8; sr++ {
		rank := model.Coord{Row: sr, Col: 0}
		rank = screenToBoard(rank, v.Flipped)
		sb.WriteString(label.Render(string(rune('8' - rank.Row))))
		sb.WriteString(" ")
		for sc := 0; sc < 8; sc++ {
			c := screenToBoard(model.Coord{Row: sr, Col: sc}, v.Flipped)
			bg := squareBackground(t, v, c, in, targets, marks)

			glyph, fg := " ", t.WhitePiece
			if p, ok := v.PieceAt(c); ok {
				glyph = pieceGlyphs[p.Kind]
				if p.Color == model.Black {
					fg = t.BlackPiece
				}
			} else if g, ok := ghosts[c]; ok {
				glyph, fg = pieceGlyphs[g.Kind], t.GhostPiece
			} else if targets[c] {
				glyph, fg = "·", t.BlackPiece
			}
			sb.WriteString(t.Renderer.NewStyle().Background(bg).Foreground(fg).Render(centerCell(glyph, w)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("  ")
	for sc := 0; sc < 8; sc++ {
		file := screenToBoard(model.Coord{Row: 0, Col: sc}, v.Flipped).Col
		sb.WriteString(label.Render(centerCell(string(rune('a'+file)), w)))
	}
	return sb.String()
}

func squareBackground(t Theme, v analyzer.View, c model.Coord, in BoardInput, targets map[model.Coord]bool, marks map[model.Coord]lipgloss.TerminalColor) lipgloss.TerminalColor {
	switch {
	case c == in.Cursor:
		return t.Cursor
	case in.Selected != nil && c == *in.Selected:
		return t.Selected
	case v.Promotion != nil && (c == v.Promotion.From || c == v.Promotion.To):
		return t.Selected
	case targets[c]:
		return t.Target
	}
	if bg, ok := marks[c]; ok {
		return bg
	}
	if v.LastMove != nil && (c == v.LastMove.From || c == v.LastMove.To) {
		return t.LastMove
	}
	if (c.Row+c.Col)%2 == 0 {
		return t.LightSquare
	}
	return t.DarkSquare
}

// arrowMarks colors arrow endpoints. A terminal cannot draw diagonal
// arrows, so both ends of each arrow are tinted; later arrows win.
func arrowMarks(t Theme, v analyzer.View) map[model.Coord]lipgloss.TerminalColor {
	marks := make(map[model.Coord]lipgloss.TerminalColor)
	for _, a := range v.Arrows {
		var bg lipgloss.TerminalColor
		switch a.Kind {
		case model.ArrowSuggestion:
			bg = t.Suggestion
		case model.ArrowThreat:
			bg = t.Threat
		case model.ArrowUser:
			bg = t.UserArrow
		default:
			continue
		}
		marks[a.From] = bg
		marks[a.To] = bg
	}
	return marks
}

func centerCell(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	left := (width - sw) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-sw-left)
}
