package ui

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/overlay"
)

// RenderEnginePanel shows the engine state, the eval bar and the ranked
// PV lines.
func RenderEnginePanel(t Theme, v analyzer.View, width int) string {
	var sb strings.Builder

	switch {
	case !v.HasEngine:
		sb.WriteString(t.MutedText.Render("engine: not configured"))
		return sb.String()
	case v.EngineRunning:
		sb.WriteString(t.Good.Render("● engine running"))
	default:
		sb.WriteString(t.MutedText.Render("○ engine stopped  "))
		sb.WriteString(RenderKeyHint(t, "e", "start"))
	}
	if v.PV != nil {
		sb.WriteString(t.MutedText.Render(fmt.Sprintf("  depth %d", v.PV.Depth)))
	}
	sb.WriteString("\n")

	best, ok := v.BestLine()
	if !ok {
		return sb.String()
	}
	text, pct := overlay.EvalBar(best)
	sb.WriteString(RenderEvalBar(t, pct, width-8))
	sb.WriteString(" ")
	sb.WriteString(t.Bold.Render(text))
	sb.WriteString("\n")

	for _, rank := range overlay.Ranks(v.PV) {
		line := v.PV.Lines[rank]
		eval, _ := overlay.EvalBar(line)
		prefix := fmt.Sprintf("%d. %7s ", rank, eval)
		sb.WriteString(t.MutedText.Render(prefix))
		sb.WriteString(truncate(line.Moves, width-len(prefix)))
		sb.WriteString("\n")
	}
	if v.Threat != "" {
		sb.WriteString(t.Bad.Render("threat: " + v.Threat))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderMoveList shows move pairs around the displayed ply, at most height
// rows.
func RenderMoveList(t Theme, v analyzer.View, width, height int) string {
	if v.Snapshot == nil || len(v.Snapshot.Moves) == 0 {
		return t.MutedText.Render("no moves")
	}
	moves := v.Snapshot.Moves
	first := firstPly(v.Snapshot)

	rows := (len(moves) + first + 1) / 2
	current := (v.Ply + first) / 2
	if v.Ply < 0 {
		current = 0
	}
	start := 0
	if height > 0 && rows > height {
		start = current - height/2
		if start < 0 {
			start = 0
		}
		if start > rows-height {
			start = rows - height
		}
	}

	cellW := (width - 5) / 2
	if cellW < 4 {
		cellW = 4
	}
	cell := func(ply int) string {
		if ply < 0 || ply >= len(moves) {
			return padRight("", cellW)
		}
		s := padRight(truncate(moveText(moves[ply]), cellW), cellW)
		if ply == v.Ply {
			return t.Header.UnsetPadding().Render(s)
		}
		return s
	}

	var lines []string
	for r := start; r < rows && (height <= 0 || len(lines) < height); r++ {
		white := 2*r - first
		num := t.MutedText.Render(fmt.Sprintf("%3d.", fullmove(v.Snapshot, r)))
		lines = append(lines, num+" "+cell(white)+" "+cell(white+1))
	}
	return strings.Join(lines, "\n")
}

// firstPly is 1 when the line starts with Black to move, else 0.
func firstPly(s *model.BoardSnapshot) int {
	f := strings.Fields(s.StartFEN)
	if len(f) > 1 && f[1] == "b" {
		return 1
	}
	return 0
}

// fullmove returns the move number of move-list row r.
func fullmove(s *model.BoardSnapshot, r int) int {
	start := 1
	f := strings.Fields(s.StartFEN)
	if len(f) > 5 {
		fmt.Sscanf(f[5], "%d", &start)
	}
	return start + r
}

func moveText(m model.MoveRecord) string {
	s := m.SAN
	if s == "" {
		s = m.UCI
	}
	if m.Clock != "" {
		s += " " + m.Clock
	}
	return s
}
