package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/overlay"
)

// GameReport is the input for a markdown game summary.
type GameReport struct {
	Tags     map[string]string
	Moves    []model.MoveRecord
	Ply      int // Highlighted ply; -1 for none
	StartPly int // Ply of the first move; odd when Black moved first
	FEN      string
	PV       *model.PV
	Threat   string
}

// headerOrder lists the tags shown first, in PGN seven-tag-roster order.
var headerOrder = []string{"Event", "Site", "Date", "Round", "White", "Black", "Result"}

// RenderMarkdown renders the game header, move table and the current
// engine evaluation as GitHub-flavoured markdown.
func RenderMarkdown(r GameReport) string {
	var sb strings.Builder

	white, black := tagOr(r.Tags, "White", "White"), tagOr(r.Tags, "Black", "Black")
	sb.WriteString(fmt.Sprintf("# %s vs %s\n\n", escapeMarkdown(white), escapeMarkdown(black)))

	if len(r.Tags) > 0 {
		sb.WriteString("| Tag | Value |\n|---|---|\n")
		for _, k := range sortedTags(r.Tags) {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", k, escapeMarkdown(r.Tags[k])))
		}
		sb.WriteString("\n")
	}

	if len(r.Moves) > 0 {
		sb.WriteString("## Moves\n\n")
		sb.WriteString("| # | White | Black |\n|---:|---|---|\n")
		for _, row := range moveRows(r) {
			sb.WriteString(row)
		}
		sb.WriteString("\n")
	}

	if r.FEN != "" {
		sb.WriteString("## Position\n\n")
		sb.WriteString(fmt.Sprintf("`%s`\n\n", r.FEN))
	}

	if line, ok := overlay.BestLine(r.PV); ok {
		text, _ := overlay.EvalBar(line)
		sb.WriteString("## Engine\n\n")
		sb.WriteString(fmt.Sprintf("- **Eval:** %s (depth %d)\n", text, r.PV.Depth))
		sb.WriteString(fmt.Sprintf("- **Best line:** `%s`\n", line.Moves))
		for _, rank := range overlay.Ranks(r.PV) {
			if rank == 1 {
				continue
			}
			l := r.PV.Lines[rank]
			t, _ := overlay.EvalBar(l)
			sb.WriteString(fmt.Sprintf("- Line %d: %s `%s`\n", rank, t, l.Moves))
		}
		if r.Threat != "" {
			sb.WriteString(fmt.Sprintf("- **Threat:** `%s`\n", r.Threat))
		}
	}

	return sb.String()
}

// SaveMarkdown writes the report to path.
func SaveMarkdown(path string, r GameReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return os.WriteFile(path, []byte(RenderMarkdown(r)), 0o644)
}

func moveRows(r GameReport) []string {
	cell := func(i int) string {
		if i < 0 || i >= len(r.Moves) {
			return ""
		}
		m := r.Moves[i]
		s := m.SAN
		if s == "" {
			s = m.UCI
		}
		s = escapeMarkdown(s)
		if m.Clock != "" {
			s += fmt.Sprintf(" <sub>%s</sub>", m.Clock)
		}
		if i == r.Ply {
			s = "**" + s + "**"
		}
		return s
	}

	var rows []string
	// Plies are laid out two per row; a game starting with Black leaves
	// the first White cell empty.
	offset := r.StartPly % 2
	for i := -offset; i < len(r.Moves); i += 2 {
		num := (i+offset)/2 + 1
		rows = append(rows, fmt.Sprintf("| %d | %s | %s |\n", num, cell(i), cell(i+1)))
	}
	return rows
}

func sortedTags(tags map[string]string) []string {
	known := make(map[string]bool, len(headerOrder))
	var out []string
	for _, k := range headerOrder {
		known[k] = true
		if _, ok := tags[k]; ok {
			out = append(out, k)
		}
	}
	var rest []string
	for k := range tags {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func tagOr(tags map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(tags[key]); v != "" && v != "?" {
		return v
	}
	return fallback
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ", "\r", "").Replace(s)
}
