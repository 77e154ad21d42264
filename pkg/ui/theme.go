package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeBg returns the given hex color for ANSI256+ terminals and
// lipgloss.NoColor{} otherwise. Board squares need at least 256 colors to
// stay readable; on 16-color terminals the glyphs carry the position.
func ThemeBg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(hex)
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

type Theme struct {
	Renderer *lipgloss.Renderer

	// Colors
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Board
	LightSquare lipgloss.TerminalColor
	DarkSquare  lipgloss.TerminalColor
	LastMove    lipgloss.TerminalColor
	Cursor      lipgloss.TerminalColor
	Selected    lipgloss.TerminalColor
	Target      lipgloss.TerminalColor
	Suggestion  lipgloss.TerminalColor
	Threat      lipgloss.TerminalColor
	UserArrow   lipgloss.TerminalColor
	WhitePiece  lipgloss.TerminalColor
	BlackPiece  lipgloss.TerminalColor
	GhostPiece  lipgloss.TerminalColor

	// Styles
	Base      lipgloss.Style
	Header    lipgloss.Style
	Panel     lipgloss.Style
	MutedText lipgloss.Style
	Bold      lipgloss.Style
	Error     lipgloss.Style
	Good      lipgloss.Style
	Bad       lipgloss.Style
}

// DefaultTheme returns the standard Dracula-inspired theme (adaptive) with
// wooden board squares.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},

		LightSquare: ThemeBg("#F0D9B5"),
		DarkSquare:  ThemeBg("#B58863"),
		LastMove:    ThemeBg("#CDD26A"),
		Cursor:      ThemeBg("#8BE9FD"),
		Selected:    ThemeBg("#50FA7B"),
		Target:      ThemeBg("#A9C47F"),
		Suggestion:  ThemeBg("#22C55E"),
		Threat:      ThemeBg("#EF4444"),
		UserArrow:   ThemeBg("#F59E0B"),
		WhitePiece:  lipgloss.Color("#FFFFFF"),
		BlackPiece:  lipgloss.Color("#000000"),
		GhostPiece:  lipgloss.Color("#3B82F6"),
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.Panel = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)

	t.MutedText = r.NewStyle().Foreground(ColorMuted)
	t.Bold = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.Error = r.NewStyle().Foreground(ColorDanger).Bold(true)
	t.Good = r.NewStyle().Foreground(ColorSuccess)
	t.Bad = r.NewStyle().Foreground(ColorDanger)

	return t
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}
