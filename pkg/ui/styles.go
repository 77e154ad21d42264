package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Spacing constants for consistent layout (in characters)
const (
	SpaceXS = 1
	SpaceSM = 2
	SpaceMD = 3
)

// Adaptive colors for light and dark terminals. Light mode colors are tuned
// for a contrast ratio of at least 4.5:1.
var (
	ColorText    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	ColorEvalWhite = lipgloss.AdaptiveColor{Light: "#EEEEEE", Dark: "#F8F8F2"}
	ColorEvalBlack = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#1E1F29"}
)

// RenderEvalBar draws a horizontal bar of width cells where White's share is
// pct percent.
func RenderEvalBar(t Theme, pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	white := int(pct/100*float64(width) + 0.5)
	if white < 0 {
		white = 0
	}
	if white > width {
		white = width
	}
	w := t.Renderer.NewStyle().Foreground(ColorEvalWhite).Render(strings.Repeat("█", white))
	b := t.Renderer.NewStyle().Foreground(ColorEvalBlack).Render(strings.Repeat("█", width-white))
	return w + b
}

// RenderKeyHint renders a "key action" pair for status lines.
func RenderKeyHint(t Theme, key, action string) string {
	k := t.Renderer.NewStyle().Foreground(ColorPrimary).Bold(true).Render(key)
	return k + " " + t.MutedText.Render(action)
}
