package ui

import (
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/export"
)

// infoPanel renders the markdown game report in a scrollable viewport.
type infoPanel struct {
	vp       viewport.Model
	renderer *glamour.TermRenderer
	wrap     int
	lastSeq  uint64
}

func newInfoPanel(width, height int) infoPanel {
	p := infoPanel{vp: viewport.New(width, height)}
	p.setWrap(width)
	return p
}

func (p *infoPanel) setWrap(width int) {
	if width < 20 {
		width = 20
	}
	if width == p.wrap && p.renderer != nil {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		r = nil
	}
	p.renderer = r
	p.wrap = width
	p.lastSeq = 0
}

// Resize adjusts the viewport and re-wraps on the next update.
func (p *infoPanel) Resize(width, height int) {
	p.vp.Width = width
	p.vp.Height = height
	p.setWrap(width)
}

// Update re-renders the report when the view changed.
func (p *infoPanel) Update(v analyzer.View) {
	if v.Seq == p.lastSeq {
		return
	}
	p.lastSeq = v.Seq
	p.vp.SetContent(p.render(GameReportFor(v)))
}

func (p *infoPanel) render(r export.GameReport) string {
	md := export.RenderMarkdown(r)
	if p.renderer == nil {
		return md
	}
	out, err := p.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (p infoPanel) View() string {
	return p.vp.View()
}

// GameReportFor builds the markdown report input from a view.
func GameReportFor(v analyzer.View) export.GameReport {
	r := export.GameReport{Ply: v.Ply, PV: v.PV, Threat: v.Threat}
	if s := v.Snapshot; s != nil {
		r.Tags = s.Tags
		r.Moves = s.Moves
		r.FEN = s.FEN
		r.StartPly = firstPly(s)
	}
	return r
}
