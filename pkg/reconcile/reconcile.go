// Package reconcile keeps the displayed piece list in step with
// authoritative board snapshots without churning piece identity.
//
// Records are keyed by piece id. A piece that persists across snapshots keeps
// its record and only has its position or kind updated, so the presentation
// layer can animate a move instead of redrawing a new piece. Pieces missing
// from a snapshot are kept with Visible=false until Collect drops them.
package reconcile

import (
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
)

// Reconcile merges next into prev and returns the new record list. prev is
// not modified. Output order is prev's order followed by newly seen ids in
// board scan order (a8..h1), so equal inputs always give equal outputs.
func Reconcile(prev []model.RenderedPiece, next *model.BoardSnapshot) []model.RenderedPiece {
	defer metrics.Timer(metrics.Reconcile)()

	out := make([]model.RenderedPiece, len(prev), len(prev)+8)
	index := make(map[int]int, len(prev))
	for i, p := range prev {
		p.Visible = false
		out[i] = p
		index[p.PieceID] = i
	}
	if next == nil {
		return out
	}

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			pc := next.Squares[r][c]
			if pc == nil {
				continue
			}
			if i, ok := index[pc.ID]; ok {
				rec := &out[i]
				rec.Row, rec.Col = r, c
				rec.Kind = pc.Kind
				rec.Color = pc.Color
				rec.Visible = true
				continue
			}
			index[pc.ID] = len(out)
			out = append(out, model.RenderedPiece{
				PieceID: pc.ID,
				Kind:    pc.Kind,
				Color:   pc.Color,
				Row:     r,
				Col:     c,
				Visible: true,
			})
		}
	}
	return out
}

// ApplyLocalMove performs the optimistic update for a move the user just
// made: any visible piece on to is hidden, the visible piece on from moves to
// to and, for a promotion, takes the new kind in place. It returns prev
// unchanged (as a copy) and false if no visible piece stands on from.
func ApplyLocalMove(prev []model.RenderedPiece, from, to model.Coord, promo *model.Kind) ([]model.RenderedPiece, bool) {
	out := make([]model.RenderedPiece, len(prev))
	copy(out, prev)

	mover := -1
	for i, p := range out {
		if p.Visible && p.Row == from.Row && p.Col == from.Col {
			mover = i
			break
		}
	}
	if mover < 0 || from == to {
		return out, false
	}

	for i := range out {
		if i != mover && out[i].Visible && out[i].Row == to.Row && out[i].Col == to.Col {
			out[i].Visible = false
		}
	}
	out[mover].Row, out[mover].Col = to.Row, to.Col
	if promo != nil {
		out[mover].Kind = *promo
	}
	return out, true
}

// Collect drops records that are no longer visible. The controller runs it
// before each settle, so a hidden record lives for exactly one settle.
func Collect(pieces []model.RenderedPiece) []model.RenderedPiece {
	out := make([]model.RenderedPiece, 0, len(pieces))
	for _, p := range pieces {
		if p.Visible {
			out = append(out, p)
		}
	}
	return out
}

// Visible returns the visible records in order.
func Visible(pieces []model.RenderedPiece) []model.RenderedPiece {
	return Collect(pieces)
}

// At returns the visible record on c.
func At(pieces []model.RenderedPiece, c model.Coord) (model.RenderedPiece, bool) {
	for _, p := range pieces {
		if p.Visible && p.Row == c.Row && p.Col == c.Col {
			return p, true
		}
	}
	return model.RenderedPiece{}, false
}

// ByID returns the record for id, visible or not.
func ByID(pieces []model.RenderedPiece, id int) (model.RenderedPiece, bool) {
	for _, p := range pieces {
		if p.PieceID == id {
			return p, true
		}
	}
	return model.RenderedPiece{}, false
}

// Grid lays the visible records out as an 8x8 board for rendering.
func Grid(pieces []model.RenderedPiece) [8][8]*model.RenderedPiece {
	var g [8][8]*model.RenderedPiece
	for i := range pieces {
		p := pieces[i]
		if !p.Visible || !p.At().Valid() {
			continue
		}
		g[p.Row][p.Col] = &p
	}
	return g
}
