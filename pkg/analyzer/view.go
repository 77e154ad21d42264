package analyzer

import (
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/overlay"
)

// Mode selects whether the board accepts moves.
type Mode int

const (
	// Sandbox accepts moves; a move branches the line from the displayed ply.
	Sandbox Mode = iota
	// Review shows a recorded game; moves are rejected.
	Review
)

func (m Mode) String() string {
	if m == Review {
		return "review"
	}
	return "sandbox"
}

// View is an immutable picture of the controller, published after every
// state change. Nothing in a View is shared with the controller.
type View struct {
	Seq   uint64 `json:"seq"`
	Token uint64 `json:"token"`
	// Index is the navigation target; Ply is the ply actually displayed.
	// They differ while a fetch is outstanding.
	Index   int  `json:"index"`
	Ply     int  `json:"ply"`
	Len     int  `json:"len"`
	Loading bool `json:"loading"`

	Pieces   []model.RenderedPiece `json:"pieces"`
	Snapshot *model.BoardSnapshot  `json:"snapshot,omitempty"`
	LastMove *model.Arrow          `json:"last_move,omitempty"`

	Arrows []model.Arrow      `json:"arrows"`
	Ghosts []model.GhostPiece `json:"ghosts,omitempty"`
	PV     *model.PV          `json:"pv,omitempty"`
	Threat string             `json:"threat,omitempty"`

	Promotion     *model.PromotionRequest `json:"promotion,omitempty"`
	EngineRunning bool                    `json:"engine_running"`
	HasEngine     bool                    `json:"has_engine"`
	Mode          Mode                    `json:"mode"`
	Flipped       bool                    `json:"flipped"`
	LastError     string                  `json:"last_error,omitempty"`
}

// BestLine returns the best line of the current PV.
func (v View) BestLine() (model.PVLine, bool) {
	return overlay.BestLine(v.PV)
}

// PieceAt returns the visible piece on c.
func (v View) PieceAt(c model.Coord) (model.RenderedPiece, bool) {
	for _, p := range v.Pieces {
		if p.Visible && p.Row == c.Row && p.Col == c.Col {
			return p, true
		}
	}
	return model.RenderedPiece{}, false
}

// Targets returns the legal destinations from c in the displayed position.
func (v View) Targets(c model.Coord) []model.Coord {
	if v.Snapshot == nil {
		return nil
	}
	return v.Snapshot.Targets[c]
}
