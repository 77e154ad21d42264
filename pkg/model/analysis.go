package model

import "fmt"

// EvalKind distinguishes centipawn scores from forced-mate distances.
type EvalKind int8

const (
	Centipawn EvalKind = iota
	Mate
)

func (k EvalKind) String() string {
	if k == Mate {
		return "Mate"
	}
	return "Centipawn"
}

// PVLine is one ranked line of a principal-variation update. EvalValue is
// from White's perspective: centipawns, or signed moves-to-mate.
type PVLine struct {
	Moves     string   `json:"moves"`
	EvalKind  EvalKind `json:"eval_kind"`
	EvalValue int      `json:"eval_value"`
}

// PV is a push update from the analysis engine. Token is the navigation
// token of the position it was computed for.
type PV struct {
	Token uint64         `json:"token"`
	FEN   string         `json:"fen"`
	Depth int            `json:"depth"`
	Lines map[int]PVLine `json:"lines"`
}

// EnginePosition is what the scheduler hands to the analysis engine.
type EnginePosition struct {
	Token    uint64   `json:"token"`
	StartFEN string   `json:"start_fen"`
	Moves    []string `json:"moves,omitempty"`
	FEN      string   `json:"fen"`
	Ply      int      `json:"ply"`
	Terminal bool     `json:"terminal"`
}

// PositionFor builds the engine position for a snapshot at a token.
func PositionFor(s *BoardSnapshot, token uint64) EnginePosition {
	return EnginePosition{
		Token:    token,
		StartFEN: s.StartFEN,
		Moves:    s.UCIMoves(),
		FEN:      s.FEN,
		Ply:      s.Ply,
		Terminal: s.Terminal(),
	}
}

// ArrowKind classifies an overlay arrow.
type ArrowKind int8

const (
	ArrowUser ArrowKind = iota
	ArrowSuggestion
	ArrowThreat
	ArrowGhost
	// ArrowLastMove marks the move that led to the displayed position.
	ArrowLastMove
)

var arrowKindNames = map[ArrowKind]string{
	ArrowUser:       "user",
	ArrowSuggestion: "suggestion",
	ArrowThreat:     "threat",
	ArrowGhost:      "ghost",
	ArrowLastMove:   "last_move",
}

func (k ArrowKind) String() string {
	if name, ok := arrowKindNames[k]; ok {
		return name
	}
	return "user"
}

// MarshalText encodes the kind by name.
func (k ArrowKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ArrowKind) UnmarshalText(b []byte) error {
	for kind, name := range arrowKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown arrow kind %q", b)
}

// Arrow is a directional overlay between two squares.
type Arrow struct {
	From  Coord     `json:"from"`
	To    Coord     `json:"to"`
	Color string    `json:"color"`
	Kind  ArrowKind `json:"kind"`
}

// FromKey returns the "row-col" encoding of the origin.
func (a Arrow) FromKey() string { return a.From.Key() }

// ToKey returns the "row-col" encoding of the destination.
func (a Arrow) ToKey() string { return a.To.Key() }
