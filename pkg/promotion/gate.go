// Package promotion holds a pawn move that reaches the last rank until the
// user picks the piece it becomes.
package promotion

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

// State is the gate's lifecycle position.
type State int

const (
	Idle State = iota
	AwaitingChoice
)

func (s State) String() string {
	if s == AwaitingChoice {
		return "AwaitingChoice"
	}
	return "Idle"
}

var (
	// ErrPending is returned by Intercept while a choice is outstanding.
	ErrPending = errors.New("promotion choice pending")
	// ErrNoRequest is returned by Resolve and Cancel when nothing is pending.
	ErrNoRequest = errors.New("no promotion pending")
)

// Choices are the kinds a pawn may promote to, in menu order.
var Choices = []model.Kind{model.Queen, model.Rook, model.Bishop, model.Knight}

// ValidChoice reports whether k is one of Choices.
func ValidChoice(k model.Kind) bool {
	for _, c := range Choices {
		if c == k {
			return true
		}
	}
	return false
}

// Resolution is a resolved request with the chosen kind.
type Resolution struct {
	Request model.PromotionRequest
	Kind    model.Kind
}

// Move converts the resolution into the move forwarded to the store.
func (r Resolution) Move() model.MoveRequest {
	k := r.Kind
	return model.MoveRequest{From: r.Request.From, To: r.Request.To, Promotion: &k}
}

// Gate is safe for concurrent use; at most one request is live at a time.
type Gate struct {
	mu      sync.Mutex
	pending *model.PromotionRequest
}

// NeedsChoice reports whether moving mover to to is a promotion.
func NeedsChoice(mover model.RenderedPiece, to model.Coord) bool {
	return mover.Kind == model.Pawn && to.Row == model.TerminalRow(mover.Color)
}

// Intercept inspects a move attempt. It returns true when the move was
// captured as a new promotion request, false when the move is not a
// promotion and should proceed. While a request is pending every attempt
// fails with ErrPending and changes nothing.
func (g *Gate) Intercept(mover model.RenderedPiece, from, to model.Coord) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		return false, ErrPending
	}
	if !NeedsChoice(mover, to) {
		return false, nil
	}
	g.pending = &model.PromotionRequest{From: from, To: to, Color: mover.Color}
	return true, nil
}

// Resolve completes the pending request with kind and returns to Idle. It
// panics if kind is not a legal promotion piece: callers only offer
// Choices, so anything else is a bug.
func (g *Gate) Resolve(kind model.Kind) (Resolution, error) {
	if !ValidChoice(kind) {
		panic(fmt.Sprintf("promotion: invalid choice %v", kind))
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return Resolution{}, ErrNoRequest
	}
	res := Resolution{Request: *g.pending, Kind: kind}
	g.pending = nil
	return res, nil
}

// Cancel drops the pending request and returns it.
func (g *Gate) Cancel() (model.PromotionRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return model.PromotionRequest{}, ErrNoRequest
	}
	req := *g.pending
	g.pending = nil
	return req, nil
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return AwaitingChoice
	}
	return Idle
}

// Pending returns a copy of the live request, or nil.
func (g *Gate) Pending() *model.PromotionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	req := *g.pending
	return &req
}
