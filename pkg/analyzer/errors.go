package analyzer

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/boardsync/pkg/promotion"
)

var (
	// ErrPromotionPending rejects move input while a promotion choice is open.
	ErrPromotionPending = promotion.ErrPending
	// ErrNoPromotion is returned when resolving with nothing pending.
	ErrNoPromotion = promotion.ErrNoRequest
	// ErrReviewMode rejects moves while reviewing a recorded game.
	ErrReviewMode = errors.New("moves are disabled in review mode")
	// ErrNoPieceAtOrigin rejects a move from an empty square.
	ErrNoPieceAtOrigin = errors.New("no piece on origin square")
	// ErrNoEngine is returned by engine commands when no engine is attached.
	ErrNoEngine = errors.New("no analysis engine configured")
	// ErrMoveInFlight rejects a move while the previous one is still being
	// applied by the store.
	ErrMoveInFlight = errors.New("previous move is still being applied")
	// ErrClosed is returned by commands after Close.
	ErrClosed = errors.New("controller closed")
)

// FetchError records a failed call to the position store. The controller
// keeps showing the previous position; the next navigation retries.
type FetchError struct {
	Op    string // "snapshot" or "apply_move"
	Ply   int
	Token uint64
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s ply %d (token %d): %v", e.Op, e.Ply, e.Token, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
