package promotion

import (
	"errors"
	"testing"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

var whitePawn = model.RenderedPiece{PieceID: 3, Kind: model.Pawn, Color: model.White, Row: 1, Col: 4, Visible: true}

func TestIntercept_NonPromotionPassesThrough(t *testing.T) {
	var g Gate
	knight := model.RenderedPiece{Kind: model.Knight, Color: model.White, Row: 1, Col: 4}
	held, err := g.Intercept(knight, model.Coord{Row: 1, Col: 4}, model.Coord{Row: 0, Col: 6})
	if err != nil || held {
		t.Fatalf("knight to last rank: held=%v err=%v", held, err)
	}
	held, err = g.Intercept(whitePawn, model.Coord{Row: 2, Col: 4}, model.Coord{Row: 1, Col: 4})
	if err != nil || held {
		t.Fatalf("pawn to seventh: held=%v err=%v", held, err)
	}
	if g.State() != Idle {
		t.Errorf("state = %v, want Idle", g.State())
	}
}

func TestIntercept_BlackPromotesOnRowSeven(t *testing.T) {
	var g Gate
	bp := model.RenderedPiece{Kind: model.Pawn, Color: model.Black, Row: 6, Col: 0}
	held, err := g.Intercept(bp, model.Coord{Row: 6, Col: 0}, model.Coord{Row: 7, Col: 0})
	if err != nil || !held {
		t.Fatalf("black pawn to row 7: held=%v err=%v", held, err)
	}
	if req := g.Pending(); req == nil || req.Color != model.Black {
		t.Errorf("pending = %+v", req)
	}
}

func TestGate_ExclusiveWhileAwaiting(t *testing.T) {
	var g Gate
	from, to := model.Coord{Row: 1, Col: 4}, model.Coord{Row: 0, Col: 4}
	if held, err := g.Intercept(whitePawn, from, to); !held || err != nil {
		t.Fatalf("expected request, got held=%v err=%v", held, err)
	}
	if g.State() != AwaitingChoice {
		t.Fatalf("state = %v", g.State())
	}

	other := model.RenderedPiece{Kind: model.Pawn, Color: model.White, Row: 1, Col: 0}
	if _, err := g.Intercept(other, model.Coord{Row: 1, Col: 0}, model.Coord{Row: 0, Col: 0}); !errors.Is(err, ErrPending) {
		t.Errorf("second intercept err = %v, want ErrPending", err)
	}
	if req := g.Pending(); req.From != from || req.To != to {
		t.Errorf("pending request changed to %+v", req)
	}

	res, err := g.Resolve(model.Queen)
	if err != nil {
		t.Fatal(err)
	}
	mv := res.Move()
	if mv.From != from || mv.To != to || mv.Promotion == nil || *mv.Promotion != model.Queen {
		t.Errorf("forwarded move = %+v", mv)
	}
	if _, err := g.Resolve(model.Queen); !errors.Is(err, ErrNoRequest) {
		t.Errorf("second resolve err = %v, want ErrNoRequest", err)
	}
	if g.State() != Idle {
		t.Errorf("state after resolve = %v", g.State())
	}
}

func TestGate_Cancel(t *testing.T) {
	var g Gate
	_, _ = g.Intercept(whitePawn, model.Coord{Row: 1, Col: 4}, model.Coord{Row: 0, Col: 4})
	req, err := g.Cancel()
	if err != nil || req.To != (model.Coord{Row: 0, Col: 4}) {
		t.Fatalf("Cancel = %+v, %v", req, err)
	}
	if g.State() != Idle {
		t.Error("cancel should return to Idle")
	}
	if _, err := g.Cancel(); !errors.Is(err, ErrNoRequest) {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestResolve_InvalidKindPanics(t *testing.T) {
	var g Gate
	_, _ = g.Intercept(whitePawn, model.Coord{Row: 1, Col: 4}, model.Coord{Row: 0, Col: 4})
	for _, k := range []model.Kind{model.King, model.Pawn} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Resolve(%v) should panic", k)
				}
			}()
			_, _ = g.Resolve(k)
		}()
	}
	if g.State() != AwaitingChoice {
		t.Error("an invalid choice must not consume the request")
	}
}
