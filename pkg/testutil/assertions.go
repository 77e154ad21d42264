package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vanderheijden86/boardsync/pkg/model"
)

// WriteFile writes content under dir and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// WriteMiniature writes MiniaturePGN to dir/game.pgn.
func WriteMiniature(t *testing.T, dir string) string {
	t.Helper()
	return WriteFile(t, dir, "game.pgn", MiniaturePGN)
}

// CountVisible counts the pieces that are drawn.
func CountVisible(pieces []model.RenderedPiece) int {
	n := 0
	for _, p := range pieces {
		if p.Visible {
			n++
		}
	}
	return n
}

// T is the part of *testing.T and *rapid.T the assertions use.
type T interface {
	Helper()
	Errorf(format string, args ...any)
}

// AssertUniqueIDs fails when two pieces on the board share an ID.
func AssertUniqueIDs(t T, snap *model.BoardSnapshot) {
	t.Helper()

	seen := make(map[int]model.Coord)
	for r, row := range snap.Squares {
		for c, p := range row {
			if p == nil {
				continue
			}
			at := model.Coord{Row: r, Col: c}
			if prev, dup := seen[p.ID]; dup {
				t.Errorf("piece id %d on both %v and %v", p.ID, prev, at)
			}
			seen[p.ID] = at
		}
	}
}

// AssertPieceCount checks the number of pieces per color.
func AssertPieceCount(t T, snap *model.BoardSnapshot, white, black int) {
	t.Helper()

	counts := map[model.Color]int{}
	for _, row := range snap.Squares {
		for _, p := range row {
			if p != nil {
				counts[p.Color]++
			}
		}
	}
	if counts[model.White] != white || counts[model.Black] != black {
		t.Errorf("expected %d white and %d black pieces, got %d and %d",
			white, black, counts[model.White], counts[model.Black])
	}
}
