//go:build ignore

// generate_testdata.go creates sample game sources for manual runs.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	testdata/games/short.pgn   (20 plies)
//	testdata/games/long.pgn    (120 plies)
//	testdata/games/history.db  (25 games)
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/boardsync/internal/datasource"
	"github.com/vanderheijden86/boardsync/pkg/testutil"
)

type datasetSpec struct {
	name  string
	plies int
	seed  int64
}

var datasets = []datasetSpec{
	{"short", 20, 20},
	{"long", 120, 120},
}

var players = []string{"Alice", "Bob", "Carol", "Dmitri", "Eve", "Farid"}

func main() {
	outputDir := "testdata/games"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fail("Failed to create output directory: %v", err)
	}

	for _, ds := range datasets {
		cfg := testutil.DefaultConfig()
		cfg.Seed = ds.seed
		gen, err := testutil.New(cfg)
		if err != nil {
			fail("%s: %v", ds.name, err)
		}
		pgn, err := gen.PGN(gen.RandomLine(ds.plies))
		if err != nil {
			fail("%s: %v", ds.name, err)
		}
		path := filepath.Join(outputDir, ds.name+".pgn")
		if err := os.WriteFile(path, []byte(pgn), 0644); err != nil {
			fail("Failed to write %s: %v", path, err)
		}
		fmt.Printf("  Written %s (%d bytes)\n", path, len(pgn))
	}

	path := filepath.Join(outputDir, "history.db")
	if err := writeHistory(path, 25); err != nil {
		fail("Failed to write %s: %v", path, err)
	}
	fmt.Printf("  Written %s\n", path)

	fmt.Println("\nDone! Sample games created in", outputDir)
}

func writeHistory(path string, n int) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(datasource.HistorySchema); err != nil {
		return err
	}
	base := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		cfg := testutil.DefaultConfig()
		cfg.Seed = int64(1000 + i)
		gen, err := testutil.New(cfg)
		if err != nil {
			return err
		}
		line := gen.RandomLine(10 + (i*7)%80)
		_, err = db.Exec(
			`INSERT INTO games (id, white, black, result, event, played_at, moves) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i+1,
			players[i%len(players)],
			players[(i+1)%len(players)],
			"*",
			fmt.Sprintf("Casual %d", i/5+1),
			base.Add(time.Duration(i)*time.Hour),
			strings.Join(line.Moves, " "),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
