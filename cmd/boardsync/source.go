package main

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/boardsync/internal/datasource"
	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/config"
	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/overlay"
	"github.com/vanderheijden86/boardsync/pkg/ui"
	"github.com/vanderheijden86/boardsync/pkg/version"
)

// resolveSource picks the game source: the positional argument, then the
// configured PGN or database, then the freshest file in the history
// directory, then an empty sandbox.
func resolveSource(opts cliOptions, cfg config.Config) (datasource.DataSource, error) {
	if opts.fen != "" {
		return datasource.Sandbox(), nil
	}
	if opts.source != "" {
		return datasource.ClassifyPath(opts.source)
	}
	for _, p := range []string{cfg.History.PGNPath, cfg.History.DBPath} {
		if p == "" {
			continue
		}
		src, err := datasource.ClassifyPath(p)
		if err != nil {
			return src, fmt.Errorf("configured history: %w", err)
		}
		return src, nil
	}
	if cfg.History.Dir != "" {
		sources, err := datasource.DiscoverSources(datasource.DiscoveryOptions{
			Dir:      cfg.History.Dir,
			Validate: true,
			Logger:   func(msg string) { debug.Log("%s", msg) },
		})
		if err != nil {
			return datasource.DataSource{}, err
		}
		if len(sources) > 0 {
			return sources[0], nil
		}
	}
	return datasource.Sandbox(), nil
}

func pickGame(ctx context.Context, src datasource.DataSource) (int64, error) {
	games, err := historyGames(ctx, src)
	if err != nil {
		return 0, err
	}
	if len(games) == 1 {
		return games[0].ID, nil
	}
	return ui.PickGame(games)
}

func historyGames(ctx context.Context, src datasource.DataSource) ([]datasource.GameSummary, error) {
	if src.Type != datasource.SourceTypeSQLite {
		return nil, fmt.Errorf("%s is not a history database", src)
	}
	r, err := datasource.NewHistoryReader(src.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ListGames(ctx)
}

type robotGameList struct {
	GeneratedAt string                   `json:"generated_at"`
	Source      string                   `json:"source"`
	Games       []datasource.GameSummary `json:"games"`
}

func listGames(ctx context.Context, w io.Writer, src datasource.DataSource) error {
	games, err := historyGames(ctx, src)
	if err != nil {
		return err
	}
	if games == nil {
		games = []datasource.GameSummary{}
	}
	return writeJSON(w, robotGameList{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Source:      src.Path,
		Games:       games,
	})
}

type robotView struct {
	GeneratedAt string        `json:"generated_at"`
	Version     string        `json:"version"`
	Source      string        `json:"source"`
	FEN         string        `json:"fen,omitempty"`
	BestMove    string        `json:"best_move,omitempty"`
	View        analyzer.View `json:"view"`
	UsageHints  []string      `json:"usage_hints,omitempty"`
}

func writeRobotView(w io.Writer, src datasource.DataSource, v analyzer.View) error {
	out := robotView{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Version:     version.Version,
		Source:      string(src.Type),
		View:        v,
	}
	if src.Path != "" {
		out.Source = src.Path
	}
	if v.Snapshot != nil {
		out.FEN = v.Snapshot.FEN
	}
	if best, ok := v.BestLine(); ok {
		out.BestMove = firstField(best.Moves)
	}
	if !v.HasEngine {
		out.UsageHints = append(out.UsageHints, "--engine /path/to/stockfish --wait 2s adds analysis")
	}
	return writeJSON(w, out)
}

func firstField(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i]
		}
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type robotMetrics struct {
	Timings  []metrics.TimingStats `json:"timings"`
	Counters map[string]int64      `json:"counters"`
}

func writeMetrics(w io.Writer) error {
	return writeJSON(w, robotMetrics{
		Timings:  metrics.AllTimingStats(),
		Counters: metrics.CounterValues(),
	})
}

// moveRequest parses a 4 or 5 character UCI token.
func moveRequest(tok string) (model.MoveRequest, bool) {
	from, to, ok := overlay.ParseToken(tok)
	if !ok {
		return model.MoveRequest{}, false
	}
	req := model.MoveRequest{From: from, To: to}
	if k, ok := overlay.PromotionOf(tok); ok {
		req.Promotion = &k
	} else if len(tok) == 5 {
		return model.MoveRequest{}, false
	}
	return req, true
}
