package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/vanderheijden86/boardsync/internal/datasource"
	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/config"
	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/enginesync"
	"github.com/vanderheijden86/boardsync/pkg/export"
	"github.com/vanderheijden86/boardsync/pkg/hooks"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/uciengine"
	"github.com/vanderheijden86/boardsync/pkg/ui"
	"github.com/vanderheijden86/boardsync/pkg/version"
	"github.com/vanderheijden86/boardsync/pkg/watcher"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath string
	enginePath string
	gameID     int64
	fen        string
	moves      string
	ply        int
	review     bool
	flip       bool
	noThreat   bool
	debounce   time.Duration
	wait       time.Duration

	jsonOut    bool
	list       bool
	exportPath string
	reportPath string
	noHooks    bool

	debug       bool
	metrics     bool
	cpuProfile  string
	showVersion bool

	source string
}

const plyLast = -2

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("boardsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/boardsync/config.yaml)")
	fs.StringVar(&o.enginePath, "engine", "", "UCI engine executable (overrides config)")
	fs.Int64Var(&o.gameID, "game", 0, "Game id to open from a history database (0 = pick or most recent)")
	fs.StringVar(&o.fen, "fen", "", "Start a sandbox from this FEN")
	fs.StringVar(&o.moves, "moves", "", "Space-separated UCI moves to play from the start position")
	fs.IntVar(&o.ply, "ply", plyLast, "Ply to show on open (-1 = start position, default = last)")
	fs.BoolVar(&o.review, "review", false, "Open read-only; moves are rejected")
	fs.BoolVar(&o.flip, "flip", false, "Show the board from Black's side")
	fs.BoolVar(&o.noThreat, "no-threat", false, "Disable the threat search")
	fs.DurationVar(&o.debounce, "debounce", 0, "Engine sync quiet period (overrides config)")
	fs.DurationVar(&o.wait, "wait", 0, "With --json: wait this long for engine analysis before printing")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the board view as JSON and exit")
	fs.BoolVar(&o.list, "list", false, "List games in the history database as JSON and exit")
	fs.StringVar(&o.exportPath, "export", "", "Write the board to an .svg or .png file and exit")
	fs.StringVar(&o.reportPath, "report", "", "Write a markdown game report and exit")
	fs.BoolVar(&o.noHooks, "no-hooks", false, "Skip the export hooks in hooks.yaml")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging to stderr")
	fs.BoolVar(&o.metrics, "metrics", false, "Print timing metrics to stderr on exit")
	fs.StringVar(&o.cpuProfile, "cpu-profile", "", "Write CPU profile to file")
	fs.BoolVar(&o.showVersion, "version", false, "Show version")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: boardsync [options] [game.pgn | history.db]")
		fmt.Fprintln(stderr, "\nA terminal chess board synced with a UCI engine.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 1 {
		return o, fmt.Errorf("expected at most one game source, got %d", fs.NArg())
	}
	o.source = fs.Arg(0)
	if o.fen != "" && o.source != "" {
		return o, errors.New("--fen and a game source are mutually exclusive")
	}
	if o.ply < plyLast {
		return o, fmt.Errorf("invalid --ply %d", o.ply)
	}
	return o, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "boardsync %s\n", version.String())
		return 0
	}

	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			fmt.Fprintf(stderr, "Could not create CPU profile: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(stderr, "Could not start CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	if opts.debug {
		debug.SetEnabled(true)
		debug.SetEventLevel(debug.LevelDebug)
	}
	if opts.metrics {
		metrics.SetEnabled(true)
		defer func() { _ = writeMetrics(stderr) }()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := resolveSource(opts, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	debug.Event(debug.LevelInfo, "main", "source", map[string]any{"source": src.String()})

	if opts.list {
		if err := listGames(ctx, stdout, src); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	interactive := !opts.jsonOut && opts.exportPath == "" && opts.reportPath == "" && isTerminal(stdout)

	gameID := opts.gameID
	if src.Type == datasource.SourceTypeSQLite && gameID == 0 && interactive {
		gameID, err = pickGame(ctx, src)
		if err != nil {
			if errors.Is(err, ui.ErrPickerAborted) {
				return 0
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	store, eng, err := openAll(ctx, opts, cfg, src, gameID, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if eng != nil {
		defer eng.Close()
	}

	ctrl := analyzer.New(store, engineOrNil(eng), controllerOptions(opts, cfg))
	defer ctrl.Close()
	if err := ctrl.Load(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.ply != plyLast {
		ctrl.GoTo(opts.ply)
		if err := waitSettled(ctx, ctrl); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if !interactive {
		return runBatch(ctx, opts, src, ctrl, stdout, stderr)
	}

	tuiOpts := ui.Options{
		Title:       titleFor(src, store),
		SquareWidth: cfg.UI.SquareWidth,
		ExportDir:   exportDir(),
		HooksDir:    config.ConfigDir(),
		NoHooks:     opts.noHooks,
	}
	if src.Type != datasource.SourceTypeSandbox && opts.fen == "" && opts.moves == "" {
		w, err := watcher.NewWatcher(src.Path,
			watcher.WithOnError(func(err error) { debug.Log("watcher: %v", err) }),
		)
		if err == nil && w.Start(ctx) == nil {
			defer w.Stop()
			tuiOpts.Watcher = w
			tuiOpts.Reload = func() error {
				next, err := datasource.Open(ctx, src, gameID)
				if err != nil {
					return err
				}
				store.Replace(next)
				return nil
			}
		}
	}

	if err := newTUIRunner(ctrl).Run(ui.NewModel(ctrl, tuiOpts)); err != nil {
		fmt.Fprintf(stderr, "Error running boardsync: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(opts cliOptions) (config.Config, error) {
	var cfg config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFrom(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}
	if opts.enginePath != "" {
		cfg.Engine.Path = opts.enginePath
	}
	if opts.debounce > 0 {
		cfg.Analysis.DebounceMS = int(opts.debounce / time.Millisecond)
	}
	if opts.flip {
		cfg.UI.Flipped = true
	}
	if opts.noThreat {
		off := false
		cfg.Analysis.Threats = &off
	}
	return cfg, cfg.Validate()
}

func controllerOptions(opts cliOptions, cfg config.Config) analyzer.Options {
	o := analyzer.DefaultOptions()
	if d := cfg.Debounce(); d > 0 {
		o.Debounce = d
	}
	o.Threats = cfg.ThreatsEnabled()
	o.ShowThreat = cfg.ShowThreat()
	o.ShowSuggestion = cfg.ShowSuggestion()
	o.StartEngine = cfg.Analysis.StartRunning || (opts.jsonOut && opts.wait > 0)
	if cfg.Analysis.GhostPlies > 0 {
		o.GhostPlies = cfg.Analysis.GhostPlies
	}
	o.Flipped = cfg.UI.Flipped
	o.FetchTimeout = 10 * time.Second
	if opts.review {
		o.Mode = analyzer.Review
	}
	return o
}

// openAll loads the game and starts the engine concurrently. A failing
// engine is reported and analysis is disabled; a failing game is fatal.
func openAll(ctx context.Context, opts cliOptions, cfg config.Config, src datasource.DataSource, gameID int64, stderr io.Writer) (*datasource.GameStore, *uciengine.Engine, error) {
	var store *datasource.GameStore
	var eng *uciengine.Engine

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		store, err = openStore(gctx, opts, src, gameID)
		return err
	})
	if cfg.Engine.Path != "" {
		g.Go(func() error {
			e, err := uciengine.New(uciengine.Options{
				Path:        cfg.Engine.Path,
				Args:        cfg.Engine.Args,
				MultiPV:     cfg.Engine.MultiPV,
				Threads:     cfg.Engine.Threads,
				HashMB:      cfg.Engine.HashMB,
				Depth:       cfg.Engine.Depth,
				ThreatDepth: cfg.Engine.ThreatDepth,
			})
			if err != nil {
				fmt.Fprintf(stderr, "Warning: analysis disabled: %v\n", err)
				debug.Event(debug.LevelWarn, "main", "engine_failed", map[string]any{"error": err.Error()})
				return nil
			}
			eng = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if eng != nil {
			eng.Close()
		}
		return nil, nil, err
	}
	return store, eng, nil
}

func openStore(ctx context.Context, opts cliOptions, src datasource.DataSource, gameID int64) (*datasource.GameStore, error) {
	moves := strings.Fields(opts.moves)
	switch {
	case opts.fen != "" && len(moves) > 0:
		return datasource.LoadUCI(opts.fen, moves)
	case opts.fen != "":
		return datasource.NewGameStoreFromFEN(opts.fen)
	case len(moves) > 0 && src.Type == datasource.SourceTypeSandbox:
		return datasource.LoadUCI(datasource.StartFEN, moves)
	}
	store, err := datasource.Open(ctx, src, gameID)
	if err != nil {
		return nil, err
	}
	if len(moves) > 0 {
		// Extra moves continue the loaded line.
		for _, tok := range moves {
			req, ok := moveRequest(tok)
			if !ok {
				return nil, fmt.Errorf("invalid move %q", tok)
			}
			if _, err := store.ApplyMove(ctx, store.Len()-1, req); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// engineOrNil keeps a nil *Engine from becoming a non-nil interface.
func engineOrNil(e *uciengine.Engine) enginesync.Engine {
	if e == nil {
		return nil
	}
	return e
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func exportDir() string {
	if dir := config.StateDir(); dir != "" {
		return filepath.Join(dir, "exports")
	}
	return "."
}

func titleFor(src datasource.DataSource, store *datasource.GameStore) string {
	tags := store.Tags()
	if w, b := tags["White"], tags["Black"]; w != "" || b != "" {
		return fmt.Sprintf("%s vs %s", orQuestion(w), orQuestion(b))
	}
	if src.Path != "" {
		return filepath.Base(src.Path)
	}
	return "sandbox"
}

func orQuestion(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// runBatch handles the non-interactive outputs.
func runBatch(ctx context.Context, opts cliOptions, src datasource.DataSource, ctrl *analyzer.Controller, stdout, stderr io.Writer) int {
	if opts.jsonOut && opts.wait > 0 {
		waitForAnalysis(ctx, ctrl, opts.wait)
	}
	v := ctrl.View()

	if opts.exportPath != "" {
		title := ""
		if src.Path != "" {
			title = filepath.Base(src.Path)
		}
		err := exportWithHooks(opts, v, opts.exportPath, stderr, func() error {
			return export.SaveBoardSnapshot(ui.SnapshotOptions(v, opts.exportPath, title))
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if opts.reportPath != "" {
		err := exportWithHooks(opts, v, opts.reportPath, stderr, func() error {
			return export.SaveMarkdown(opts.reportPath, ui.GameReportFor(v))
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if opts.jsonOut || (opts.exportPath == "" && opts.reportPath == "") {
		if err := writeRobotView(stdout, src, v); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

// exportWithHooks runs write between the configured export hooks.
func exportWithHooks(opts cliOptions, v analyzer.View, path string, stderr io.Writer, write func() error) error {
	hctx := hooks.ExportContext{
		ExportPath:   path,
		ExportFormat: hooks.FormatOf(path),
		Ply:          v.Ply,
		Timestamp:    time.Now(),
	}
	if v.Snapshot != nil {
		hctx.FEN = v.Snapshot.FEN
	}
	exec, err := hooks.Around(config.ConfigDir(), hctx, opts.noHooks, write)
	if exec != nil {
		fmt.Fprintln(stderr, exec.Summary())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "Saved %s\n", path)
	return nil
}

// waitSettled blocks until the displayed ply catches up with the
// navigation target.
func waitSettled(ctx context.Context, ctrl *analyzer.Controller) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for {
		v := ctrl.View()
		if !v.Loading {
			if v.LastError != "" {
				return errors.New(v.LastError)
			}
			return nil
		}
		select {
		case _, ok := <-ctrl.Updates():
			if !ok {
				return analyzer.ErrClosed
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitForAnalysis waits up to d for the engine's first PV on the
// displayed position.
func waitForAnalysis(ctx context.Context, ctrl *analyzer.Controller, d time.Duration) {
	if !ctrl.View().HasEngine {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	for {
		if ctrl.View().PV != nil {
			return
		}
		select {
		case _, ok := <-ctrl.Updates():
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
