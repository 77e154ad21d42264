// Package datasource provides the position stores boardsync navigates: a
// rules-backed game store with stable piece ids, a read-only SQLite game
// history, and discovery of game sources on disk.
package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SourceType identifies where a game comes from.
type SourceType string

const (
	// SourceTypePGN is a PGN file; its first game is loaded.
	SourceTypePGN SourceType = "pgn"
	// SourceTypeSQLite is a game history database.
	SourceTypeSQLite SourceType = "sqlite"
	// SourceTypeSandbox is an empty board with no backing file.
	SourceTypeSandbox SourceType = "sandbox"
)

// Priority values for source types (higher = preferred at equal mod time).
const (
	PrioritySQLite  = 100
	PriorityPGN     = 80
	PrioritySandbox = 0
)

// DataSource describes a candidate game source.
type DataSource struct {
	Type            SourceType `json:"type"`
	Path            string     `json:"path,omitempty"`
	Priority        int        `json:"priority"`
	ModTime         time.Time  `json:"mod_time"`
	Size            int64      `json:"size"`
	Valid           bool       `json:"valid"`
	ValidationError string     `json:"validation_error,omitempty"`
	// Games is the number of games found during validation.
	Games int `json:"games"`
}

// String returns a human-readable description of the source.
func (s DataSource) String() string {
	if s.Type == SourceTypeSandbox {
		return "sandbox"
	}
	status := "valid"
	if !s.Valid {
		status = "invalid: " + s.ValidationError
	}
	return fmt.Sprintf("%s (%s, mod=%s, games=%d, %s)",
		s.Path, s.Type, s.ModTime.Format(time.RFC3339), s.Games, status)
}

// Sandbox is the source used when nothing else is given.
func Sandbox() DataSource {
	return DataSource{Type: SourceTypeSandbox, Priority: PrioritySandbox, Valid: true}
}

// DiscoveryOptions configures DiscoverSources.
type DiscoveryOptions struct {
	// Dir is searched (non-recursively) for .pgn, .db and .sqlite files.
	Dir string
	// Validate opens each source and counts its games.
	Validate bool
	// IncludeInvalid keeps sources that failed validation.
	IncludeInvalid bool
	// Logger receives discovery diagnostics.
	Logger func(msg string)
}

// ClassifyPath returns the source for a single path by extension.
func ClassifyPath(path string) (DataSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DataSource{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return DataSource{}, fmt.Errorf("stat %s: %w", path, err)
	}
	src := DataSource{Path: abs, ModTime: info.ModTime(), Size: info.Size()}
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".pgn":
		src.Type, src.Priority = SourceTypePGN, PriorityPGN
	case ".db", ".sqlite", ".sqlite3":
		src.Type, src.Priority = SourceTypeSQLite, PrioritySQLite
	default:
		return DataSource{}, fmt.Errorf("unsupported game source %s", path)
	}
	return src, nil
}

// DiscoverSources lists game sources in opts.Dir, freshest first.
func DiscoverSources(opts DiscoveryOptions) ([]DataSource, error) {
	if opts.Logger == nil {
		opts.Logger = func(string) {}
	}
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = wd
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var sources []DataSource
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src, err := ClassifyPath(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if opts.Validate {
			if err := ValidateSource(&src); err != nil {
				opts.Logger(fmt.Sprintf("validation failed for %s: %v", src.Path, err))
				if !opts.IncludeInvalid {
					continue
				}
			}
		}
		sources = append(sources, src)
	}

	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].Priority > sources[j].Priority
		}
		return sources[i].ModTime.After(sources[j].ModTime)
	})
	opts.Logger(fmt.Sprintf("discovered %d game sources in %s", len(sources), dir))
	return sources, nil
}

// ValidateSource checks that a source can be opened and sets Valid, Games
// and ValidationError.
func ValidateSource(src *DataSource) error {
	fail := func(err error) error {
		src.Valid = false
		src.ValidationError = err.Error()
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch src.Type {
	case SourceTypeSandbox:
		src.Valid = true
		return nil
	case SourceTypePGN:
		f, err := os.Open(src.Path)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		if _, err := LoadPGN(f); err != nil {
			return fail(err)
		}
		src.Games = 1
	case SourceTypeSQLite:
		r, err := NewHistoryReader(src.Path)
		if err != nil {
			return fail(err)
		}
		defer r.Close()
		n, err := r.CountGames(ctx)
		if err != nil {
			return fail(err)
		}
		src.Games = n
	default:
		return fail(fmt.Errorf("unknown source type %q", src.Type))
	}
	src.Valid = true
	src.ValidationError = ""
	return nil
}

// Open loads a game store from src. For SQLite sources gameID selects the
// game; zero selects the most recent one.
func Open(ctx context.Context, src DataSource, gameID int64) (*GameStore, error) {
	switch src.Type {
	case SourceTypeSandbox:
		return NewGameStore(), nil
	case SourceTypePGN:
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", src.Path, err)
		}
		defer f.Close()
		return LoadPGN(f)
	case SourceTypeSQLite:
		r, err := NewHistoryReader(src.Path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		if gameID == 0 {
			games, err := r.ListGames(ctx)
			if err != nil {
				return nil, err
			}
			if len(games) == 0 {
				return nil, fmt.Errorf("%w: %s has no games", ErrGameNotFound, src.Path)
			}
			gameID = games[0].ID
		}
		return r.LoadGame(ctx, gameID)
	default:
		return nil, fmt.Errorf("unknown source type: %s", src.Type)
	}
}
