package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrGameNotFound is returned by LoadGame for an unknown id.
var ErrGameNotFound = errors.New("game not found")

// HistorySchema is the layout HistoryReader expects. It is exported so tools
// (and tests) can create compatible databases.
const HistorySchema = `
CREATE TABLE IF NOT EXISTS games (
	id         INTEGER PRIMARY KEY,
	white      TEXT NOT NULL DEFAULT '',
	black      TEXT NOT NULL DEFAULT '',
	result     TEXT NOT NULL DEFAULT '*',
	event      TEXT,
	played_at  TIMESTAMP,
	start_fen  TEXT,
	moves      TEXT,
	pgn        TEXT
);`

// GameSummary is one row of the games list.
type GameSummary struct {
	ID       int64     `json:"id"`
	White    string    `json:"white"`
	Black    string    `json:"black"`
	Result   string    `json:"result"`
	Event    string    `json:"event,omitempty"`
	PlayedAt time.Time `json:"played_at,omitempty"`
	Plies    int       `json:"plies"`
}

// Title is a one-line label for pickers.
func (g GameSummary) Title() string {
	t := fmt.Sprintf("%s vs %s (%s)", orDash(g.White), orDash(g.Black), g.Result)
	if !g.PlayedAt.IsZero() {
		t += " " + g.PlayedAt.Format("2006-01-02")
	}
	return t
}

func orDash(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// HistoryReader provides read-only access to a game history database.
type HistoryReader struct {
	db   *sql.DB
	path string
}

// NewHistoryReader opens the database at path read-only.
func NewHistoryReader(path string) (*HistoryReader, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = MEMORY",
	} {
		// Best effort; a read-only handle may reject some pragmas.
		_, _ = db.Exec(pragma)
	}
	return &HistoryReader{db: db, path: path}, nil
}

// Close closes the database connection.
func (r *HistoryReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the database path.
func (r *HistoryReader) Path() string {
	return r.path
}

// CountGames returns the number of stored games.
func (r *HistoryReader) CountGames(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games: %w", err)
	}
	return n, nil
}

// ListGames returns games, most recent first.
func (r *HistoryReader) ListGames(ctx context.Context) ([]GameSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, white, black, result, event, played_at, moves
		FROM games
		ORDER BY played_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		var event, moves sql.NullString
		var playedAt sql.NullTime
		if err := rows.Scan(&g.ID, &g.White, &g.Black, &g.Result, &event, &playedAt, &moves); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		if event.Valid {
			g.Event = event.String
		}
		if playedAt.Valid {
			g.PlayedAt = playedAt.Time
		}
		if moves.Valid {
			g.Plies = len(strings.Fields(moves.String))
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// LoadGame builds a position store for a stored game. A row with PGN text is
// parsed as PGN; otherwise its space-separated UCI moves are replayed from
// start_fen.
func (r *HistoryReader) LoadGame(ctx context.Context, id int64) (*GameStore, error) {
	var white, black, result string
	var startFEN, moves, pgn sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT white, black, result, start_fen, moves, pgn
		FROM games WHERE id = ?`, id).Scan(&white, &black, &result, &startFEN, &moves, &pgn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %d: %w", id, err)
	}

	var store *GameStore
	if pgn.Valid && strings.TrimSpace(pgn.String) != "" {
		store, err = LoadPGN(strings.NewReader(pgn.String))
	} else {
		store, err = LoadUCI(startFEN.String, strings.Fields(moves.String))
	}
	if err != nil {
		return nil, fmt.Errorf("load game %d: %w", id, err)
	}

	store.mu.Lock()
	setIfEmpty(store.tags, "White", white)
	setIfEmpty(store.tags, "Black", black)
	setIfEmpty(store.tags, "Result", result)
	store.mu.Unlock()
	return store, nil
}

func setIfEmpty(m map[string]string, k, v string) {
	if v != "" && m[k] == "" {
		m[k] = v
	}
}
