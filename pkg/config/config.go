// Package config handles loading and saving boardsync configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/boardsync/config.yaml
//   - State:   ~/.local/state/boardsync/ (last opened game, exports)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig describes the UCI engine used for analysis.
type EngineConfig struct {
	Path        string   `yaml:"path,omitempty"` // Executable; empty disables analysis
	Args        []string `yaml:"args,omitempty"`
	MultiPV     int      `yaml:"multipv,omitempty"`
	Threads     int      `yaml:"threads,omitempty"`
	HashMB      int      `yaml:"hash_mb,omitempty"`
	Depth       int      `yaml:"depth,omitempty"`
	ThreatDepth int      `yaml:"threat_depth,omitempty"`
}

// AnalysisConfig controls when the engine is synced.
type AnalysisConfig struct {
	DebounceMS   int   `yaml:"debounce_ms,omitempty"`
	StartRunning bool  `yaml:"start_running,omitempty"`
	Threats      *bool `yaml:"threats,omitempty"`
	GhostPlies   int   `yaml:"ghost_plies,omitempty"`
}

// UIConfig holds board display preferences.
type UIConfig struct {
	Flipped        bool  `yaml:"flipped,omitempty"`
	ShowThreat     *bool `yaml:"show_threat,omitempty"`
	ShowSuggestion *bool `yaml:"show_suggestion,omitempty"`
	SquareWidth    int   `yaml:"square_width,omitempty"` // Terminal cells per square (2-6)
}

// HistoryConfig points at recorded games.
type HistoryConfig struct {
	DBPath  string `yaml:"db_path,omitempty"`
	PGNPath string `yaml:"pgn_path,omitempty"`
	Dir     string `yaml:"dir,omitempty"` // Scanned for .pgn and .db files
}

// Config is the top-level configuration for boardsync.
type Config struct {
	Engine   EngineConfig   `yaml:"engine,omitempty"`
	Analysis AnalysisConfig `yaml:"analysis,omitempty"`
	UI       UIConfig       `yaml:"ui,omitempty"`
	History  HistoryConfig  `yaml:"history,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MultiPV:     3,
			Threads:     1,
			HashMB:      64,
			Depth:       20,
			ThreatDepth: 12,
		},
		Analysis: AnalysisConfig{
			DebounceMS: 200,
			GhostPlies: 4,
		},
		UI: UIConfig{
			SquareWidth: 4,
		},
	}
}

// Debounce returns the engine sync quiet period.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Analysis.DebounceMS) * time.Millisecond
}

// ThreatsEnabled reports whether the threat search runs. Default true.
func (c Config) ThreatsEnabled() bool {
	return c.Analysis.Threats == nil || *c.Analysis.Threats
}

// ShowThreat reports whether the threat arrow is drawn. Default true.
func (c Config) ShowThreat() bool {
	return c.UI.ShowThreat == nil || *c.UI.ShowThreat
}

// ShowSuggestion reports whether the suggestion arrow is drawn. Default true.
func (c Config) ShowSuggestion() bool {
	return c.UI.ShowSuggestion == nil || *c.UI.ShowSuggestion
}

// ConfigDir returns the XDG config directory for boardsync.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "boardsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "boardsync")
}

// StateDir returns the XDG state directory for boardsync.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "boardsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "boardsync")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		err := cfg.applyEnv()
		return cfg, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path and applies environment
// overrides. Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.Engine.Path = expandHome(cfg.Engine.Path)
	cfg.History.DBPath = expandHome(cfg.History.DBPath)
	cfg.History.PGNPath = expandHome(cfg.History.PGNPath)
	cfg.History.Dir = expandHome(cfg.History.Dir)

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv applies BOARDSYNC_DEBOUNCE_MS and BOARDSYNC_ENGINE.
func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("BOARDSYNC_DEBOUNCE_MS")); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BOARDSYNC_DEBOUNCE_MS: %w", err)
		}
		c.Analysis.DebounceMS = ms
	}
	if v := strings.TrimSpace(os.Getenv("BOARDSYNC_ENGINE")); v != "" {
		c.Engine.Path = expandHome(v)
	}
	return nil
}

// Validate rejects values the engine or board cannot use.
func (c Config) Validate() error {
	if c.Analysis.DebounceMS < 0 {
		return fmt.Errorf("analysis.debounce_ms must not be negative, got %d", c.Analysis.DebounceMS)
	}
	if c.Engine.MultiPV < 0 || c.Engine.MultiPV > 10 {
		return fmt.Errorf("engine.multipv must be between 1 and 10, got %d", c.Engine.MultiPV)
	}
	if w := c.UI.SquareWidth; w != 0 && (w < 2 || w > 6) {
		return fmt.Errorf("ui.square_width must be between 2 and 6, got %d", w)
	}
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
