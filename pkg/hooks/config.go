// Package hooks runs user commands around board exports.
// Hooks are configured in hooks.yaml (in the boardsync config directory or
// a project's .boardsync directory) and run before and after an SVG, PNG or
// markdown export is written.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HookPhase represents when a hook runs
type HookPhase string

const (
	// PreExport runs before the file is written. Failure cancels the export.
	PreExport HookPhase = "pre-export"
	// PostExport runs after the file is written. Failure is reported but the file stays.
	PostExport HookPhase = "post-export"
)

// Hook defines a single hook configuration
type Hook struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"` // Run with sh -c
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	OnError string            `yaml:"on_error,omitempty" json:"on_error,omitempty"` // "fail" or "continue"
}

// Config holds all hook configurations
type Config struct {
	Hooks HooksByPhase `yaml:"hooks" json:"hooks"`
}

// HooksByPhase organizes hooks by their execution phase
type HooksByPhase struct {
	PreExport  []Hook `yaml:"pre-export,omitempty" json:"pre-export,omitempty"`
	PostExport []Hook `yaml:"post-export,omitempty" json:"post-export,omitempty"`
}

// ExportContext describes the export to the hook through environment
// variables.
type ExportContext struct {
	ExportPath   string    // BOARDSYNC_EXPORT_PATH
	ExportFormat string    // BOARDSYNC_EXPORT_FORMAT: svg, png or markdown
	FEN          string    // BOARDSYNC_FEN
	Ply          int       // BOARDSYNC_PLY (-1 is the start position)
	Timestamp    time.Time // BOARDSYNC_TIMESTAMP (RFC3339)
}

// ToEnv converts export context to environment variables
func (c ExportContext) ToEnv() []string {
	return []string{
		"BOARDSYNC_EXPORT_PATH=" + c.ExportPath,
		"BOARDSYNC_EXPORT_FORMAT=" + c.ExportFormat,
		"BOARDSYNC_FEN=" + c.FEN,
		"BOARDSYNC_PLY=" + strconv.Itoa(c.Ply),
		"BOARDSYNC_TIMESTAMP=" + c.Timestamp.Format(time.RFC3339),
	}
}

// FormatOf names the export format for a path.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "svg"
	}
}

// DefaultTimeout is the default hook execution timeout
const DefaultTimeout = 30 * time.Second

// FileName is the hooks file looked up in the hook directory.
const FileName = "hooks.yaml"

// Loader loads hook configuration from <dir>/hooks.yaml
type Loader struct {
	dir      string
	config   *Config
	warnings []string
}

// LoaderOption configures the loader
type LoaderOption func(*Loader)

// WithDir sets the directory holding hooks.yaml (default: ./.boardsync)
func WithDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
	}
}

// NewLoader creates a new hook loader with options
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}

	for _, opt := range opts {
		opt(l)
	}

	if l.dir == "" {
		wd, _ := os.Getwd()
		l.dir = filepath.Join(wd, ".boardsync")
	}

	return l
}

// Path returns the hooks file location.
func (l *Loader) Path() string {
	return filepath.Join(l.dir, FileName)
}

// Load reads the hooks file. A missing file means no hooks.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			l.config = &Config{}
			return nil
		}
		return fmt.Errorf("reading hooks config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing %s: %w", l.Path(), err)
	}

	l.normalizeConfig(&config)

	l.config = &config
	return nil
}

func (l *Loader) normalizeConfig(config *Config) {
	config.Hooks.PreExport, l.warnings = normalizeHooks(config.Hooks.PreExport, PreExport, l.warnings)
	config.Hooks.PostExport, l.warnings = normalizeHooks(config.Hooks.PostExport, PostExport, l.warnings)
}

// normalizeHooks applies defaults, drops empty commands, and accumulates warnings.
func normalizeHooks(hooks []Hook, phase HookPhase, warnings []string) ([]Hook, []string) {
	var out []Hook
	for i := range hooks {
		hook := hooks[i]
		if strings.TrimSpace(hook.Command) == "" {
			warnings = append(warnings, fmt.Sprintf("%s hook %d has empty command; skipping", phase, i+1))
			continue
		}
		if hook.Timeout == 0 {
			hook.Timeout = DefaultTimeout
		}
		switch hook.OnError {
		case "fail", "continue":
		case "":
			if phase == PreExport {
				hook.OnError = "fail"
			} else {
				hook.OnError = "continue"
			}
		default:
			warnings = append(warnings, fmt.Sprintf("%s hook %d: unknown on_error %q, using fail", phase, i+1, hook.OnError))
			hook.OnError = "fail"
		}
		if hook.Name == "" {
			hook.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		out = append(out, hook)
	}
	return out, warnings
}

// Config returns the loaded configuration (or empty if not loaded)
func (l *Loader) Config() *Config {
	if l.config == nil {
		return &Config{}
	}
	return l.config
}

// HasHooks returns true if any hooks are configured
func (l *Loader) HasHooks() bool {
	if l.config == nil {
		return false
	}
	return len(l.config.Hooks.PreExport) > 0 || len(l.config.Hooks.PostExport) > 0
}

// GetHooks returns hooks for a specific phase
func (l *Loader) GetHooks(phase HookPhase) []Hook {
	if l.config == nil {
		return nil
	}
	switch phase {
	case PreExport:
		return l.config.Hooks.PreExport
	case PostExport:
		return l.config.Hooks.PostExport
	default:
		return nil
	}
}

// Warnings returns any warnings from loading
func (l *Loader) Warnings() []string {
	return l.warnings
}

// UnmarshalYAML accepts timeouts as durations ("5s") or bare seconds ("30").
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	type hookDTO struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout,omitempty"`
		Env     map[string]string `yaml:"env,omitempty"`
		OnError string            `yaml:"on_error,omitempty"`
	}

	var dto hookDTO
	if err := node.Decode(&dto); err != nil {
		return err
	}

	h.Name = dto.Name
	h.Command = dto.Command
	h.Env = dto.Env
	h.OnError = dto.OnError

	if dto.Timeout != "" {
		d, err := time.ParseDuration(dto.Timeout)
		if err == nil {
			h.Timeout = d
		} else {
			seconds, scanErr := strconv.ParseFloat(dto.Timeout, 64)
			if scanErr != nil {
				return fmt.Errorf("invalid timeout %q: %w", dto.Timeout, err)
			}
			h.Timeout = time.Duration(seconds * float64(time.Second))
		}
	}

	return nil
}
