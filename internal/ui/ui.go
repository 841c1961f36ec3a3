// Package ui provides terminal UI components for ingest progress and status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents an ingest stage.
type Stage int

const (
	// StageReading counts the records in the input.
	StageReading Stage = iota
	// StageWriting stores documents, chunks and embeddings.
	StageWriting
	// StageIndexing rebuilds the vector indexes.
	StageIndexing
	// StageComplete indicates the ingest is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageReading:
		return "Reading"
	case StageWriting:
		return "Writing"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageReading:
		return "READ"
	case StageWriting:
		return "WRITE"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Item    string // id of the record being processed
	Message string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	Line   int // input line, 0 when not tied to one
	Err    error
	IsWarn bool
}

// CompletionStats contains final ingest statistics.
type CompletionStats struct {
	Documents  int
	Chunks     int
	Embeddings int
	Models     []string
	Duration   time.Duration
	Errors     int
	Warnings   int
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Source     string // input path shown in the header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithSource sets the input path to display in the header.
func WithSource(path string) ConfigOption {
	return func(c *Config) {
		c.Source = path
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// text renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
