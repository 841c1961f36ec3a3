package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
	// FilePath is the log file. Empty logs to stderr only.
	FilePath string `yaml:"file" json:"file"`
	// MaxSizeMB is the size that triggers rotation.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
	// MaxFiles is how many rotated files are kept.
	MaxFiles int `yaml:"max_files" json:"max_files"`
	// WriteToStderr mirrors file output to stderr.
	WriteToStderr bool `yaml:"stderr" json:"stderr"`
}

// DefaultConfig logs at info to ~/.ragsearch/logs/server.log and stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup builds a JSON logger from cfg. The returned cleanup closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var (
		out     io.Writer = os.Stderr
		cleanup           = func() {}
	)

	if cfg.FilePath != "" {
		maxSize, maxFiles := cfg.MaxSizeMB, cfg.MaxFiles
		if maxSize <= 0 {
			maxSize = 10
		}
		if maxFiles <= 0 {
			maxFiles = 5
		}
		writer, err := NewRotatingWriter(cfg.FilePath, maxSize, maxFiles)
		if err != nil {
			return nil, nil, err
		}
		out = writer
		if cfg.WriteToStderr {
			out = io.MultiWriter(writer, os.Stderr)
		}
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(handler), cleanup, nil
}

// SetupDefault installs a logger built from cfg as the slog default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// SetupServe installs file-only logging for the MCP stdio server, whose stdout
// and stderr must carry nothing but protocol traffic.
func SetupServe(cfg Config) (func(), error) {
	cfg.WriteToStderr = false
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultLogPath()
	}
	cleanup, err := SetupDefault(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("serve_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return cleanup, nil
}

// ParseLevel converts a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
