package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.ragsearch/logs, or a temp directory without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragsearch", "logs")
	}
	return filepath.Join(home, ".ragsearch", "logs")
}

// DefaultLogPath returns the server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
