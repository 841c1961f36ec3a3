// Package version provides build and version information for ragsearch.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name shown in version strings.
const Name = "ragsearch"

// Build information set via ldflags:
//
//	-X github.com/Aman-CERP/ragsearch/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/ragsearch/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/ragsearch/pkg/version.Date=$(DATE)
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"

	// GoVersion is the Go version used to build the binary.
	GoVersion = runtime.Version()
)

func init() {
	if Version != "dev" {
		return
	}
	// go install records the module version and VCS stamp.
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" && len(s.Value) >= 7 {
				Commit = s.Value[:7]
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		}
	}
}

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns a formatted version string with all build info.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Version, Commit, Date, GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
