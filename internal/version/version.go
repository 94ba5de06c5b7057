// Package version contains build version information.
package version

import "fmt"

// Set at build time via -ldflags "-X".
var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is the JSON shape of /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Info returns the build metadata of the running binary.
func Info() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
	}
}

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("aridos %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
