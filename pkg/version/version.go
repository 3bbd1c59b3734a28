// Package version provides build and version information for vaultmcp.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of vaultmcp.
// Set via ldflags at build time, or defaults to dev.
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary (set at runtime).
	GoVersion = runtime.Version()
)

// Info holds structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// GetInfo returns structured version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
	}
}

// String returns a human-readable version string.
func String() string {
	return fmt.Sprintf("vaultmcp %s (commit %s, built %s, %s)", Version, Commit, Date, GoVersion)
}

// Short returns just the version number.
func Short() string {
	return Version
}
