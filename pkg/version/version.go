// Package version exposes the build-stamped version of vaultrank.
package version

import (
	"fmt"
	"runtime"
)

// Overridden at release time via
// -ldflags "-X github.com/vaultrank/vaultrank/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// GoVersion is the toolchain that built the binary.
var GoVersion = runtime.Version()

// BuildInfo is the JSON shape of `vaultrank version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String renders the one-line human form.
func String() string {
	return fmt.Sprintf("vaultrank %s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}

// Short returns the bare version.
func Short() string { return Version }

// GetInfo collects the full build information.
func GetInfo() BuildInfo {
	info := BuildInfo{GoVersion: GoVersion, OS: runtime.GOOS, Arch: runtime.GOARCH}
	info.Version, info.Commit, info.Date = Version, Commit, Date
	return info
}
