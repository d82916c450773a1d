// Package version holds build metadata for the simforge binary. It imports
// nothing so any package can depend on it.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/ariel-frischer/simforge/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// IsDevBuild reports whether this binary was built without release ldflags.
func IsDevBuild() bool {
	return Version == "dev"
}

// Info is the build metadata shown by `simforge version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the running binary's build metadata.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// ShortCommit returns the first seven characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}
