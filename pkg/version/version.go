// Package version holds build information for the monorel binary.
package version

import (
	"runtime/debug"
)

const unknown = "unknown"

// Set at build time with -ldflags "-X github.com/Sumatoshi-tech/monorel/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills Commit and Date from the embedded VCS build info
// when they were not set at link time, and Version from the module version
// for binaries built with go install.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = setting.Value
			}
		}
	}
}

// String returns "version (commit: c, built: d)".
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
