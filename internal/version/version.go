package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version, set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/sitepipe/internal/version.Version=v0.3.0".
var Version = "dev"

// Build metadata, also set via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version. When the commit was
// not injected it falls back to the VCS revision recorded by the toolchain.
func String() string {
	commit := GitCommit
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	return fmt.Sprintf("sitepipe %s (commit %s, built %s)", Version, commit, BuildTime)
}
