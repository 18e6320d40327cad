package version

import "fmt"

// Version is the crossbuild release, set with
// -ldflags "-X git.home.luguber.info/inful/crossbuild/internal/version.Version=v0.4.0".
var Version = "unknown"

// Build metadata, set the same way as Version.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String is the text printed by --version.
func String() string {
	return fmt.Sprintf("crossbuild %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
