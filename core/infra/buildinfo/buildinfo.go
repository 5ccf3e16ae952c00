// Package buildinfo carries version stamps set through -ldflags.
package buildinfo

import (
	"fmt"
	"runtime/debug"

	"github.com/cordum/pkgvault/core/infra/logging"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Resolve fills unset stamps from the module build info embedded by the
// Go toolchain, so `go install` builds still report a commit.
func Resolve() {
	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return
	}
	if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" && s.Value != "" {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == "unknown" && s.Value != "" {
				Date = s.Value
			}
		}
	}
}

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", Version, Commit, Date)
}

// Log writes the build summary under the given component.
func Log(component string) {
	logging.Info(component, "build", "version", Version, "commit", Commit, "date", Date)
}
