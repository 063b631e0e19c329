// Package version carries build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a one-line summary for the version command.
func String() string {
	return fmt.Sprintf("cloudmesh %s (commit %s, built %s, %s %s/%s)",
		Version, GitSHA, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
