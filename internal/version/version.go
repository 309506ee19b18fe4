// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"

	"github.com/otiai10/gosseract/v2"
)

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// String formats the build information for -version output, including the
// linked Tesseract library.
func String(program string) string {
	return fmt.Sprintf("%s v%s\nBuilt: %s\nCommit: %s\nGo: %s\nTesseract: %s",
		program, Version, BuildTime, GitCommit, runtime.Version(), gosseract.Version())
}
