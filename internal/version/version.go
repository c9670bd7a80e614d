// Package version carries build information stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/motion.report/internal/version.Version=1.2.0"
package version

import "fmt"

// Overridden at link time; the defaults identify a local development build.
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build information for -version output.
func String() string {
	return fmt.Sprintf("motion %s (git %s, built %s)", Version, GitSHA, BuildTime)
}
