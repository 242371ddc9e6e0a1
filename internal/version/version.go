// Package version exposes the build identity stamped into the binary.
package version

// Populated via -ldflags at build time; the defaults identify an
// unstamped development build.
var (
	// Version is the release tag (e.g. v0.3.1).
	Version = "dev"

	// BuildTime is when the binary was produced.
	BuildTime = "unknown"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// Info renders the build identity for the version endpoint and the
// -version flag.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}
}
