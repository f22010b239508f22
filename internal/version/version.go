// Package version exposes build metadata set via ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X .../internal/version.Version=0.2.0 ..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Map returns build metadata for health endpoints.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
