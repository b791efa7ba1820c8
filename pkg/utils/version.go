// Package utils holds build-time metadata injected via -ldflags.
package utils

var (
	// Version is the release tag, set at build time.
	Version = "dev"
	// Sha is the git commit the binary was built from, set at build time.
	Sha = "unknown"
	// Buildtime is the build timestamp, set at build time.
	Buildtime = "unknown"
)
