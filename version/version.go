// Package version holds the build version of the conduit CLI.
package version

// Version is overridden at build time with
// -ldflags "-X conduit/version.Version=v0.16.0".
var Version = "dev"

// Tag returns the version as a release tag ("v" prefixed).
func Tag() string {
	if Version == "" || Version == "dev" {
		return Version
	}
	if Version[0] == 'v' {
		return Version
	}
	return "v" + Version
}
