package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version, overridden at build time:
//
//	go build -ldflags "-X github.com/hrygo/recruitsense/internal/version.Version=0.3.0"
var Version = "0.1.0"

// GitCommit is the commit hash stamped at build time.
var GitCommit = "unknown"

// GetCurrentVersion returns the version reported by the server. Dev builds
// carry a -dev suffix.
func GetCurrentVersion(mode string) string {
	if mode == "dev" {
		return Version + "-dev"
	}
	return Version
}

// Canonical normalizes v ("0.5", "v0.5.1") to MAJOR.MINOR.PATCH without the
// leading v. It returns "" when v is not a semantic version.
func Canonical(v string) string {
	return strings.TrimPrefix(semver.Canonical("v"+strings.TrimPrefix(strings.TrimSpace(v), "v")), "v")
}

// AtLeast reports whether version >= target. Invalid versions never qualify.
func AtLeast(version, target string) bool {
	v, t := Canonical(version), Canonical(target)
	if v == "" || t == "" {
		return false
	}
	return semver.Compare("v"+v, "v"+t) >= 0
}

// String renders the version with its commit for log lines.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}
