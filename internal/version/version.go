// Package version reports what build of chatrelay is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden with -ldflags "-X github.com/soyeahso/chatrelay/internal/version.Version=v1.0.0"
// (likewise Commit and Date). Unset values fall back to the module build
// info stamped by the go tool.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
	Go      string
}

var readBuildInfo = debug.ReadBuildInfo

// Current merges the ldflags values with the embedded build info.
func Current() Build {
	b := Build{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}

	bi, ok := readBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// String renders b on one line.
func (b Build) String() string {
	commit := short(b.Commit)
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("chatrelay %s (commit %s, built %s, %s %s/%s)",
		b.Version, commit, b.Date, b.Go, runtime.GOOS, runtime.GOARCH)
}

// Info is Current().String().
func Info() string {
	return Current().String()
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
