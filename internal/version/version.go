// Package version carries build identification injected at link time.
package version

import "time"

// Set via -ldflags "-X github.com/samcharles93/lantern/internal/version.Version=...".
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve fills in a fallback version for untagged builds.
func Resolve() Info {
	v := Version
	if v == "" {
		if BuildTime != "" {
			v = BuildTime
		} else {
			v = "dev-" + time.Now().UTC().Format("20060102")
		}
	}
	return Info{Version: v, Commit: Commit, BuildTime: BuildTime}
}

// String renders "version (commit)" with the commit shortened.
func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	c := info.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	return info.Version + " (" + c + ")"
}
