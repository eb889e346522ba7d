// Package version carries build metadata injected with -ldflags. Builds
// without ldflags, such as go install, fall back to the embedded module
// and VCS information.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const homepage = "https://github.com/rbright/conversa"

var readBuildInfo = debug.ReadBuildInfo

// Info is the effective build metadata.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Current merges ldflags values with the binary's embedded build info.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := readBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Date == "unknown":
			info.Date = s.Value
		}
	}
	return info
}

func String() string {
	info := Current()
	return "conversa " + info.Version + " (commit=" + info.Commit + ", date=" + info.Date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies conversa to HTTP services such as the Nominatim geocoder,
// whose usage policy requires an identifying agent.
func UserAgent() string {
	return "conversa/" + Current().Version + " (+" + homepage + ")"
}
