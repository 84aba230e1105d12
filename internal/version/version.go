package version

import (
	"regexp"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/fmueller/voxapi/internal/version.Version=...".
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	// Release is set when the module version came from a tagged build.
	Release  bool
	Modified bool
}

// String is the version with a short commit suffix for untagged builds.
func (i Info) String() string {
	v := i.Version
	if !i.Release && i.Commit != "" {
		v += "-" + shortCommit(i.Commit)
	}
	if i.Modified {
		v += "-dirty"
	}
	return v
}

func Resolve() string {
	return Get().String()
}

func Get() Info {
	return resolve(Version, Commit, Date, debug.ReadBuildInfo)
}

var pseudoVersion = regexp.MustCompile(`\d{14}-[0-9a-f]{12}`)

func resolve(base, commit, date string, readBuildInfo func() (*debug.BuildInfo, bool)) Info {
	if base == "" {
		base = "0.0.0"
	}
	info := Info{Version: base, Commit: commit, Date: date, GoVersion: runtime.Version()}

	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return info
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" && !pseudoVersion.MatchString(v) {
		info.Version = strings.TrimPrefix(strings.TrimSuffix(v, "+dirty"), "v")
		info.Release = true
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
