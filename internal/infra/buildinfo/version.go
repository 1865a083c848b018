package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags -X. Empty values are filled from the embedded build
// information.
var (
	Version   string
	Commit    string
	BuildTime string
)

const (
	unknown      = "unknown"
	shortHashLen = 12
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var (
	once   sync.Once
	cached Info
)

// Get returns the build information of the running binary.
func Get() Info {
	once.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		cached = resolve(bi)
	})
	return cached
}

// resolve merges the ldflags variables with bi, which may be nil.
func resolve(bi *debug.BuildInfo) Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi != nil {
		if info.Version == "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.BuildTime == "" {
		info.BuildTime = unknown
	}
	return info
}

// String is the one-line form printed by --version, e.g.
// "v0.3.0 (1a2b3c4d5e6f, 2026-03-01T09:30:00Z, go1.23.2 linux/amd64)".
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > shortHashLen {
		commit = commit[:shortHashLen]
	}
	if i.Modified {
		commit += "-dirty"
	}
	return i.Version + " (" + commit + ", " + i.BuildTime + ", " + i.GoVersion + " " + i.Platform + ")"
}

// String returns Get().String().
func String() string {
	return Get().String()
}
