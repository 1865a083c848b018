package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func withVars(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	pv, pc, pb := Version, Commit, BuildTime
	Version, Commit, BuildTime = version, commit, buildTime
	t.Cleanup(func() { Version, Commit, BuildTime = pv, pc, pb })
}

func TestResolve(t *testing.T) {
	vcs := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/yndnr/memscope-go", Version: "v0.2.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1a2b3c4d5e6f7a8b9c0d"},
			{Key: "vcs.time", Value: "2026-03-01T09:30:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name    string
		vars    [3]string
		bi      *debug.BuildInfo
		want    Info
		wantStr string
	}{
		{
			name: "no build info",
			want: Info{Version: "dev", Commit: unknown, BuildTime: unknown},
		},
		{
			name:    "from vcs",
			bi:      vcs,
			want:    Info{Version: "v0.2.1", Commit: "1a2b3c4d5e6f7a8b9c0d", Modified: true, BuildTime: "2026-03-01T09:30:00Z"},
			wantStr: "v0.2.1 (1a2b3c4d5e6f-dirty, 2026-03-01T09:30:00Z, ",
		},
		{
			name: "ldflags win",
			vars: [3]string{"v0.3.0", "abc", "2026-04-01"},
			bi:   vcs,
			want: Info{Version: "v0.3.0", Commit: "abc", Modified: true, BuildTime: "2026-04-01"},
		},
		{
			name: "devel module",
			bi:   &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: Info{Version: "dev", Commit: unknown, BuildTime: unknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVars(t, tt.vars[0], tt.vars[1], tt.vars[2])
			got := resolve(tt.bi)

			tt.want.GoVersion = runtime.Version()
			tt.want.Platform = runtime.GOOS + "/" + runtime.GOARCH
			if got != tt.want {
				t.Errorf("resolve() = %+v, want %+v", got, tt.want)
			}
			if tt.wantStr != "" && !strings.HasPrefix(got.String(), tt.wantStr) {
				t.Errorf("String() = %q, want prefix %q", got.String(), tt.wantStr)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() left fields empty: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if String() != info.String() {
		t.Errorf("String() = %q, want %q", String(), info.String())
	}
}
