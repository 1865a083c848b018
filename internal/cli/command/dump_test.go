package command

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile/dumptest"
)

func TestParseRuntime(t *testing.T) {
	tests := []struct {
		in      string
		flavor  string
		version string
		wantErr bool
	}{
		{"coreclr/8.0.4", "coreclr", "8.0.4", false},
		{"desktop/4.8", "desktop", "4.8", false},
		{"coreclr", "", "", true},
		{"/8.0", "", "", true},
		{"coreclr/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			flavor, version, err := parseRuntime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRuntime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
			if flavor != tt.flavor || version != tt.version {
				t.Errorf("parseRuntime(%q) = %q, %q", tt.in, flavor, version)
			}
		})
	}
}

func TestDumpSynth(t *testing.T) {
	for _, name := range []string{"synth.dump.json", "synth.dump.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			out := mustRun(t, "dump", "synth", "--nodes", "20", "--threads", "3", "--runtime", "coreclr/9.0.1", path)
			if !strings.Contains(out, "20 nodes, 3 threads (coreclr 9.0.1)") {
				t.Errorf("output = %q", out)
			}

			var stats []domain.TypeStat
			runJSON(t, &stats, "--dump", path, "heap", "stats")
			counts := make(map[string]uint64)
			for _, st := range stats {
				counts[st.Name] = st.Count
			}
			want := map[string]uint64{
				SynthNodeType:           20,
				SynthArrayType:          1,
				dumpfile.StringTypeName: 5 + 3,
				dumptest.ThreadType:     3,
			}
			for typ, n := range want {
				if counts[typ] != n {
					t.Errorf("count[%s] = %d, want %d", typ, counts[typ], n)
				}
			}

			var groups []domain.FinalizerGroup
			runJSON(t, &groups, "--dump", path, "runtime", "finalizers", "--by-type")
			if len(groups) != 1 || len(groups[0].Addresses) != 2 {
				t.Errorf("finalizer groups = %+v", groups)
			}

			var props []domain.ThreadProperty
			runJSON(t, &props, "--dump", path, "runtime", "threads", "--props")
			if len(props) != 3 || props[0].Name != "Main" || props[2].Name != "Worker-2" {
				t.Errorf("thread props = %+v", props)
			}
		})
	}
}

func TestDumpSynth_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.dump.json")
	tests := []struct {
		name string
		args []string
	}{
		{"no output", []string{"dump", "synth"}},
		{"no nodes", []string{"dump", "synth", "--nodes", "0", path}},
		{"no threads", []string{"dump", "synth", "--threads", "0", path}},
		{"bad runtime", []string{"dump", "synth", "--runtime", "coreclr", path}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestDumpInfo(t *testing.T) {
	fx := dumptest.Sample(t)

	var info dumpInfoView
	runJSON(t, &info, "dump", "info", fx.Path)
	if info.Format != dumpfile.FormatVersion || info.Runtimes != "coreclr 8.0.4" {
		t.Errorf("info = %+v", info)
	}
	if info.Segments != 2 || info.Threads != 2 || info.Roots != 1 || info.Handles != 1 {
		t.Errorf("info = %+v", info)
	}
	if info.PointerSize == 0 || info.HeapBytes == 0 || info.ByteOrder == "" {
		t.Errorf("info = %+v", info)
	}

	// --dump is the fallback.
	var again dumpInfoView
	runJSON(t, &again, "--dump", fx.Path, "dump", "info")
	if again.Path != info.Path {
		t.Errorf("Path = %q, want %q", again.Path, info.Path)
	}

	if _, err := run(t, "dump", "info"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}
