package command

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile/dumptest"
)

func TestHeapTypes(t *testing.T) {
	fx := dumptest.Sample(t)

	out := mustRun(t, "--dump", fx.Path, "heap", "types", "--filter", "App.")
	for _, want := range []string{dumptest.NodeType, dumptest.UnusedType, "HANDLE", "BASE_SIZE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, dumpfile.StringTypeName) {
		t.Errorf("filter kept %s:\n%s", dumpfile.StringTypeName, out)
	}

	var types []domain.TypeDescriptor
	runJSON(t, &types, "--dump", fx.Path, "heap", "types")
	if len(types) < 6 {
		t.Fatalf("types = %d", len(types))
	}
	for i := 1; i < len(types); i++ {
		if types[i-1].Name > types[i].Name {
			t.Errorf("types not sorted: %q before %q", types[i-1].Name, types[i].Name)
		}
	}
}

func TestHeapType(t *testing.T) {
	fx := dumptest.Sample(t)

	out := mustRun(t, "--dump", fx.Path, "heap", "type", dumptest.NodeType)
	for _, want := range []string{"Next", "Value", "Label", "int32"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	var desc domain.TypeDescriptor
	runJSON(t, &desc, "--dump", fx.Path, "heap", "type", dumptest.NodeType)
	if f, ok := desc.FieldByName("Label"); !ok || f.Kind != domain.KindString {
		t.Errorf("Label field = %+v, %v", f, ok)
	}

	if _, err := run(t, "--dump", fx.Path, "heap", "type", "No.Such"); !errors.Is(err, domain.ErrTypeNotFound) {
		t.Errorf("unknown type error = %v, want ErrTypeNotFound", err)
	}
	if _, err := run(t, "--dump", fx.Path, "heap", "type"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("missing argument error = %v, want ErrInvalidArgument", err)
	}
}

func TestHeapStats(t *testing.T) {
	fx := dumptest.Sample(t)

	var stats []domain.TypeStat
	runJSON(t, &stats, "--dump", fx.Path, "heap", "stats", "--sort", "count")
	counts := make(map[string]uint64)
	for _, st := range stats {
		counts[st.Name] = st.Count
	}
	want := map[string]uint64{
		dumptest.NodeType:       2,
		dumptest.ThreadType:     2,
		dumpfile.StringTypeName: 2,
		dumptest.ArrayType:      1,
		dumptest.Int32Type:      1,
		dumptest.UnusedType:     0,
	}
	for name, n := range want {
		if got, ok := counts[name]; !ok || got != n {
			t.Errorf("count[%s] = %d (present %v), want %d", name, got, ok, n)
		}
	}
	for i := 1; i < len(stats); i++ {
		if stats[i-1].Count < stats[i].Count {
			t.Errorf("stats not sorted by count: %+v", stats)
			break
		}
	}

	runJSON(t, &stats, "--dump", fx.Path, "heap", "stats", "--skip-empty", "--top", "2")
	if len(stats) != 2 {
		t.Errorf("--top 2 returned %d rows", len(stats))
	}

	out := mustRun(t, "--dump", fx.Path, "heap", "stats")
	if !strings.Contains(out, "Total: 8 objects") {
		t.Errorf("table output missing total:\n%s", out)
	}

	if _, err := run(t, "--dump", fx.Path, "heap", "stats", "--sort", "age"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bad sort key error = %v", err)
	}
}

func TestHeapInstances(t *testing.T) {
	fx := dumptest.Sample(t)

	out := mustRun(t, "--dump", fx.Path, "heap", "instances", dumptest.NodeType)
	for _, addr := range []domain.Address{fx.Head, fx.Tail} {
		if !strings.Contains(out, addr.String()) {
			t.Errorf("output missing %v:\n%s", addr, out)
		}
	}

	var rows []struct {
		Address domain.Address `json:"address"`
	}
	runJSON(t, &rows, "--dump", fx.Path, "heap", "instances", "--limit", "1", dumptest.NodeType)
	if len(rows) != 1 || rows[0].Address != fx.Head {
		t.Errorf("--limit 1 = %+v", rows)
	}

	runJSON(t, &rows, "--dump", fx.Path, "heap", "instances", dumptest.UnusedType)
	if len(rows) != 0 {
		t.Errorf("unused type instances = %+v", rows)
	}

	if _, err := run(t, "--dump", fx.Path, "heap", "instances", "No.Such"); !errors.Is(err, domain.ErrTypeNotFound) {
		t.Errorf("unknown type error = %v, want ErrTypeNotFound", err)
	}
}

func TestHeapRefs(t *testing.T) {
	fx := dumptest.Sample(t)

	var refs []objectRow
	runJSON(t, &refs, "--dump", fx.Path, "heap", "refs", fx.Head.String())
	want := []objectRow{
		{Address: fx.Tail, Type: dumptest.NodeType},
		{Address: fx.HeadLabel, Type: dumpfile.StringTypeName},
	}
	if len(refs) != len(want) {
		t.Fatalf("refs = %+v, want %+v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %+v, want %+v", i, refs[i], want[i])
		}
	}

	runJSON(t, &refs, "--dump", fx.Path, "heap", "refs", "--referrers", fx.Tail.String())
	got := make(map[domain.Address]string)
	for _, r := range refs {
		got[r.Address] = r.Type
	}
	if got[fx.Head] != dumptest.NodeType || got[fx.Array] != dumptest.ArrayType || len(got) != 2 {
		t.Errorf("referrers = %+v", refs)
	}

	if _, err := run(t, "--dump", fx.Path, "heap", "refs", "zz"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bad address error = %v, want ErrInvalidArgument", err)
	}
	if _, err := run(t, "--dump", fx.Path, "heap", "refs", "0xdead0000"); !errors.Is(err, domain.ErrAddressNotFound) {
		t.Errorf("unknown address error = %v, want ErrAddressNotFound", err)
	}
}

func TestHeapValue(t *testing.T) {
	fx := dumptest.Sample(t)

	var fields []map[string]any
	runJSON(t, &fields, "--dump", fx.Path, "heap", "value", fx.Head.String())
	values := make(map[string]any)
	for _, f := range fields {
		values[f["name"].(string)] = f["value"]
	}
	if values["Value"] != float64(1) || values["Label"] != "head" || values["Next"] != fx.Tail.String() {
		t.Errorf("fields = %v", values)
	}

	tests := []struct {
		name string
		args []string
		want any
	}{
		{"field path", []string{"--field", "Next.Value", fx.Head.String()}, float64(2)},
		{"null along path", []string{"--field", "Next.Value", fx.Tail.String()}, nil},
		{"boxed primitive", []string{fx.Boxed.String()}, float64(42)},
		{"string", []string{fx.HeadLabel.String()}, "head"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v map[string]any
			runJSON(t, &v, append([]string{"--dump", fx.Path, "heap", "value"}, tt.args...)...)
			if v["value"] != tt.want {
				t.Errorf("value = %#v, want %#v", v["value"], tt.want)
			}
		})
	}

	out := mustRun(t, "--dump", fx.Path, "heap", "value", fx.Head.String())
	if !strings.Contains(out, fx.Head.String()+" "+dumptest.NodeType) {
		t.Errorf("table output missing header:\n%s", out)
	}
}

func TestFlagsAfterArguments(t *testing.T) {
	fx := dumptest.Sample(t)
	synth := filepath.Join(t.TempDir(), "synth.dump.json")

	tests := []struct {
		name string
		args []string
		hint bool
	}{
		{"instances limit", []string{"--dump", fx.Path, "heap", "instances", dumptest.NodeType, "--limit", "1"}, true},
		{"value field", []string{"--dump", fx.Path, "heap", "value", fx.Head.String(), "--field", "Next.Value"}, true},
		{"refs referrers", []string{"--dump", fx.Path, "heap", "refs", fx.Tail.String(), "-r"}, true},
		{"bookmark note", []string{"--dump", fx.Path, "bookmark", "add", fx.Tail.String(), "--note", "x"}, true},
		{"synth nodes", []string{"dump", "synth", synth, "--nodes", "20"}, true},
		{"extra argument", []string{"--dump", fx.Path, "heap", "type", dumptest.NodeType, "App.Other"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("error = %v, want ErrInvalidArgument", err)
			}
			if got := strings.Contains(err.Error(), "flags must precede arguments"); got != tt.hint {
				t.Errorf("error = %v, flag order hint = %v, want %v", err, got, tt.hint)
			}
		})
	}

	if _, err := os.Stat(synth); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dump synth wrote %s despite the rejected flag (stat error %v)", synth, err)
	}
}
