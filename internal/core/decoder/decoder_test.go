package decoder

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile/dumptest"
)

func sampleHeap(t *testing.T) (dac.Heap, dumptest.Fixture) {
	t.Helper()
	fx := dumptest.Sample(t)
	target, err := dumpfile.Open(fx.Path)
	if err != nil {
		t.Fatal(err)
	}
	rt, err := dumpfile.Component{}.CreateRuntime(target)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		rt.Close()
		target.Close()
	})
	return rt.Heap(), fx
}

func descriptor(t *testing.T, h dac.Heap, name string) domain.TypeDescriptor {
	t.Helper()
	typ, ok := h.TypeByName(name)
	if !ok {
		t.Fatalf("type %q not found", name)
	}
	return typ.Descriptor()
}

func TestIsSimple(t *testing.T) {
	h, _ := sampleHeap(t)

	tests := []struct {
		name string
		want bool
	}{
		{dumpfile.StringTypeName, true},
		{dumptest.Int32Type, true},
		{dumptest.NodeType, false},
		{dumptest.ArrayType, false},
	}
	for _, tt := range tests {
		if got := IsSimple(descriptor(t, h, tt.name)); got != tt.want {
			t.Errorf("IsSimple(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGetSimpleValue(t *testing.T) {
	h, fx := sampleHeap(t)
	d := New(h)

	tests := []struct {
		name string
		addr domain.Address
		typ  string
		want any
	}{
		{"boxed int32", fx.Boxed, dumptest.Int32Type, int32(42)},
		{"string", fx.HeadLabel, dumpfile.StringTypeName, "head"},
		{"complex type yields its address", fx.Head, dumptest.NodeType, fx.Head},
		{"null string", 0, dumpfile.StringTypeName, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.GetSimpleValue(tt.addr, descriptor(t, h, tt.typ))
			if err != nil {
				t.Fatalf("GetSimpleValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetSimpleValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestGetFieldValue(t *testing.T) {
	h, fx := sampleHeap(t)
	d := New(h)
	node := descriptor(t, h, dumptest.NodeType)
	thread := descriptor(t, h, dumptest.ThreadType)

	tests := []struct {
		name string
		addr domain.Address
		typ  domain.TypeDescriptor
		path []string
		want any
	}{
		{"inline primitive", fx.Head, node, []string{"Value"}, int32(1)},
		{"string reference", fx.Head, node, []string{"Label"}, "head"},
		{"complex reference yields address", fx.Head, node, []string{"Next"}, fx.Tail},
		{"two steps", fx.Head, node, []string{"Next", "Value"}, int32(2)},
		{"null terminal reference", fx.Tail, node, []string{"Next"}, nil},
		{"null short-circuits before unknown field", fx.Head, node, []string{"Next", "Next", "Bogus"}, nil},
		{"null root", 0, node, []string{"Value"}, nil},
		{"thread name", fx.MainThread, thread, []string{"m_Name"}, "Main"},
		{"unnamed thread", fx.WorkerThread, thread, []string{"m_Name"}, nil},
		{"thread id", fx.WorkerThread, thread, []string{"m_ManagedThreadId"}, int32(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.GetFieldValue(tt.addr, tt.typ, tt.path)
			if err != nil {
				t.Fatalf("GetFieldValue(%v) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("GetFieldValue(%v) = %#v, want %#v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetFieldValue_Failures(t *testing.T) {
	h, fx := sampleHeap(t)
	d := New(h)
	node := descriptor(t, h, dumptest.NodeType)

	tests := []struct {
		name string
		addr domain.Address
		path []string
		also error
	}{
		{"unknown field", fx.Head, []string{"Missing"}, domain.ErrFieldNotFound},
		{"path through primitive", fx.Head, []string{"Value", "x"}, nil},
		{"empty path", fx.Head, nil, domain.ErrInvalidArgument},
		{"unmapped object", 0xdead0000, []string{"Next"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.GetFieldValue(tt.addr, node, tt.path)
			if !errors.Is(err, domain.ErrDecodeFailure) {
				t.Fatalf("GetFieldValue() error = %v, want ErrDecodeFailure", err)
			}
			if tt.also != nil && !errors.Is(err, tt.also) {
				t.Errorf("GetFieldValue() error = %v, want it to wrap %v", err, tt.also)
			}
		})
	}
}

func TestGetSimpleValue_GarbledMemory(t *testing.T) {
	h, _ := sampleHeap(t)
	d := New(h)

	_, err := d.GetSimpleValue(0x1, descriptor(t, h, dumpfile.StringTypeName))
	if !errors.Is(err, domain.ErrDecodeFailure) {
		t.Errorf("GetSimpleValue() error = %v, want ErrDecodeFailure", err)
	}
}

// panicHeap panics on everything but memory reads of the header.
type panicHeap struct {
	dac.Heap
}

func (panicHeap) PointerSize() int            { return 8 }
func (panicHeap) ByteOrder() binary.ByteOrder { return binary.LittleEndian }
func (panicHeap) ReadMemory(domain.Address, []byte) (int, error) {
	panic("read fault")
}

func TestDecoder_RecoversPanics(t *testing.T) {
	d := New(panicHeap{})
	typ := domain.TypeDescriptor{
		Name:   "T",
		Kind:   domain.KindObject,
		Fields: []domain.FieldDescriptor{{Name: "f", Offset: 8, Kind: domain.KindInt32}},
	}

	if _, err := d.GetFieldValue(0x1000, typ, []string{"f"}); !errors.Is(err, domain.ErrDecodeFailure) {
		t.Errorf("GetFieldValue() error = %v, want ErrDecodeFailure", err)
	}
	str := domain.TypeDescriptor{Name: "S", Kind: domain.KindString}
	if _, err := d.GetSimpleValue(0x1000, str); !errors.Is(err, domain.ErrDecodeFailure) {
		t.Errorf("GetSimpleValue() error = %v, want ErrDecodeFailure", err)
	}
}

func TestReadScalar_AllKinds(t *testing.T) {
	b := dumpfile.NewBuilder().Runtime("coreclr", "8.0")
	all := b.DefineObject("All",
		dumpfile.Field{Name: "b", Kind: domain.KindBoolean},
		dumpfile.Field{Name: "c", Kind: domain.KindChar},
		dumpfile.Field{Name: "i8", Kind: domain.KindInt8},
		dumpfile.Field{Name: "u8", Kind: domain.KindUint8},
		dumpfile.Field{Name: "i16", Kind: domain.KindInt16},
		dumpfile.Field{Name: "u16", Kind: domain.KindUint16},
		dumpfile.Field{Name: "u32", Kind: domain.KindUint32},
		dumpfile.Field{Name: "i64", Kind: domain.KindInt64},
		dumpfile.Field{Name: "u64", Kind: domain.KindUint64},
		dumpfile.Field{Name: "f32", Kind: domain.KindFloat32},
		dumpfile.Field{Name: "f64", Kind: domain.KindFloat64},
		dumpfile.Field{Name: "p", Kind: domain.KindPointer},
	)
	obj := b.New(all)
	b.Set(obj, "b", true).Set(obj, "c", 'é').Set(obj, "i8", int8(-3)).Set(obj, "u8", uint8(200)).
		Set(obj, "i16", int16(-300)).Set(obj, "u16", uint16(60000)).Set(obj, "u32", uint32(4e9)).
		Set(obj, "i64", int64(-1)).Set(obj, "u64", uint64(1<<63)).Set(obj, "f32", float32(1.5)).
		Set(obj, "f64", 2.25).Set(obj, "p", uint64(0x7fff0000))

	target, err := dumpfile.Open(dumptest.Write(t, b, "all.json"))
	if err != nil {
		t.Fatal(err)
	}
	rt, err := dumpfile.Component{}.CreateRuntime(target)
	if err != nil {
		t.Fatal(err)
	}
	d := New(rt.Heap())
	typ := descriptor(t, rt.Heap(), "All")

	want := map[string]any{
		"b":   true,
		"c":   "é",
		"i8":  int8(-3),
		"u8":  uint8(200),
		"i16": int16(-300),
		"u16": uint16(60000),
		"u32": uint32(4e9),
		"i64": int64(-1),
		"u64": uint64(1 << 63),
		"f32": float32(1.5),
		"f64": 2.25,
		"p":   uint64(0x7fff0000),
	}
	for field, w := range want {
		got, err := d.GetFieldValue(obj, typ, []string{field})
		if err != nil {
			t.Errorf("%s: error = %v", field, err)
			continue
		}
		if got != w {
			t.Errorf("%s = %#v, want %#v", field, got, w)
		}
	}
}
