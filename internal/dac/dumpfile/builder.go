package dumpfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

const (
	firstSegmentBase = domain.Address(0x10000)
	segmentGap       = 0x10000
	typeHandleStride = 0x40
)

// First type handle per pointer size. A handle is stored in the object
// header, so it must fit in a pointer slot.
const (
	firstTypeHandle32 = uint64(0x7ff0_1000)
	firstTypeHandle64 = uint64(0x7ff0_0000_1000)
)

// StringTypeName is the name DefineString registers.
const StringTypeName = "System.String"

// Field declares an instance field for DefineObject. Offsets are assigned
// in declaration order.
type Field struct {
	Name     string
	Kind     domain.Kind
	TypeName string
}

// Builder assembles a dump in memory. The first error sticks: once a call
// fails, later calls are no-ops and File returns that error.
type Builder struct {
	ptr     int
	order   binary.ByteOrder
	file    File
	types   map[uint64]int
	byName  map[string]uint64
	objects map[domain.Address]uint64
	handle  uint64
	segs    []*SegmentRecord
	err     error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPointerSize sets the target pointer size (4 or 8, default 8).
func WithPointerSize(n int) BuilderOption {
	return func(b *Builder) { b.ptr = n }
}

// WithByteOrder sets the target byte order (default little endian).
func WithByteOrder(o binary.ByteOrder) BuilderOption {
	return func(b *Builder) { b.order = o }
}

// NewBuilder returns an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		ptr:     8,
		order:   binary.LittleEndian,
		types:   make(map[uint64]int),
		byName:  make(map[string]uint64),
		objects: make(map[domain.Address]uint64),
	}
	for _, opt := range opts {
		opt(b)
	}
	switch b.ptr {
	case 4:
		b.handle = firstTypeHandle32
	case 8:
		b.handle = firstTypeHandle64
	default:
		b.fail(fmt.Errorf("unsupported pointer size %d", b.ptr))
	}
	return b
}

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = fmt.Errorf("dumpfile: builder: %w", err)
	}
}

// Runtime declares a runtime version. The first declared one is used when
// the dump is opened.
func (b *Builder) Runtime(flavor, version string) *Builder {
	b.file.Runtimes = append(b.file.Runtimes, domain.RuntimeVersion{Flavor: flavor, Version: version})
	return b
}

// TypeHandle returns the handle of a defined type, or 0.
func (b *Builder) TypeHandle(name string) uint64 { return b.byName[name] }

func (b *Builder) define(desc domain.TypeDescriptor) uint64 {
	if h, ok := b.byName[desc.Name]; ok {
		return h
	}
	desc.Handle = b.handle
	b.handle += typeHandleStride
	b.types[desc.Handle] = len(b.file.Types)
	b.byName[desc.Name] = desc.Handle
	b.file.Types = append(b.file.Types, desc)
	return desc.Handle
}

// DefineObject defines a reference type with the given fields and returns
// its handle. Defining an existing name returns the existing handle.
func (b *Builder) DefineObject(name string, fields ...Field) uint64 {
	off := b.ptr
	descs := make([]domain.FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		size := slotSize(f.Kind, b.ptr)
		if size == 0 {
			b.fail(fmt.Errorf("field %s.%s has no inline size (kind %v)", name, f.Name, f.Kind))
			return 0
		}
		off = int(alignUp(uint64(off), size))
		descs = append(descs, domain.FieldDescriptor{
			Name:     f.Name,
			Offset:   uint32(off),
			Kind:     f.Kind,
			TypeName: f.TypeName,
		})
		off += size
	}
	return b.define(domain.TypeDescriptor{
		Name:     name,
		Kind:     domain.KindObject,
		BaseSize: uint32(alignUp(uint64(off), b.ptr)),
		Fields:   descs,
	})
}

// DefineString defines the runtime string type.
func (b *Builder) DefineString() uint64 {
	return b.define(domain.TypeDescriptor{
		Name:          StringTypeName,
		Kind:          domain.KindString,
		BaseSize:      stringBaseSize(b.ptr),
		ComponentSize: 2,
	})
}

// DefineArray defines an array type whose elements have kind elem.
func (b *Builder) DefineArray(name string, elem domain.Kind, elemName string) uint64 {
	size := slotSize(elem, b.ptr)
	if size == 0 {
		b.fail(fmt.Errorf("array %s: element kind %v has no inline size", name, elem))
		return 0
	}
	return b.define(domain.TypeDescriptor{
		Name:          name,
		Kind:          domain.KindArray,
		BaseSize:      arrayBaseSize(b.ptr),
		ComponentSize: uint32(size),
		ElementKind:   elem,
		ElementName:   elemName,
	})
}

// DefineBoxed defines a boxed primitive type.
func (b *Builder) DefineBoxed(name string, kind domain.Kind) uint64 {
	if !kind.IsPrimitive() {
		b.fail(fmt.Errorf("boxed type %s: %v is not primitive", name, kind))
		return 0
	}
	return b.define(domain.TypeDescriptor{
		Name:     name,
		Kind:     kind,
		BaseSize: uint32(b.ptr + slotSize(kind, b.ptr)),
	})
}

// Segment starts a new heap segment. Later allocations go there.
func (b *Builder) Segment(kind string) *Builder {
	start := firstSegmentBase
	if n := len(b.segs); n > 0 {
		start = domain.Address(alignUp(uint64(b.segs[n-1].End()), segmentGap)) + segmentGap
	}
	b.segs = append(b.segs, &SegmentRecord{Start: start, Kind: kind})
	return b
}

func (b *Builder) alloc(handle uint64, size uint64) domain.Address {
	if b.err != nil {
		return 0
	}
	if _, ok := b.types[handle]; !ok {
		b.fail(fmt.Errorf("unknown type handle %#x", handle))
		return 0
	}
	if len(b.segs) == 0 {
		b.Segment("gen0")
	}
	seg := b.segs[len(b.segs)-1]
	addr := seg.End()
	size = max(alignUp(size, b.ptr), uint64(b.ptr))
	seg.Data = append(seg.Data, make([]byte, size)...)
	b.putPointer(seg.Data[addr-seg.Start:], handle)
	b.objects[addr] = handle
	return addr
}

// New allocates a zeroed instance of an object type.
func (b *Builder) New(handle uint64) domain.Address {
	desc, ok := b.desc(handle)
	if !ok {
		return b.alloc(handle, 0)
	}
	if desc.Kind != domain.KindObject {
		b.fail(fmt.Errorf("New: %s is not an object type", desc.Name))
		return 0
	}
	return b.alloc(handle, uint64(desc.BaseSize))
}

// String allocates a string instance.
func (b *Builder) String(s string) domain.Address {
	handle := b.DefineString()
	units := utf16.Encode([]rune(s))
	addr := b.alloc(handle, uint64(stringBaseSize(b.ptr))+uint64(2*len(units)))
	if addr == 0 {
		return 0
	}
	mem := b.mem(addr)
	b.order.PutUint32(mem[lengthOffset(b.ptr):], uint32(len(units)))
	for i, u := range units {
		b.order.PutUint16(mem[stringBaseSize(b.ptr)+uint32(2*i):], u)
	}
	return addr
}

// NewArray allocates an array of n zeroed elements.
func (b *Builder) NewArray(handle uint64, n int) domain.Address {
	desc, ok := b.desc(handle)
	if ok && desc.Kind != domain.KindArray {
		b.fail(fmt.Errorf("NewArray: %s is not an array type", desc.Name))
		return 0
	}
	addr := b.alloc(handle, uint64(desc.BaseSize)+uint64(n)*uint64(desc.ComponentSize))
	if addr == 0 {
		return 0
	}
	b.order.PutUint32(b.mem(addr)[lengthOffset(b.ptr):], uint32(n))
	return addr
}

// Box allocates a boxed primitive holding v.
func (b *Builder) Box(handle uint64, v any) domain.Address {
	desc, ok := b.desc(handle)
	if ok && !desc.Kind.IsPrimitive() {
		b.fail(fmt.Errorf("Box: %s is not a primitive type", desc.Name))
		return 0
	}
	addr := b.alloc(handle, uint64(desc.BaseSize))
	if addr == 0 {
		return 0
	}
	b.put(b.mem(addr)[b.ptr:], desc.Kind, v)
	return addr
}

// Set writes field of obj. Reference fields take a domain.Address (or nil).
func (b *Builder) Set(obj domain.Address, field string, v any) *Builder {
	if b.err != nil {
		return b
	}
	desc, ok := b.desc(b.objects[obj])
	if !ok {
		b.fail(fmt.Errorf("Set: no object at %v", obj))
		return b
	}
	f, ok := desc.FieldByName(field)
	if !ok {
		b.fail(fmt.Errorf("Set: %s has no field %q", desc.Name, field))
		return b
	}
	b.put(b.mem(obj)[f.Offset:], f.Kind, v)
	return b
}

// SetElement writes element i of arr.
func (b *Builder) SetElement(arr domain.Address, i int, v any) *Builder {
	if b.err != nil {
		return b
	}
	desc, ok := b.desc(b.objects[arr])
	if !ok || desc.Kind != domain.KindArray {
		b.fail(fmt.Errorf("SetElement: no array at %v", arr))
		return b
	}
	mem := b.mem(arr)
	n := int(b.order.Uint32(mem[lengthOffset(b.ptr):]))
	if i < 0 || i >= n {
		b.fail(fmt.Errorf("SetElement: index %d out of range [0,%d)", i, n))
		return b
	}
	b.put(mem[desc.BaseSize+uint32(i)*desc.ComponentSize:], desc.ElementKind, v)
	return b
}

// Thread records a runtime thread.
func (b *Builder) Thread(t domain.Thread) *Builder {
	b.file.Threads = append(b.file.Threads, t)
	return b
}

// Root records a GC root.
func (b *Builder) Root(r domain.Root) *Builder {
	b.file.Roots = append(b.file.Roots, r)
	return b
}

// Handle records a GC handle.
func (b *Builder) Handle(h domain.Handle) *Builder {
	b.file.Handles = append(b.file.Handles, h)
	return b
}

// Finalizable queues addr for finalization.
func (b *Builder) Finalizable(addr domain.Address) *Builder {
	b.file.FinalizerQueue = append(b.file.FinalizerQueue, addr)
	return b
}

// BlockingObject records a lock.
func (b *Builder) BlockingObject(o domain.BlockingObject) *Builder {
	b.file.BlockingObjects = append(b.file.BlockingObjects, o)
	return b
}

// Region records a memory region.
func (b *Builder) Region(r domain.MemoryRegion) *Builder {
	b.file.Regions = append(b.file.Regions, r)
	return b
}

// Module records a loaded module.
func (b *Builder) Module(m domain.Module) *Builder {
	b.file.Modules = append(b.file.Modules, m)
	return b
}

// ThreadPool records the thread pool summary.
func (b *Builder) ThreadPool(p domain.ThreadPool) *Builder {
	b.file.ThreadPool = &p
	return b
}

// File returns the assembled document.
func (b *Builder) File() (*File, error) {
	if b.err != nil {
		return nil, b.err
	}
	f := b.file
	f.Format = FormatVersion
	f.PointerSize = b.ptr
	f.ByteOrder = byteOrderName(b.order)
	f.Types = append([]domain.TypeDescriptor(nil), b.file.Types...)
	f.Segments = make([]SegmentRecord, 0, len(b.segs))
	for _, s := range b.segs {
		f.Segments = append(f.Segments, SegmentRecord{
			Start: s.Start,
			Kind:  s.Kind,
			Data:  append([]byte(nil), s.Data...),
		})
	}
	return &f, nil
}

// WriteFile assembles the document and writes it to path.
func (b *Builder) WriteFile(path string) error {
	f, err := b.File()
	if err != nil {
		return err
	}
	return WriteFile(path, f)
}

func (b *Builder) desc(handle uint64) (domain.TypeDescriptor, bool) {
	i, ok := b.types[handle]
	if !ok {
		return domain.TypeDescriptor{}, false
	}
	return b.file.Types[i], true
}

// mem returns the bytes of the segment from addr onwards.
func (b *Builder) mem(addr domain.Address) []byte {
	for _, s := range b.segs {
		if addr >= s.Start && addr < s.End() {
			return s.Data[addr-s.Start:]
		}
	}
	return nil
}

func (b *Builder) putPointer(dst []byte, v uint64) {
	if b.ptr == 4 {
		if v > math.MaxUint32 {
			b.fail(fmt.Errorf("value %#x does not fit a 4-byte pointer", v))
			return
		}
		b.order.PutUint32(dst, uint32(v))
		return
	}
	b.order.PutUint64(dst, v)
}

func (b *Builder) put(dst []byte, kind domain.Kind, v any) {
	if kind.IsReference() || kind == domain.KindPointer {
		switch x := v.(type) {
		case nil:
			b.putPointer(dst, 0)
		case domain.Address:
			b.putPointer(dst, uint64(x))
		case uint64:
			b.putPointer(dst, x)
		default:
			b.fail(fmt.Errorf("%v slot: want domain.Address, got %T", kind, v))
		}
		return
	}

	switch kind {
	case domain.KindBoolean:
		x, ok := v.(bool)
		if !ok {
			b.fail(fmt.Errorf("bool slot: got %T", v))
			return
		}
		dst[0] = 0
		if x {
			dst[0] = 1
		}
	case domain.KindChar:
		switch x := v.(type) {
		case rune:
			b.order.PutUint16(dst, uint16(x))
		case string:
			units := utf16.Encode([]rune(x))
			if len(units) != 1 {
				b.fail(fmt.Errorf("char slot: %q is not a single code unit", x))
				return
			}
			b.order.PutUint16(dst, units[0])
		default:
			b.fail(fmt.Errorf("char slot: got %T", v))
		}
	case domain.KindFloat32:
		f, ok := toFloat(v)
		if !ok {
			b.fail(fmt.Errorf("float32 slot: got %T", v))
			return
		}
		b.order.PutUint32(dst, math.Float32bits(float32(f)))
	case domain.KindFloat64:
		f, ok := toFloat(v)
		if !ok {
			b.fail(fmt.Errorf("float64 slot: got %T", v))
			return
		}
		b.order.PutUint64(dst, math.Float64bits(f))
	default:
		n, ok := toInt(v)
		if !ok {
			b.fail(fmt.Errorf("%v slot: got %T", kind, v))
			return
		}
		switch kind.Size() {
		case 1:
			dst[0] = byte(n)
		case 2:
			b.order.PutUint16(dst, uint16(n))
		case 4:
			b.order.PutUint32(dst, uint32(n))
		case 8:
			b.order.PutUint64(dst, uint64(n))
		default:
			b.fail(fmt.Errorf("cannot store %T in %v slot", v, kind))
		}
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if n, ok := toInt(v); ok {
		return float64(n), true
	}
	return 0, false
}
