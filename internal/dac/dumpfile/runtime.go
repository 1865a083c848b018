package dumpfile

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
)

// ComponentName is the registry name of the dump file component.
const ComponentName = "dumpfile"

var supported = dac.VersionMatcher{Flavors: []string{"coreclr", "desktop", "synthetic"}}

func init() {
	dac.Register(Component{})
}

// Component creates runtime handles over dump file targets.
type Component struct{}

// Name implements dac.Component.
func (Component) Name() string { return ComponentName }

// Supports implements dac.Component.
func (Component) Supports(v domain.RuntimeVersion) bool { return supported.Match(v) }

// CreateRuntime implements dac.Component. The target must come from this
// package; the first declared runtime version is used.
func (Component) CreateRuntime(t dac.DataTarget) (dac.Runtime, error) {
	target, ok := t.(*Target)
	if !ok {
		return nil, domain.ErrInitialization.WithDetailsf("component %s cannot read %T", ComponentName, t)
	}
	if target.Closed() {
		return nil, domain.ErrInitialization.WithCause(ErrTargetClosed)
	}
	versions := target.RuntimeVersions()
	if len(versions) == 0 {
		return nil, domain.ErrNoRuntime
	}

	h, err := newHeap(target)
	if err != nil {
		return nil, domain.ErrInitialization.WithCause(err)
	}
	return &runtime{target: target, version: versions[0], heap: h}, nil
}

type runtime struct {
	target  *Target
	version domain.RuntimeVersion
	heap    *heap
	closed  bool
}

func (r *runtime) Version() domain.RuntimeVersion { return r.version }
func (r *runtime) Heap() dac.Heap                 { return r.heap }

func (r *runtime) Threads() ([]domain.Thread, error) {
	return cloneView(r, r.target.file.Threads)
}

func (r *runtime) Roots() ([]domain.Root, error) {
	return cloneView(r, r.target.file.Roots)
}

func (r *runtime) Handles() ([]domain.Handle, error) {
	return cloneView(r, r.target.file.Handles)
}

func (r *runtime) FinalizerQueue() ([]domain.Address, error) {
	return cloneView(r, r.target.file.FinalizerQueue)
}

func (r *runtime) BlockingObjects() ([]domain.BlockingObject, error) {
	objs, err := cloneView(r, r.target.file.BlockingObjects)
	if err != nil {
		return nil, err
	}
	for i := range objs {
		objs[i].Owners = slices.Clone(objs[i].Owners)
		objs[i].Waiters = slices.Clone(objs[i].Waiters)
	}
	return objs, nil
}

func (r *runtime) Regions() ([]domain.MemoryRegion, error) {
	return cloneView(r, r.target.file.Regions)
}

func (r *runtime) Modules() ([]domain.Module, error) {
	return cloneView(r, r.target.file.Modules)
}

func (r *runtime) ThreadPool() (domain.ThreadPool, error) {
	if r.closed {
		return domain.ThreadPool{}, errRuntimeClosed
	}
	if r.target.file.ThreadPool == nil {
		return domain.ThreadPool{}, nil
	}
	return *r.target.file.ThreadPool, nil
}

func (r *runtime) Close() error {
	r.closed = true
	return nil
}

var errRuntimeClosed = fmt.Errorf("dumpfile: runtime closed")

func cloneView[T any](r *runtime, s []T) ([]T, error) {
	if r.closed {
		return nil, errRuntimeClosed
	}
	return slices.Clone(s), nil
}

type heap struct {
	target   *Target
	segments []domain.Segment
	types    []dac.Type
	byHandle map[uint64]*typeInfo
	byName   map[string]*typeInfo
}

func newHeap(t *Target) (*heap, error) {
	h := &heap{
		target:   t,
		byHandle: make(map[uint64]*typeInfo, len(t.file.Types)),
		byName:   make(map[string]*typeInfo, len(t.file.Types)),
	}
	for _, desc := range t.file.Types {
		if desc.Handle == 0 {
			return nil, fmt.Errorf("type %q has a zero handle", desc.Name)
		}
		if _, dup := h.byHandle[desc.Handle]; dup {
			return nil, fmt.Errorf("duplicate type handle %#x", desc.Handle)
		}
		ti := &typeInfo{desc: desc, heap: h}
		h.byHandle[desc.Handle] = ti
		if _, seen := h.byName[desc.Name]; !seen {
			h.byName[desc.Name] = ti
		}
		h.types = append(h.types, ti)
	}
	for _, s := range t.file.Segments {
		h.segments = append(h.segments, domain.Segment{Start: s.Start, End: s.End(), Kind: s.Kind})
	}
	return h, nil
}

func (h *heap) PointerSize() int            { return h.target.PointerSize() }
func (h *heap) ByteOrder() binary.ByteOrder { return h.target.ByteOrder() }

func (h *heap) ReadMemory(addr domain.Address, buf []byte) (int, error) {
	return h.target.ReadMemory(addr, buf)
}

func (h *heap) Segments() []domain.Segment { return slices.Clone(h.segments) }
func (h *heap) Types() []dac.Type          { return slices.Clone(h.types) }

func (h *heap) TypeByHandle(handle uint64) (dac.Type, bool) {
	ti, ok := h.byHandle[handle]
	if !ok {
		return nil, false
	}
	return ti, true
}

func (h *heap) TypeByName(name string) (dac.Type, bool) {
	ti, ok := h.byName[name]
	if !ok {
		return nil, false
	}
	return ti, true
}

func (h *heap) ObjectType(addr domain.Address) (dac.Type, error) {
	if addr == 0 {
		return nil, domain.ErrAddressNotFound.WithDetails("null reference")
	}
	handle, err := h.readPointer(addr)
	if err != nil {
		return nil, domain.ErrAddressNotFound.WithDetails(addr.String()).WithCause(err)
	}
	ti, ok := h.byHandle[handle]
	if !ok {
		return nil, domain.ErrAddressNotFound.WithDetailsf("%v: unknown type handle %#x", addr, handle)
	}
	return ti, nil
}

func (h *heap) WalkObjects(seg domain.Segment, fn dac.WalkFunc) error {
	rec, ok := h.target.segmentAt(seg.Start)
	if !ok || rec.Start != seg.Start {
		return fmt.Errorf("dumpfile: no segment at %v", seg.Start)
	}

	ptr := h.PointerSize()
	end := uint64(len(rec.Data))
	for off := uint64(0); off+uint64(ptr) <= end; {
		addr := rec.Start + domain.Address(off)
		handle := h.decodePointer(rec.Data[off:])
		if handle == 0 {
			return nil
		}
		ti, ok := h.byHandle[handle]
		if !ok {
			return fmt.Errorf("dumpfile: unknown type handle %#x at %v", handle, addr)
		}
		size, err := ti.ObjectSize(addr)
		if err != nil {
			return err
		}
		if size == 0 || off+size > end {
			return fmt.Errorf("dumpfile: object at %v overruns segment (size %d)", addr, size)
		}
		if err := fn(addr, ti, size); err != nil {
			return err
		}
		off += size
	}
	return nil
}

func (h *heap) decodePointer(b []byte) uint64 {
	if h.PointerSize() == 4 {
		return uint64(h.ByteOrder().Uint32(b))
	}
	return h.ByteOrder().Uint64(b)
}

func (h *heap) readPointer(addr domain.Address) (uint64, error) {
	var buf [8]byte
	b := buf[:h.PointerSize()]
	if _, err := h.ReadMemory(addr, b); err != nil {
		return 0, err
	}
	return h.decodePointer(b), nil
}

func (h *heap) readUint32(addr domain.Address) (uint32, error) {
	var buf [4]byte
	if _, err := h.ReadMemory(addr, buf[:]); err != nil {
		return 0, err
	}
	return h.ByteOrder().Uint32(buf[:]), nil
}

type typeInfo struct {
	desc domain.TypeDescriptor
	heap *heap
}

func (t *typeInfo) Name() string   { return t.desc.Name }
func (t *typeInfo) Handle() uint64 { return t.desc.Handle }

func (t *typeInfo) Descriptor() domain.TypeDescriptor {
	d := t.desc
	d.Fields = slices.Clone(t.desc.Fields)
	return d
}

func (t *typeInfo) ObjectSize(addr domain.Address) (uint64, error) {
	ptr := t.heap.PointerSize()
	size := uint64(t.desc.BaseSize)
	if t.desc.Kind == domain.KindString || t.desc.Kind == domain.KindArray {
		n, err := t.heap.readUint32(addr + domain.Address(lengthOffset(ptr)))
		if err != nil {
			return 0, err
		}
		size += uint64(n) * uint64(t.desc.ComponentSize)
	}
	return max(alignUp(size, ptr), uint64(ptr)), nil
}

func (t *typeInfo) EnumerateReferences(addr domain.Address, fn func(domain.Address) bool) error {
	switch {
	case t.desc.Kind == domain.KindObject:
		for _, f := range t.desc.Fields {
			if !f.Kind.IsReference() {
				continue
			}
			target, err := t.heap.readPointer(addr + domain.Address(f.Offset))
			if err != nil {
				return err
			}
			if target != 0 && !fn(domain.Address(target)) {
				return nil
			}
		}
	case t.desc.Kind == domain.KindArray && t.desc.ElementKind.IsReference():
		ptr := t.heap.PointerSize()
		n, err := t.heap.readUint32(addr + domain.Address(lengthOffset(ptr)))
		if err != nil {
			return err
		}
		base := addr + domain.Address(t.desc.BaseSize)
		for i := range uint64(n) {
			target, err := t.heap.readPointer(base + domain.Address(i*uint64(ptr)))
			if err != nil {
				return err
			}
			if target != 0 && !fn(domain.Address(target)) {
				return nil
			}
		}
	}
	return nil
}
