package heapindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"golang.org/x/time/rate"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
)

// errStopWalk aborts a segment walk from inside the callback.
var errStopWalk = errors.New("heapindex: walk stopped")

// builder accumulates one build pass.
type builder struct {
	ctx           context.Context
	heap          dac.Heap
	checkInterval int
	closed        func() bool
	progress      func(Progress, bool)

	a       *arena
	objType []domain.TypeID
	seen    uint64
	stopErr error
}

// catalog assigns ids 1..N to the type universe in enumeration order.
func (b *builder) catalog() {
	types := b.heap.Types()
	a := &arena{
		names:    make([]string, 0, len(types)),
		handles:  make([]uint64, 0, len(types)),
		byName:   make(map[string]domain.TypeID, len(types)),
		byHandle: make(map[uint64]domain.TypeID, len(types)),
		stats:    make([]domain.TypeStat, 0, len(types)),
	}
	for i, t := range types {
		id := domain.TypeID(i + 1)
		a.names = append(a.names, t.Name())
		a.handles = append(a.handles, t.Handle())
		if _, dup := a.byName[t.Name()]; !dup {
			a.byName[t.Name()] = id
		}
		a.byHandle[t.Handle()] = id
		a.stats = append(a.stats, domain.TypeStat{TypeID: id, Name: t.Name()})
	}
	b.a = a
}

// walk visits every segment once, in address order, recording objects,
// their types, sizes and outgoing references.
func (b *builder) walk() error {
	a := b.a
	a.edgeOffsets = []uint64{0}
	a.hasRefs = roaring64.New()
	a.referenced = roaring64.New()

	segs := b.heap.Segments()
	var total, done uint64
	for _, s := range segs {
		total += s.Length()
	}

	for si, seg := range segs {
		err := b.heap.WalkObjects(seg, func(addr domain.Address, t dac.Type, size uint64) error {
			if err := b.checkpoint(); err != nil {
				b.stopErr = err
				return errStopWalk
			}

			id, ok := a.byHandle[t.Handle()]
			if !ok {
				return domain.ErrTypeNotFound.WithDetailsf("%s (handle %#x) at %v", t.Name(), t.Handle(), addr)
			}
			if n := len(a.objects); n > 0 && addr <= a.objects[n-1] {
				return fmt.Errorf("object %v out of address order", addr)
			}
			st := &a.stats[id-1]
			st.Count++
			st.TotalSize += size

			a.objects = append(a.objects, addr)
			b.objType = append(b.objType, id)

			before := len(a.edgeTargets)
			if err := t.EnumerateReferences(addr, func(to domain.Address) bool {
				a.edgeTargets = append(a.edgeTargets, to)
				a.referenced.Add(uint64(to))
				return true
			}); err != nil {
				return err
			}
			if len(a.edgeTargets) > before {
				a.hasRefs.Add(uint64(addr))
			}
			a.edgeOffsets = append(a.edgeOffsets, uint64(len(a.edgeTargets)))

			b.seen++
			b.progress(Progress{
				Objects:    b.seen,
				Segment:    si + 1,
				Segments:   len(segs),
				BytesDone:  done + uint64(addr-seg.Start) + size,
				BytesTotal: total,
			}, false)
			return nil
		})
		if errors.Is(err, errStopWalk) {
			return b.stopErr
		}
		if err != nil {
			return domain.ErrBuildFailed.WithDetailsf("segment %v", seg.Start).WithCause(err)
		}
		done += seg.Length()
	}

	b.progress(Progress{Objects: b.seen, Segment: len(segs), Segments: len(segs), BytesDone: total, BytesTotal: total}, true)
	return nil
}

// checkpoint checks for cancellation every checkInterval objects.
func (b *builder) checkpoint() error {
	if b.seen%uint64(b.checkInterval) != 0 {
		return nil
	}
	if b.closed() {
		return domain.ErrIndexClosed
	}
	if err := b.ctx.Err(); err != nil {
		return domain.ErrBuildCancelled.WithCause(err)
	}
	return nil
}

// group lays the per-type instance lists out as one CSR with a stable
// counting sort, so each list stays in address order.
func (b *builder) group() {
	a := b.a
	n := a.typeCount()
	a.instOffsets = make([]uint64, n+1)
	for _, id := range b.objType {
		a.instOffsets[id]++
	}
	for i := 1; i <= n; i++ {
		a.instOffsets[i] += a.instOffsets[i-1]
	}

	a.instances = make([]domain.Address, len(a.objects))
	cursor := make([]uint64, n)
	copy(cursor, a.instOffsets[:n])
	for i, id := range b.objType {
		a.instances[cursor[id-1]] = a.objects[i]
		cursor[id-1]++
	}
	b.objType = nil

	a.hasRefs.RunOptimize()
	a.referenced.RunOptimize()
}

// throttledProgress calls fn at most once per interval, plus once with
// the final value.
func throttledProgress(fn ProgressFunc, limiter *rate.Limiter) func(Progress, bool) {
	if fn == nil {
		return func(Progress, bool) {}
	}
	return func(p Progress, final bool) {
		if final || limiter.Allow() {
			fn(p)
		}
	}
}
