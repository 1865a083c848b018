package session

import (
	"cmp"
	"iter"
	"slices"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
)

// UnknownTypeName groups finalizer queue entries whose type cannot be
// resolved.
const UnknownTypeName = "<unknown>"

// view returns a sequence that fetches its items on the worker every time
// it is iterated. A fetch error is yielded once, with a zero item.
func view[T any](s *Session, fetch func(dac.Runtime) ([]T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		items, err := Eval(s, fetch)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Segments lists the heap segments.
func (s *Session) Segments() iter.Seq2[domain.Segment, error] {
	return view(s, func(rt dac.Runtime) ([]domain.Segment, error) {
		return rt.Heap().Segments(), nil
	})
}

// Regions lists the memory regions the runtime reserved.
func (s *Session) Regions() iter.Seq2[domain.MemoryRegion, error] {
	return view(s, dac.Runtime.Regions)
}

// Modules lists the loaded modules.
func (s *Session) Modules() iter.Seq2[domain.Module, error] {
	return view(s, dac.Runtime.Modules)
}

// Threads lists the runtime threads.
func (s *Session) Threads() iter.Seq2[domain.Thread, error] {
	return view(s, dac.Runtime.Threads)
}

// Handles lists the GC handle table.
func (s *Session) Handles() iter.Seq2[domain.Handle, error] {
	return view(s, dac.Runtime.Handles)
}

// Roots lists the GC roots.
func (s *Session) Roots() iter.Seq2[domain.Root, error] {
	return view(s, dac.Runtime.Roots)
}

// BlockingObjects lists locks and wait handles with owners or waiters.
func (s *Session) BlockingObjects() iter.Seq2[domain.BlockingObject, error] {
	return view(s, dac.Runtime.BlockingObjects)
}

// FinalizerQueue lists the objects waiting for finalization.
func (s *Session) FinalizerQueue() iter.Seq2[domain.Address, error] {
	return view(s, dac.Runtime.FinalizerQueue)
}

// FinalizerQueueByType groups the finalizer queue by object type, ordered
// by type name. Addresses keep their queue order within a group.
func (s *Session) FinalizerQueueByType() iter.Seq2[domain.FinalizerGroup, error] {
	return view(s, func(rt dac.Runtime) ([]domain.FinalizerGroup, error) {
		queue, err := rt.FinalizerQueue()
		if err != nil {
			return nil, err
		}
		heap := rt.Heap()
		byType := make(map[string]int)
		var groups []domain.FinalizerGroup
		for _, addr := range queue {
			name := UnknownTypeName
			if t, err := heap.ObjectType(addr); err == nil {
				name = t.Name()
			}
			i, ok := byType[name]
			if !ok {
				i = len(groups)
				byType[name] = i
				groups = append(groups, domain.FinalizerGroup{TypeName: name})
			}
			groups[i].Addresses = append(groups[i].Addresses, addr)
		}
		slices.SortFunc(groups, func(a, b domain.FinalizerGroup) int {
			return cmp.Compare(a.TypeName, b.TypeName)
		})
		return groups, nil
	})
}

// ThreadPool returns the thread pool summary.
func (s *Session) ThreadPool() (domain.ThreadPool, error) {
	return Eval(s, dac.Runtime.ThreadPool)
}
