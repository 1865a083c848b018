package heapindex

import (
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// arena is an immutable, fully built index. Every slice is dense and
// offset-addressed; nothing holds per-object pointers.
type arena struct {
	// Type catalog, indexed by id-1.
	names    []string
	handles  []uint64
	byName   map[string]domain.TypeID
	byHandle map[uint64]domain.TypeID
	stats    []domain.TypeStat

	// Instances of type id are instances[instOffsets[id-1]:instOffsets[id]],
	// in address order.
	instOffsets []uint64
	instances   []domain.Address

	// objects is sorted. The outgoing edges of objects[i] are
	// edgeTargets[edgeOffsets[i]:edgeOffsets[i+1]], in field order.
	objects     []domain.Address
	edgeOffsets []uint64
	edgeTargets []domain.Address

	hasRefs    *roaring64.Bitmap
	referenced *roaring64.Bitmap

	// Reverse edges, built on first use.
	reverseOnce sync.Once
	revOffsets  []uint64
	revSources  []domain.Address
}

func (a *arena) typeCount() int { return len(a.names) }

func (a *arena) validID(id domain.TypeID) bool {
	return id > domain.InvalidTypeID && int(id) <= len(a.names)
}

func (a *arena) instancesOf(id domain.TypeID) []domain.Address {
	return a.instances[a.instOffsets[id-1]:a.instOffsets[id]]
}

// objectIndex returns the position of addr in objects.
func (a *arena) objectIndex(addr domain.Address) (int, bool) {
	return slices.BinarySearch(a.objects, addr)
}

func (a *arena) referencesAt(i int) []domain.Address {
	return a.edgeTargets[a.edgeOffsets[i]:a.edgeOffsets[i+1]]
}

// referrersAt returns the objects referencing the object at position i,
// in address order. A source referencing the same target twice appears
// twice.
func (a *arena) referrersAt(i int) []domain.Address {
	a.reverseOnce.Do(a.buildReverse)
	return a.revSources[a.revOffsets[i]:a.revOffsets[i+1]]
}

// buildReverse transposes the edge CSR with a counting pass.
func (a *arena) buildReverse() {
	offsets := make([]uint64, len(a.objects)+1)
	for _, to := range a.edgeTargets {
		if j, ok := a.objectIndex(to); ok {
			offsets[j+1]++
		}
	}
	for i := 1; i < len(offsets); i++ {
		offsets[i] += offsets[i-1]
	}

	sources := make([]domain.Address, offsets[len(offsets)-1])
	cursor := slices.Clone(offsets[:len(offsets)-1])
	for i, from := range a.objects {
		for _, to := range a.referencesAt(i) {
			j, ok := a.objectIndex(to)
			if !ok {
				continue
			}
			sources[cursor[j]] = from
			cursor[j]++
		}
	}
	a.revOffsets, a.revSources = offsets, sources
}

func (a *arena) edgeCount() uint64 { return uint64(len(a.edgeTargets)) }
