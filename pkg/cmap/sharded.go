package cmap

import (
	"hash/maphash"
	"sync"
)

// DefaultShardCount is used by New.
const DefaultShardCount = 16

// Map is a map safe for concurrent use, split into shards that lock
// independently.
type Map[K comparable, V any] struct {
	seed   maphash.Seed
	mask   uint64
	shards []shard[K, V]
}

type shard[K comparable, V any] struct {
	sync.RWMutex
	m map[K]V
}

// New returns a map with DefaultShardCount shards.
func New[K comparable, V any]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount)
}

// NewWithShards returns a map with n shards. An n that is not a positive
// power of two is replaced by DefaultShardCount.
func NewWithShards[K comparable, V any](n int) *Map[K, V] {
	if n <= 0 || n&(n-1) != 0 {
		n = DefaultShardCount
	}
	m := &Map[K, V]{
		seed:   maphash.MakeSeed(),
		mask:   uint64(n - 1),
		shards: make([]shard[K, V], n),
	}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[maphash.Comparable(m.seed, key)&m.mask]
}

// Get returns the value under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.RLock()
	v, ok := s.m[key]
	s.RUnlock()
	return v, ok
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// SetIfAbsent stores value under key unless key is present. It reports
// whether it stored.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = value
	return true
}

// Pop removes key and returns what it held.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	v, ok := s.m[key]
	delete(s.m, key)
	return v, ok
}

// Count returns the number of entries. Under concurrent writes the
// result may be stale by the time it returns.
func (m *Map[K, V]) Count() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.RLock()
		n += len(s.m)
		s.RUnlock()
	}
	return n
}
