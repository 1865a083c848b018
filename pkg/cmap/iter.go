package cmap

import "iter"

// All iterates over the entries one shard at a time, holding that
// shard's read lock while yielding. yield must not write to the map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.shards {
			if !m.shards[i].each(yield) {
				return
			}
		}
	}
}

func (s *shard[K, V]) each(yield func(K, V) bool) bool {
	s.RLock()
	defer s.RUnlock()
	for k, v := range s.m {
		if !yield(k, v) {
			return false
		}
	}
	return true
}

// Values returns every value in no particular order.
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, m.Count())
	for _, v := range m.All() {
		out = append(out, v)
	}
	return out
}

// Drain empties the map shard by shard and returns what it removed.
// Entries added to an already drained shard stay behind.
func (m *Map[K, V]) Drain() []V {
	var out []V
	for i := range m.shards {
		s := &m.shards[i]
		s.Lock()
		for _, v := range s.m {
			out = append(out, v)
		}
		clear(s.m)
		s.Unlock()
	}
	return out
}
