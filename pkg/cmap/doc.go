// Package cmap provides a sharded concurrent map.
//
// The session manager keys open snapshot sessions by id in one:
//
//	m := cmap.New[string, *session.Session]()
//	if !m.SetIfAbsent(id, s) {
//		// id taken
//	}
//	s, ok := m.Get(id)
//
// All and Values lock one shard at a time, so they are not a consistent
// snapshot of the whole map.
package cmap
