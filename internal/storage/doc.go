// Package storage provides the embedded key-value engine memscope persists
// derived data into.
//
// The heap index of a snapshot is expensive to build and immutable once
// built, so it is written once into a Badger store keyed by the
// snapshot's identity and read back on the next open.
//
// Subpackages:
//
//   - heapindex: the heap index and its persisted form
package storage
