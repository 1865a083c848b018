// Package domain defines the core domain models for memscope.
//
// Domain models are plain values copied out of a snapshot; none of them
// holds a handle into the diagnostic layer. This package contains:
//
//   - Heap model: Address, TypeID, Kind, TypeDescriptor, ObjectRef, Edge
//   - Aggregates: TypeStat, ThreadProperty
//   - Runtime views: Segment, Thread, Root, Handle, BlockingObject, ...
//   - Errors: coded DomainError values (INIT, HEAP, INDEX, DEC, SESS, WRK)
package domain
