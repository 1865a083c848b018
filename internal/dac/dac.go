// Package dac defines the diagnostic access layer: the memory target a
// snapshot is read through, the runtime handle created over it, and the
// registry of components able to create such handles.
//
// Implementations are not safe for concurrent use and may be bound to the
// OS thread that created them. Callers serialize all access through a
// single worker.
package dac

import (
	"encoding/binary"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// DataTarget is an opened snapshot, before any runtime handle exists.
type DataTarget interface {
	// Path returns the file the target was opened from.
	Path() string

	// RuntimeVersions lists the managed runtimes declared by the snapshot,
	// in declaration order.
	RuntimeVersions() []domain.RuntimeVersion

	PointerSize() int
	ByteOrder() binary.ByteOrder

	// ReadMemory copies target memory at addr into buf and returns the
	// number of bytes read. A short read returns a non-nil error.
	ReadMemory(addr domain.Address, buf []byte) (int, error)

	Close() error
}

// Provider opens memory targets.
type Provider interface {
	Open(path string) (DataTarget, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(path string) (DataTarget, error)

// Open calls f(path).
func (f ProviderFunc) Open(path string) (DataTarget, error) { return f(path) }

// Locator resolves the diagnostic component matching a runtime version.
type Locator interface {
	FindComponent(v domain.RuntimeVersion) (string, error)
}

// Component creates runtime handles for the runtime versions it supports.
type Component interface {
	Name() string
	Supports(v domain.RuntimeVersion) bool
	CreateRuntime(t DataTarget) (Runtime, error)
}

// Runtime is the runtime handle: the root of all heap and runtime queries.
type Runtime interface {
	Version() domain.RuntimeVersion
	Heap() Heap

	Threads() ([]domain.Thread, error)
	Roots() ([]domain.Root, error)
	Handles() ([]domain.Handle, error)
	FinalizerQueue() ([]domain.Address, error)
	BlockingObjects() ([]domain.BlockingObject, error)
	Regions() ([]domain.MemoryRegion, error)
	Modules() ([]domain.Module, error)
	ThreadPool() (domain.ThreadPool, error)

	// Close releases the handle. The DataTarget stays open.
	Close() error
}

// MemoryReader reads raw target memory.
type MemoryReader interface {
	PointerSize() int
	ByteOrder() binary.ByteOrder
	ReadMemory(addr domain.Address, buf []byte) (int, error)
}

// WalkFunc is called once per object during a segment walk. Returning a
// non-nil error stops the walk and is returned by WalkObjects.
type WalkFunc func(addr domain.Address, t Type, size uint64) error

// Heap is the managed heap of a runtime.
type Heap interface {
	MemoryReader

	// Segments returns the heap segments sorted by start address.
	Segments() []domain.Segment

	// Types returns the type universe in a stable enumeration order.
	Types() []Type

	TypeByHandle(handle uint64) (Type, bool)
	TypeByName(name string) (Type, bool)

	// ObjectType resolves the type of the object at addr.
	ObjectType(addr domain.Address) (Type, error)

	// WalkObjects visits every object of seg in address order.
	WalkObjects(seg domain.Segment, fn WalkFunc) error
}

// Type is runtime type metadata.
type Type interface {
	Name() string
	Handle() uint64

	// Descriptor returns an immutable copy of the type's metadata.
	Descriptor() domain.TypeDescriptor

	// ObjectSize returns the size in bytes of the instance at addr.
	ObjectSize(addr domain.Address) (uint64, error)

	// EnumerateReferences calls fn for every non-null reference held by
	// the instance at addr. It stops early when fn returns false.
	EnumerateReferences(addr domain.Address, fn func(target domain.Address) bool) error
}
