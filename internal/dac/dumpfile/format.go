// Package dumpfile implements the memscope snapshot format and the
// diagnostic component that reads it.
//
// A dump is a JSON document ("memscope-dump/1") carrying the runtime
// metadata next to raw heap segment bytes. Objects inside a segment are
// laid out back to back:
//
//	object:  [type handle][fields...]
//	string:  [type handle][u32 length][UTF-16 code units...]
//	array:   [type handle][u32 length][pad][elements...]
//
// The header is one pointer wide. Every object size is rounded up to the
// pointer size. A zero type handle ends the segment.
package dumpfile

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// FormatVersion identifies the document layout.
const FormatVersion = "memscope-dump/1"

// File is the decoded document.
type File struct {
	Format          string                  `json:"format"`
	PointerSize     int                     `json:"pointer_size"`
	ByteOrder       string                  `json:"byte_order"`
	Runtimes        []domain.RuntimeVersion `json:"runtimes"`
	Types           []domain.TypeDescriptor `json:"types"`
	Segments        []SegmentRecord         `json:"segments"`
	Threads         []domain.Thread         `json:"threads,omitempty"`
	Roots           []domain.Root           `json:"roots,omitempty"`
	Handles         []domain.Handle         `json:"handles,omitempty"`
	FinalizerQueue  []domain.Address        `json:"finalizer_queue,omitempty"`
	BlockingObjects []domain.BlockingObject `json:"blocking_objects,omitempty"`
	Regions         []domain.MemoryRegion   `json:"regions,omitempty"`
	Modules         []domain.Module         `json:"modules,omitempty"`
	ThreadPool      *domain.ThreadPool      `json:"thread_pool,omitempty"`
}

// SegmentRecord is one heap segment and its raw bytes.
type SegmentRecord struct {
	Start domain.Address `json:"start"`
	Kind  string         `json:"kind"`
	Data  []byte         `json:"data"`
}

// End returns the first address past the segment.
func (s SegmentRecord) End() domain.Address {
	return s.Start + domain.Address(len(s.Data))
}

func parseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

func byteOrderName(o binary.ByteOrder) string {
	if o == binary.BigEndian {
		return "big"
	}
	return "little"
}

// lengthOffset is where strings and arrays store their u32 length.
func lengthOffset(ptrSize int) uint32 { return uint32(ptrSize) }

// stringBaseSize is the fixed part of a string: header plus length.
func stringBaseSize(ptrSize int) uint32 { return uint32(ptrSize) + 4 }

// arrayBaseSize is the fixed part of an array: header plus padded length.
func arrayBaseSize(ptrSize int) uint32 { return uint32(2 * ptrSize) }

func alignUp(n uint64, to int) uint64 {
	a := uint64(to)
	return (n + a - 1) &^ (a - 1)
}

// slotSize is the inline size of a field of kind k.
func slotSize(k domain.Kind, ptrSize int) int {
	if k.IsReference() || k == domain.KindPointer {
		return ptrSize
	}
	return k.Size()
}
