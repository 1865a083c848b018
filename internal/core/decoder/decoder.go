// Package decoder reads primitive, string and field values out of snapshot
// memory.
//
// Every read goes through dac.Heap and so must run on the session worker.
// Failures never panic: inaccessible memory, unknown fields and garbled
// layouts are reported as domain.ErrDecodeFailure.
package decoder

import (
	"math"
	"unicode/utf16"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
)

// MaxStringLength bounds the UTF-16 code units read for one string. Larger
// lengths are treated as garbled memory.
const MaxStringLength = 1 << 24

// Decoder decodes values from one heap.
type Decoder struct {
	heap dac.Heap
}

// New returns a decoder over h.
func New(h dac.Heap) *Decoder {
	return &Decoder{heap: h}
}

// IsSimple reports whether values of t decode to a Go value rather than
// an address: boxed primitives and strings.
func IsSimple(t domain.TypeDescriptor) bool {
	return t.IsPrimitive() || t.IsString()
}

// GetSimpleValue decodes the object at addr. Simple types yield their
// value; anything else yields domain.Address(addr) unchanged.
func (d *Decoder) GetSimpleValue(addr domain.Address, t domain.TypeDescriptor) (v any, err error) {
	defer recoverDecode(&err)

	if !IsSimple(t) {
		return addr, nil
	}
	if addr == 0 {
		return nil, nil
	}
	if t.IsString() {
		return d.readString(addr)
	}
	return d.readScalar(addr+domain.Address(d.heap.PointerSize()), t.Kind)
}

// GetFieldValue follows path from the object at addr. Every field but the
// last must be a reference; a null reference anywhere along the way yields
// (nil, nil) without resolving the rest of the path.
//
// The last field decodes inline when primitive. When it is a reference the
// target's simple value is returned if the target is simple, otherwise
// its address.
func (d *Decoder) GetFieldValue(addr domain.Address, t domain.TypeDescriptor, path []string) (v any, err error) {
	defer recoverDecode(&err)

	if len(path) == 0 {
		return nil, domain.ErrDecodeFailure.WithCause(domain.ErrInvalidArgument.WithDetails("empty field path"))
	}

	cur, curType := addr, t
	for i, name := range path {
		if cur == 0 {
			return nil, nil
		}
		f, ok := curType.FieldByName(name)
		if !ok {
			return nil, domain.ErrDecodeFailure.WithCause(
				domain.ErrFieldNotFound.WithDetailsf("%s.%s", curType.Name, name))
		}
		slot := cur + domain.Address(f.Offset)
		last := i == len(path)-1

		if !f.Kind.IsReference() {
			if !last {
				return nil, domain.ErrDecodeFailure.WithDetailsf("%s.%s is %v, not a reference", curType.Name, name, f.Kind)
			}
			return d.readScalar(slot, f.Kind)
		}

		ref, err := d.readPointer(slot)
		if err != nil {
			return nil, err
		}
		if ref == 0 {
			return nil, nil
		}
		next, err := d.heap.ObjectType(ref)
		if err != nil {
			return nil, domain.ErrDecodeFailure.WithCause(err)
		}
		cur, curType = ref, next.Descriptor()

		if last {
			if IsSimple(curType) {
				return d.GetSimpleValue(cur, curType)
			}
			return cur, nil
		}
	}
	return nil, nil
}

func recoverDecode(err *error) {
	if r := recover(); r != nil {
		*err = domain.ErrDecodeFailure.WithDetailsf("panic: %v", r)
	}
}

func (d *Decoder) read(addr domain.Address, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := d.heap.ReadMemory(addr, buf); err != nil {
		return nil, domain.ErrDecodeFailure.WithDetails(addr.String()).WithCause(err)
	}
	return buf, nil
}

func (d *Decoder) readPointer(addr domain.Address) (domain.Address, error) {
	b, err := d.read(addr, d.heap.PointerSize())
	if err != nil {
		return 0, err
	}
	if len(b) == 4 {
		return domain.Address(d.heap.ByteOrder().Uint32(b)), nil
	}
	return domain.Address(d.heap.ByteOrder().Uint64(b)), nil
}

func (d *Decoder) readString(addr domain.Address) (string, error) {
	ptr := domain.Address(d.heap.PointerSize())
	lb, err := d.read(addr+ptr, 4)
	if err != nil {
		return "", err
	}
	n := d.heap.ByteOrder().Uint32(lb)
	if n > MaxStringLength {
		return "", domain.ErrDecodeFailure.WithDetailsf("string at %v: length %d", addr, n)
	}
	raw, err := d.read(addr+ptr+4, int(n)*2)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = d.heap.ByteOrder().Uint16(raw[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// readScalar decodes a primitive of kind k stored at addr. Chars decode to
// a one-character string, pointers to uint64.
func (d *Decoder) readScalar(addr domain.Address, k domain.Kind) (any, error) {
	if k == domain.KindPointer {
		p, err := d.readPointer(addr)
		return uint64(p), err
	}
	size := k.Size()
	if size == 0 {
		return nil, domain.ErrDecodeFailure.WithDetailsf("kind %v has no inline value", k)
	}
	b, err := d.read(addr, size)
	if err != nil {
		return nil, err
	}
	o := d.heap.ByteOrder()

	switch k {
	case domain.KindBoolean:
		return b[0] != 0, nil
	case domain.KindChar:
		return string(utf16.Decode([]uint16{o.Uint16(b)})), nil
	case domain.KindInt8:
		return int8(b[0]), nil
	case domain.KindUint8:
		return b[0], nil
	case domain.KindInt16:
		return int16(o.Uint16(b)), nil
	case domain.KindUint16:
		return o.Uint16(b), nil
	case domain.KindInt32:
		return int32(o.Uint32(b)), nil
	case domain.KindUint32:
		return o.Uint32(b), nil
	case domain.KindInt64:
		return int64(o.Uint64(b)), nil
	case domain.KindUint64:
		return o.Uint64(b), nil
	case domain.KindFloat32:
		return math.Float32frombits(o.Uint32(b)), nil
	case domain.KindFloat64:
		return math.Float64frombits(o.Uint64(b)), nil
	}
	return nil, domain.ErrDecodeFailure.WithDetailsf("unsupported kind %v", k)
}
