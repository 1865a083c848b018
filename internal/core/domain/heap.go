package domain

import (
	"fmt"
	"strings"
)

// Address is a location in the snapshot's memory.
//
// Decoders return Address for object references so callers can tell a
// reference apart from a decoded integer field.
type Address uint64

// String formats the address as 0x-prefixed hex.
func (a Address) String() string {
	return fmt.Sprintf("%#016x", uint64(a))
}

// MarshalText encodes the address as hex, so JSON and YAML output match
// what ParseAddress accepts.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses any form ParseAddress accepts.
func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAddress parses a hex ("0x1f00" or "1f00") or decimal ("#7936") address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidArgument.WithDetails("empty address")
	}
	var v uint64
	var err error
	if rest, ok := strings.CutPrefix(s, "#"); ok {
		_, err = fmt.Sscanf(rest, "%d", &v)
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		_, err = fmt.Sscanf(s, "%x", &v)
	}
	if err != nil {
		return 0, ErrInvalidArgument.WithDetailsf("address %q", s).WithCause(err)
	}
	return Address(v), nil
}

// TypeID is the dense id the heap index assigns to a type.
// Valid ids start at 1.
type TypeID int32

// InvalidTypeID is never assigned to a type.
const InvalidTypeID TypeID = 0

// Kind classifies a type or field for decoding purposes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindObject
	KindString
	KindArray
	KindBoolean
	KindChar
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindPointer
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindObject:  "object",
	KindString:  "string",
	KindArray:   "array",
	KindBoolean: "bool",
	KindChar:    "char",
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindPointer: "pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return KindUnknown, ErrInvalidArgument.WithDetailsf("unknown kind %q", s)
}

// IsReference reports whether a slot of this kind holds an object reference.
func (k Kind) IsReference() bool {
	return k == KindObject || k == KindString || k == KindArray
}

// IsPrimitive reports whether values of this kind are decoded inline.
func (k Kind) IsPrimitive() bool {
	return k >= KindBoolean && k <= KindPointer
}

// Size returns the inline size of a primitive kind, or 0 when it depends
// on the target pointer size (references and KindPointer).
func (k Kind) Size() int {
	switch k {
	case KindBoolean, KindInt8, KindUint8:
		return 1
	case KindChar, KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	}
	return 0
}

// FieldDescriptor describes one instance field of a type.
type FieldDescriptor struct {
	Name     string `json:"name"`
	Offset   uint32 `json:"offset"`
	Kind     Kind   `json:"kind"`
	TypeName string `json:"type_name,omitempty"`
}

// TypeDescriptor is an immutable copy of runtime type metadata.
type TypeDescriptor struct {
	Name          string            `json:"name"`
	Handle        uint64            `json:"handle"`
	Kind          Kind              `json:"kind"`
	BaseSize      uint32            `json:"base_size"`
	ComponentSize uint32            `json:"component_size,omitempty"`
	ElementKind   Kind              `json:"element_kind,omitempty"`
	ElementName   string            `json:"element_name,omitempty"`
	Fields        []FieldDescriptor `json:"fields,omitempty"`
}

// IsString reports whether the type is the runtime string type.
func (t TypeDescriptor) IsString() bool { return t.Kind == KindString }

// IsPrimitive reports whether the type is a boxed primitive.
func (t TypeDescriptor) IsPrimitive() bool { return t.Kind.IsPrimitive() }

// IsArray reports whether the type is an array type.
func (t TypeDescriptor) IsArray() bool { return t.Kind == KindArray }

// FieldByName returns the named field.
func (t TypeDescriptor) FieldByName(name string) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// ObjectRef is an address plus its resolved type. It is a view into
// snapshot memory and is only meaningful while the session is open.
type ObjectRef struct {
	Address Address        `json:"address"`
	Type    TypeDescriptor `json:"type"`
}

// Edge means the object at From holds a live reference to the object at To.
type Edge struct {
	From Address `json:"from"`
	To   Address `json:"to"`
}

// TypeStat aggregates the instances of one type.
type TypeStat struct {
	TypeID    TypeID `json:"type_id"`
	Name      string `json:"name"`
	Count     uint64 `json:"count"`
	TotalSize uint64 `json:"total_size"`
}

// ThreadProperty holds the decoded fields of one managed thread object.
type ThreadProperty struct {
	Address   Address `json:"address"`
	ManagedID int32   `json:"managed_id"`
	Priority  int32   `json:"priority"`
	Name      string  `json:"name"`
}

// RuntimeVersion identifies the runtime a dump was captured from.
type RuntimeVersion struct {
	Flavor  string `json:"flavor"`
	Version string `json:"version"`
}

// Major returns the leading dotted component of the version.
func (v RuntimeVersion) Major() string {
	major, _, _ := strings.Cut(v.Version, ".")
	return major
}

func (v RuntimeVersion) String() string {
	return v.Flavor + " " + v.Version
}
