package domain

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"0x1000", 0x1000, false},
		{"1f00", 0x1f00, false},
		{"0XABC", 0xabc, false},
		{"#4096", 4096, false},
		{"", 0, true},
		{"zz", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestKind_RoundTripNames(t *testing.T) {
	for k := KindUnknown; k <= KindPointer; k++ {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q) error = %v", k.String(), err)
		}
		if got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if _, err := ParseKind("decimal"); err == nil {
		t.Error("ParseKind should reject unknown names")
	}
}

func TestKind_Classification(t *testing.T) {
	if !KindString.IsReference() || !KindArray.IsReference() || !KindObject.IsReference() {
		t.Error("object, string and array slots are references")
	}
	if KindInt32.IsReference() {
		t.Error("int32 is not a reference")
	}
	if !KindFloat64.IsPrimitive() || KindString.IsPrimitive() {
		t.Error("primitive classification is wrong")
	}
	if KindChar.Size() != 2 || KindInt64.Size() != 8 || KindPointer.Size() != 0 {
		t.Error("unexpected kind sizes")
	}
}

func TestTypeDescriptor_FieldByName(t *testing.T) {
	td := TypeDescriptor{
		Name: "System.Threading.Thread",
		Kind: KindObject,
		Fields: []FieldDescriptor{
			{Name: "m_Name", Offset: 8, Kind: KindString},
			{Name: "m_Priority", Offset: 16, Kind: KindInt32},
		},
	}

	f, ok := td.FieldByName("m_Priority")
	if !ok || f.Offset != 16 {
		t.Errorf("FieldByName(m_Priority) = %+v, %v", f, ok)
	}
	if _, ok := td.FieldByName("m_Missing"); ok {
		t.Error("FieldByName should miss unknown fields")
	}
	if td.IsString() || td.IsPrimitive() || td.IsArray() {
		t.Error("thread type is a plain object")
	}
}

func TestRuntimeVersion_Major(t *testing.T) {
	if got := (RuntimeVersion{Flavor: "coreclr", Version: "8.0.4"}).Major(); got != "8" {
		t.Errorf("Major() = %q, want 8", got)
	}
	if got := (RuntimeVersion{Flavor: "coreclr", Version: "9"}).Major(); got != "9" {
		t.Errorf("Major() = %q, want 9", got)
	}
}

func TestSegment_Contains(t *testing.T) {
	s := Segment{Start: 0x1000, End: 0x2000}
	if !s.Contains(0x1000) || s.Contains(0x2000) || s.Length() != 0x1000 {
		t.Error("segment bounds are half-open [Start, End)")
	}
}

func TestAddress_Text(t *testing.T) {
	b, err := Address(0x10020).MarshalText()
	if err != nil || string(b) != "0x0000000000010020" {
		t.Fatalf("MarshalText() = %q, %v", b, err)
	}
	var a Address
	if err := a.UnmarshalText(b); err != nil || a != 0x10020 {
		t.Errorf("UnmarshalText(%q) = %v, %v", b, a, err)
	}
	if err := a.UnmarshalText([]byte("zz")); err == nil {
		t.Error("UnmarshalText(zz) succeeded")
	}
}
