package lattice

import "testing"

func TestEncodeDecodeFieldRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		field Field
		value any
	}{
		{"int8", Field{Name: "a", Kind: KindInt8}, int8(-12)},
		{"uint8", Field{Name: "a", Kind: KindUint8}, uint8(200)},
		{"int16", Field{Name: "a", Kind: KindInt16}, int16(-1000)},
		{"uint32", Field{Name: "a", Kind: KindUint32}, uint32(4000000000)},
		{"int64", Field{Name: "a", Kind: KindInt64}, int64(-1 << 40)},
		{"uint64", Field{Name: "a", Kind: KindUint64}, uint64(1 << 60)},
		{"float32", Field{Name: "a", Kind: KindFloat32}, float32(3.5)},
		{"float64", Field{Name: "a", Kind: KindFloat64}, float64(-2.25)},
		{"string", Field{Name: "a", Kind: KindString, Len: 8}, "hello"},
		{"blob handle", Field{Name: "a", Kind: KindBlob}, uint32(123456)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := make([]byte, c.field.width())
			if err := encodeField(buf, c.field, c.value); err != nil {
				t.Fatalf("encodeField: %v", err)
			}
			got := decodeField(buf, c.field)
			if got != c.value {
				t.Errorf("got %v (%T), want %v (%T)", got, got, c.value, c.value)
			}
		})
	}
}

func TestEncodeFieldCoercesNumericTypes(t *testing.T) {
	f := Field{Name: "n", Kind: KindUint64}
	buf := make([]byte, f.width())
	// int literal decays to Go's default int type, not uint64; the
	// reflect-based coercion in toUint64 must still accept it.
	if err := encodeField(buf, f, 42); err != nil {
		t.Fatalf("encodeField with int literal: %v", err)
	}
	if got := decodeField(buf, f); got != uint64(42) {
		t.Errorf("got %v, want 42", got)
	}
}

func TestEncodeFieldStringTruncatesAndPads(t *testing.T) {
	f := Field{Name: "s", Kind: KindString, Len: 4}
	buf := make([]byte, f.width())
	if err := encodeField(buf, f, "ab"); err != nil {
		t.Fatalf("encodeField: %v", err)
	}
	if got := decodeField(buf, f); got != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
	if err := encodeField(buf, f, "abcdef"); err != nil {
		t.Fatalf("encodeField: %v", err)
	}
	if got := decodeField(buf, f); got != "abcd" {
		t.Errorf("got %q, want %q", got, "abcd")
	}
}

func TestEncodeFieldRejectsWrongType(t *testing.T) {
	f := Field{Name: "s", Kind: KindString, Len: 4}
	buf := make([]byte, f.width())
	if err := encodeField(buf, f, 42); err == nil {
		t.Error("expected error encoding int into string field")
	}
}
