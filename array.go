// The array region: homogeneous fixed-width element blocks prefixed
// by a one-byte schema identifier, used for LT/CLT bloom-filter bit
// arrays among other things.
//
// Two concrete instantiations are provided, Uint64Array and
// BoolArray. The layered hash tables use only BoolArray, for their
// bloom filters; Uint64Array is a public building block with no
// internal caller. See DESIGN.md for why the general typed array
// this generalises was narrowed this far.
package lattice

import "encoding/binary"

// Array is a block of n fixed-width elements of type T, prefixed by
// a one-byte schema identifier.
type Array[T any] struct {
	file       *File
	name       string
	identifier int8
	elemWidth  int
	encode     func([]byte, T)
	decode     func([]byte) T
}

// Uint64Array is a block of 8-byte unsigned integers, e.g. a table of
// record offsets with 0 meaning empty.
type Uint64Array = Array[uint64]

// BoolArray backs the boolean specialisation of the array region
// (one byte per element).
type BoolArray = Array[bool]

func newUint64Array(f *File, name string, identifier int8) *Uint64Array {
	return &Array[uint64]{
		file: f, name: name, identifier: identifier, elemWidth: 8,
		encode: func(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) },
		decode: func(b []byte) uint64 { return binary.LittleEndian.Uint64(b) },
	}
}

func newBoolArray(f *File, name string, identifier int8) *BoolArray {
	return &Array[bool]{
		file: f, name: name, identifier: identifier, elemWidth: 1,
		encode: func(b []byte, v bool) {
			if v {
				b[0] = 1
			} else {
				b[0] = 0
			}
		},
		decode: func(b []byte) bool { return b[0] != 0 },
	}
}

// NewBlock allocates a new array block of n zero-valued elements
// behind a one-byte identifier prefix and returns its offset.
func (a *Array[T]) NewBlock(n int) (int64, error) {
	buf := make([]byte, 1+n*a.elemWidth)
	buf[0] = byte(a.identifier)
	return a.file.append(buf)
}

// Get reads the i'th element of the array block at offset.
func (a *Array[T]) Get(block int64, i int) (T, error) {
	var zero T
	buf := make([]byte, a.elemWidth)
	if err := a.file.readAt(buf, block+1+int64(i)*int64(a.elemWidth)); err != nil {
		return zero, err
	}
	return a.decode(buf), nil
}

// Set writes the i'th element of the array block at offset.
func (a *Array[T]) Set(block int64, i int, v T) error {
	buf := make([]byte, a.elemWidth)
	a.encode(buf, v)
	return a.file.writeAt(buf, block+1+int64(i)*int64(a.elemWidth))
}

// GetSlice reads n consecutive elements starting at index 0 of the
// array block at offset.
func (a *Array[T]) GetSlice(block int64, n int) ([]T, error) {
	buf := make([]byte, n*a.elemWidth)
	if err := a.file.readAt(buf, block+1); err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		out[i] = a.decode(buf[i*a.elemWidth : (i+1)*a.elemWidth])
	}
	return out, nil
}

func (a *Array[T]) spec(kind arrayKind) arraySpec {
	return arraySpec{Name: a.name, Identifier: a.identifier, Kind: kind}
}
