// Whole-file structural iteration over the plain datasets and blobs
// a caller created directly with CreateDataset/AppendBlob.
//
// It does not attempt to walk the private record blocks an LT or CLT
// owns: those grow and shrink by the table's own rules, interleaved
// with array-region blocks whose length isn't recoverable from a row
// identifier alone, so a byte-level scan across them isn't
// well-defined. Use LT.Iterate or CLT.Iterate for those; this is the
// counterpart for the plain key/value and blob usage that doesn't
// go through a layered hash table at all. Such a block is not
// skipped either: the scan ends where it meets one.
package lattice

import (
	"encoding/binary"
	"iter"
)

// Record pairs a decoded dataset row with the name of the dataset it
// came from.
type Record struct {
	Dataset string
	Offset  int64
	Row     map[string]any
}

// Iterate walks the table region from its start, yielding live rows
// of plain datasets and skipping tombstoned rows, never written gaps,
// and blobs. It stops at the first block whose identifier byte is not
// a plain dataset's (an array, group, LT or CLT block) or at the first
// read or decode error; rows after that point are not yielded.
func (f *File) Iterate() iter.Seq[Record] {
	byID := make(map[int8]*Dataset, len(f.datasets))
	for _, d := range f.datasets {
		byID[d.identifier] = d
	}

	return func(yield func(Record) bool) {
		index := f.tableStart
		limit := f.size
		var idByte [1]byte
		for index < limit {
			if err := f.readAt(idByte[:], index); err != nil {
				return
			}
			id := int8(idByte[0])

			switch {
			case id == 0:
				index++
			case id == blobTag:
				var lenBuf [4]byte
				if err := f.readAt(lenBuf[:], index+1); err != nil {
					return
				}
				size := binary.LittleEndian.Uint32(lenBuf[:])
				index += 5 + int64(size)
			case id < 0:
				d, ok := byID[-id]
				if !ok {
					return
				}
				index += int64(d.rowSize)
			default:
				d, ok := byID[id]
				if !ok {
					return
				}
				buf := make([]byte, d.rowSize)
				if err := f.readAt(buf, index); err != nil {
					return
				}
				row, err := d.decodeRow(buf)
				if err != nil {
					return
				}
				if !yield(Record{Dataset: d.name, Offset: index, Row: row}) {
					return
				}
				index += int64(d.rowSize)
			}
		}
	}
}
