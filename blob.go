// Variable-length blob storage. Blobs are appended once and never
// updated in place; a field of KindBlob stores the blob's file offset
// as its inline value, with 0 meaning "no blob".
package lattice

import (
	"encoding/binary"
	"fmt"
)

const blobTag = 0x01

// AppendBlob encodes value with the file's codec and appends it to
// the blob region as [tag byte][u32 length][payload]. It returns the
// offset at which the blob starts, suitable for storing in a
// KindBlob field.
func (f *File) AppendBlob(value any) (int64, error) {
	if f.mode == ModeReadOnly {
		return 0, ErrReadOnly
	}
	payload, err := f.codec.Encode(value)
	if err != nil {
		return 0, fmt.Errorf("lattice: encode blob: %w", err)
	}
	if len(payload) > 0xFFFFFFFF {
		return 0, fmt.Errorf("lattice: blob too large: %d bytes", len(payload))
	}
	buf := make([]byte, 5+len(payload))
	buf[0] = blobTag
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	offset, err := f.append(buf)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// GetBlob reads the blob at offset and decodes it into out. A zero
// offset (the "no blob" sentinel) is reported as ErrNotFound.
func (f *File) GetBlob(offset int64, out any) error {
	if offset == 0 {
		return ErrNotFound
	}
	head := make([]byte, 5)
	if err := f.readAt(head, offset); err != nil {
		return fmt.Errorf("lattice: read blob header: %w", err)
	}
	if head[0] != blobTag {
		return fmt.Errorf("%w: blob at %d has tag %d", ErrCorruptHeader, offset, head[0])
	}
	length := binary.LittleEndian.Uint32(head[1:5])
	payload := make([]byte, length)
	if length > 0 {
		if err := f.readAt(payload, offset+5); err != nil {
			return fmt.Errorf("lattice: read blob payload: %w", err)
		}
	}
	return f.codec.Decode(payload, out)
}
