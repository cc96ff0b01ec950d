// The record region: datasets of typed, fixed-width rows addressed
// by absolute file offset.
//
// Every row begins with a one-byte status tag: +identifier marks a
// live row, -identifier a tombstoned one, and 0 a block slot that was
// allocated but never written. This lets any reader distinguish the
// three states from the row bytes alone, without consulting a
// separate free list.
package lattice

import (
	"encoding/binary"
	"fmt"
)

// Dataset is a schema-bound collection of fixed-width rows sharing
// one record layout, addressed by byte offset within the file.
type Dataset struct {
	file       *File
	name       string
	identifier int8
	fields     []Field
	index      map[string]fieldInfo
	rowSize    int
}

func newDataset(f *File, name string, identifier int8, fields []Field) *Dataset {
	d := &Dataset{
		file:       f,
		name:       name,
		identifier: identifier,
		fields:     fields,
		index:      make(map[string]fieldInfo, len(fields)),
	}
	offset := 1 // status byte
	for _, fld := range fields {
		w := fld.width()
		d.index[fld.Name] = fieldInfo{Offset: offset, Width: w, Field: fld}
		offset += w
	}
	d.rowSize = offset
	return d
}

// RowSize returns the fixed byte width of one row, status byte
// included.
func (d *Dataset) RowSize() int { return d.rowSize }

// NewBlock allocates n contiguous, zero-filled (never-written) rows
// and returns the offset of the first row.
func (d *Dataset) NewBlock(n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("lattice: NewBlock: n must be positive, got %d", n)
	}
	return d.file.allocate(int64(n) * int64(d.rowSize))
}

// Append writes values as a new row at the end of the file and
// returns its offset. A blob field's supplied value is appended to
// the blob store first; only the returned handle is stored inline.
func (d *Dataset) Append(values map[string]any) (int64, error) {
	values, err := d.resolveBlobFields(values)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, d.rowSize)
	buf[0] = byte(d.identifier)
	if err := d.encodeRow(buf, values); err != nil {
		return 0, err
	}
	return d.file.append(buf)
}

// Set writes values into the row at offset, marking it live. A blob
// field's supplied value is appended to the blob store first; only
// the returned handle is stored inline.
func (d *Dataset) Set(offset int64, values map[string]any) error {
	values, err := d.resolveBlobFields(values)
	if err != nil {
		return err
	}
	buf := make([]byte, d.rowSize)
	buf[0] = byte(d.identifier)
	if err := d.encodeRow(buf, values); err != nil {
		return err
	}
	return d.file.writeAt(buf, offset)
}

// resolveBlobFields appends the caller's value for every KindBlob
// field present in values to the blob store, replacing it with the
// returned handle, so Set/Append store a whole row's worth of actual
// values rather than pre-computed handles. Fields absent from values
// are left alone; encodeRow stores their handle as the zero value,
// meaning "no blob".
func (d *Dataset) resolveBlobFields(values map[string]any) (map[string]any, error) {
	var out map[string]any
	for _, fld := range d.fields {
		if fld.Kind != KindBlob {
			continue
		}
		v, ok := values[fld.Name]
		if !ok {
			continue
		}
		handle, err := d.file.AppendBlob(v)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make(map[string]any, len(values))
			for k, existing := range values {
				out[k] = existing
			}
		}
		out[fld.Name] = uint32(handle)
	}
	if out == nil {
		return values, nil
	}
	return out, nil
}

// SetValue writes a single field of the row at offset and marks the
// row live if it was not already.
func (d *Dataset) SetValue(offset int64, field string, value any) error {
	info, ok := d.index[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	status, err := d.Status(offset)
	if err != nil {
		return err
	}
	buf := make([]byte, info.Width)
	if err := encodeField(buf, info.Field, value); err != nil {
		return err
	}
	if err := d.file.writeAt(buf, offset+int64(info.Offset)); err != nil {
		return err
	}
	if status != int8(d.identifier) {
		return d.file.writeAt([]byte{byte(d.identifier)}, offset)
	}
	return nil
}

// SetBlob appends value as a blob and stores its handle in field.
func (d *Dataset) SetBlob(offset int64, field string, value any) error {
	blobOffset, err := d.file.AppendBlob(value)
	if err != nil {
		return err
	}
	return d.SetValue(offset, field, uint32(blobOffset))
}

// Get reads the row at offset. It returns ErrNotFound if the row is
// tombstoned or was never written. A blob field with a non-zero
// handle is resolved to its decoded value; a blob field whose handle
// is 0 (no blob stored) is dropped from the returned row entirely.
func (d *Dataset) Get(offset int64) (map[string]any, error) {
	buf := make([]byte, d.rowSize)
	if err := d.file.readAt(buf, offset); err != nil {
		return nil, err
	}
	if err := d.checkLive(buf[0]); err != nil {
		return nil, err
	}
	return d.decodeRow(buf)
}

// GetValue reads a single field of the row at offset.
func (d *Dataset) GetValue(offset int64, field string) (any, error) {
	info, ok := d.index[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	status, err := d.Status(offset)
	if err != nil {
		return nil, err
	}
	if err := d.checkLive(byte(status)); err != nil {
		return nil, err
	}
	buf := make([]byte, info.Width)
	if err := d.file.readAt(buf, offset+int64(info.Offset)); err != nil {
		return nil, err
	}
	return decodeField(buf, info.Field), nil
}

// GetBlob reads the row's field field as a blob handle and decodes
// the referenced blob into out.
func (d *Dataset) GetBlob(offset int64, field string, out any) error {
	v, err := d.GetValue(offset, field)
	if err != nil {
		return err
	}
	handle, ok := v.(uint32)
	if !ok {
		return fmt.Errorf("lattice: field %q is not a blob field", field)
	}
	return d.file.GetBlob(int64(handle), out)
}

// Delete tombstones the row at offset by negating its status byte.
func (d *Dataset) Delete(offset int64) error {
	status, err := d.Status(offset)
	if err != nil {
		return err
	}
	if status == 0 {
		return ErrNotFound
	}
	if status < 0 {
		return nil // already tombstoned
	}
	return d.file.writeAt([]byte{byte(-status)}, offset)
}

// Status returns the raw status byte of the row at offset as a
// signed int8: positive and equal to the dataset identifier means
// live, negative means tombstoned, zero means never written.
func (d *Dataset) Status(offset int64) (int8, error) {
	var b [1]byte
	if err := d.file.readAt(b[:], offset); err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// Exists reports whether the row at offset is live.
func (d *Dataset) Exists(offset int64) (bool, error) {
	status, err := d.Status(offset)
	if err != nil {
		return false, err
	}
	return status == int8(d.identifier), nil
}

func (d *Dataset) checkLive(status byte) error {
	if int8(status) != int8(d.identifier) {
		return ErrNotFound
	}
	return nil
}

func (d *Dataset) encodeRow(buf []byte, values map[string]any) error {
	for name, value := range values {
		info, ok := d.index[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidField, name)
		}
		if err := encodeField(buf[info.Offset:info.Offset+info.Width], info.Field, value); err != nil {
			return err
		}
	}
	return nil
}

// decodeRow decodes one row's fields, resolving blob handles to their
// stored value along the way. A blob field whose handle is 0 is
// omitted from the result, matching a field that was never set.
func (d *Dataset) decodeRow(buf []byte) (map[string]any, error) {
	row := make(map[string]any, len(d.fields))
	for _, fld := range d.fields {
		info := d.index[fld.Name]
		raw := buf[info.Offset : info.Offset+info.Width]
		if fld.Kind == KindBlob {
			handle := binary.LittleEndian.Uint32(raw)
			if handle == 0 {
				continue
			}
			var v any
			if err := d.file.GetBlob(int64(handle), &v); err != nil {
				return nil, err
			}
			row[fld.Name] = v
			continue
		}
		row[fld.Name] = decodeField(raw, fld)
	}
	return row, nil
}

// Slice reads n consecutive rows starting at block, skipping rows
// that are not live. It supplements the single-row Get/Set API for
// bulk scans over a block allocated with NewBlock.
func (d *Dataset) Slice(block int64, n int) ([]map[string]any, error) {
	buf := make([]byte, int64(n)*int64(d.rowSize))
	if err := d.file.readAt(buf, block); err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		row := buf[i*d.rowSize : (i+1)*d.rowSize]
		if int8(row[0]) != int8(d.identifier) {
			continue
		}
		decoded, err := d.decodeRow(row)
		if err != nil {
			return nil, err
		}
		rows = append(rows, decoded)
	}
	return rows, nil
}

// SetRows writes rows contiguously starting at block, in order. It
// is the bulk counterpart to Set. Blob fields are not resolved: a
// KindBlob value must already be a handle.
func (d *Dataset) SetRows(block int64, rows []map[string]any) error {
	buf := make([]byte, int64(len(rows))*int64(d.rowSize))
	for i, values := range rows {
		row := buf[i*d.rowSize : (i+1)*d.rowSize]
		row[0] = byte(d.identifier)
		if err := d.encodeRow(row, values); err != nil {
			return err
		}
	}
	return d.file.writeAt(buf, block)
}

func (d *Dataset) spec() datasetSpec {
	return datasetSpec{Name: d.name, Identifier: d.identifier, Fields: d.fields}
}
