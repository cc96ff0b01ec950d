// The group region: a group-header record immediately followed by a
// homogeneous array of entry records, the unit a CLT chain block is
// built from.
package lattice

// Group composes a single-row header schema with a repeated entry
// schema laid out contiguously: [header row][entry row]*n. It is
// deliberately built out of two *Dataset values rather than its own
// record codec, so group blocks reuse the record region's
// status-byte and field-table machinery verbatim.
type Group struct {
	name   string
	header *Dataset
	entry  *Dataset
}

func newGroup(f *File, name string, headerID, entryID int8, headerFields, entryFields []Field) *Group {
	return &Group{
		name:   name,
		header: newDataset(f, name+"_header", headerID, headerFields),
		entry:  newDataset(f, name+"_entry", entryID, entryFields),
	}
}

// NewBlock allocates one header row followed by n entry rows and
// returns the block's offset (the header row's offset).
func (g *Group) NewBlock(n int) (int64, error) {
	block, err := g.header.NewBlock(1)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if _, err := g.entry.NewBlock(n); err != nil {
			return 0, err
		}
	}
	return block, nil
}

// EntryOffset returns the absolute offset of entry i within the
// block starting at block.
func (g *Group) EntryOffset(block int64, i int) int64 {
	return block + int64(g.header.rowSize) + int64(i)*int64(g.entry.rowSize)
}

// HeaderGet reads the group's header row.
func (g *Group) HeaderGet(block int64) (map[string]any, error) {
	return g.header.Get(block)
}

// HeaderSet writes the group's header row.
func (g *Group) HeaderSet(block int64, values map[string]any) error {
	return g.header.Set(block, values)
}

// HeaderSetValue writes a single header field.
func (g *Group) HeaderSetValue(block int64, field string, value any) error {
	return g.header.SetValue(block, field, value)
}

// HeaderGetValue reads a single header field.
func (g *Group) HeaderGetValue(block int64, field string) (any, error) {
	return g.header.GetValue(block, field)
}

// EntryGet reads entry i of the block starting at block.
func (g *Group) EntryGet(block int64, i int) (map[string]any, error) {
	return g.entry.Get(g.EntryOffset(block, i))
}

// EntrySet writes entry i of the block starting at block.
func (g *Group) EntrySet(block int64, i int, values map[string]any) error {
	return g.entry.Set(g.EntryOffset(block, i), values)
}

func (g *Group) spec() groupSpec {
	return groupSpec{
		Name:             g.name,
		HeaderIdentifier: g.header.identifier,
		EntryIdentifier:  g.entry.identifier,
		HeaderFields:     g.header.fields,
		EntryFields:      g.entry.fields,
	}
}
