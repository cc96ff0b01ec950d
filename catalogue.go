// The schema catalogue: the declarative description of every
// dataset, array, group, and data structure living in a file. The
// catalogue is built up in memory as the caller declares schemas,
// then serialized once, at the first transaction, immediately after
// the file's fixed 16-byte preamble and before the header row.
package lattice

// datasetSpec is the persisted description of one record-region
// dataset: enough to rebuild a *Dataset on reopen without the
// caller re-declaring its fields.
type datasetSpec struct {
	Name       string  `json:"name"`
	Identifier int8    `json:"identifier"`
	Fields     []Field `json:"fields"`
}

// arrayKind distinguishes the two concrete array element encodings
// this engine implements; see DESIGN.md for why the general typed
// array of the system this engine generalises was narrowed to these
// two. LT and CLT use only the bool kind, for their bloom filters.
type arrayKind string

const (
	arrayKindUint64 arrayKind = "uint64"
	arrayKindBool   arrayKind = "bool"
)

type arraySpec struct {
	Name       string    `json:"name"`
	Identifier int8      `json:"identifier"`
	Kind       arrayKind `json:"kind"`
}

type groupSpec struct {
	Name             string  `json:"name"`
	HeaderIdentifier int8    `json:"header_identifier"`
	EntryIdentifier  int8    `json:"entry_identifier"`
	HeaderFields     []Field `json:"header_fields"`
	EntryFields      []Field `json:"entry_fields"`
}

// structureKind names the data structure implementation a
// structureSpec binds to on reopen.
type structureKind string

const (
	structureKindLT  structureKind = "lt"
	structureKindCLT structureKind = "clt"
)

// structureSpec is the persisted description of an LT or CLT.
//
// An LT's own mutable state — its layer descriptors — is not stored
// here either: it lives in a small fixed-size dataset block of its
// own (LayerIdentifier), rooted by a single header field named
// "<name>_root" and a "<name>_count" active-layer counter, so the
// header row stays a fixed size no matter how many layers a table
// grows to. A CLT has no such header-rooted state: each of its chains
// is independently addressed by its own table_id, which the caller
// is responsible for keeping track of (see clt.go).
type structureSpec struct {
	Name string        `json:"name"`
	Kind structureKind `json:"kind"`

	KeyLen int `json:"key_len,omitempty"`

	// Identifiers of the private datasets/arrays this structure owns.
	SlotIdentifier  int8 `json:"slot_identifier"`
	BloomIdentifier int8 `json:"bloom_identifier,omitempty"`
	LayerIdentifier int8 `json:"layer_identifier"`

	// EntryFields and KeyField describe a CLT's caller-configurable
	// entry schema: each table's rows have these fields, and KeyField
	// names the one used for dedup/lookup. LT's entry schema is fixed
	// ({key: string[KeyLen], value: uint64}) and needs neither.
	EntryFields []Field `json:"entry_fields,omitempty"`
	KeyField    string  `json:"key_field,omitempty"`

	// InitialP is a CLT's p_init, the growth exponent of a freshly
	// created table's first block.
	InitialP int `json:"initial_p,omitempty"`

	// Tuning parameters, copied from the Params the caller supplied
	// at creation time.
	InitialCapacity int     `json:"initial_capacity,omitempty"`
	LoadFactor      float64 `json:"load_factor"`
	GrowthFactor    float64 `json:"growth_factor,omitempty"`
	BloomBitsPerKey int     `json:"bloom_bits_per_key"`
	BloomSeed       int64   `json:"bloom_seed"`
	CacheLen        int     `json:"cache_len,omitempty"`
}

// catalogue is the full schema description of a file, written once
// as a length-prefixed JSON record between the preamble and the
// header row.
type catalogue struct {
	HeaderFields []Field         `json:"header_fields"`
	Datasets     []datasetSpec   `json:"datasets"`
	Arrays       []arraySpec     `json:"arrays"`
	Groups       []groupSpec     `json:"groups"`
	Structures   []structureSpec `json:"structures"`
}
