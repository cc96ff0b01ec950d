// The core engine type: file lifecycle, the fixed preamble and
// schema catalogue, and the low-level read/write/allocate/append
// primitives every region builds on.
//
// Layout of an open file:
//
//	[0)                          16-byte preamble (magic, u16 format version, zero padding)
//	[16, 16+4+catLen)            u32 length prefix + JSON-encoded catalogue
//	[headerOffset, tableStart)   the header row (dataset identifier 1)
//	[tableStart, EOF)            record, array, group, and blob regions
//
// The catalogue is written exactly once, at the first transaction
// opened on a freshly created file. Every dataset, array, group, and
// data structure must be declared before that point; the header
// row's size is fixed at dump time and never changes afterward.
package lattice

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const (
	preambleSize  = 16
	formatVersion = 1
)

var magicBytes = [4]byte{'L', 'T', 'D', 'B'}

// Mode controls whether a File accepts mutating operations.
type Mode int

const (
	ModeReadWrite Mode = iota
	ModeReadOnly
)

// Config holds tunable engine parameters. The zero value is not
// directly usable; Open fills in defaults for any field left zero.
type Config struct {
	// HashAlgorithm selects the primary hash family LT and CLT use for
	// slot/probe-window selection (AlgXXHash3, AlgFNV1a, or
	// AlgBlake2b). Defaults to AlgXXHash3.
	HashAlgorithm int

	// AllocationStep is the minimum slack, in bytes, the file grows
	// by beyond what an append logically needs, so repeated small
	// appends don't each force a filesystem metadata update.
	// Defaults to 10000.
	AllocationStep int64

	// SyncWrites calls fsync at the end of every outermost
	// transaction. Off by default.
	SyncWrites bool

	// Codec encodes and decodes blob values. Defaults to JSONCodec{}.
	Codec Codec
}

func (c *Config) setDefaults() {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = AlgXXHash3
	}
	if c.AllocationStep == 0 {
		c.AllocationStep = 10000
	}
	if c.Codec == nil {
		c.Codec = JSONCodec{}
	}
}

// dataStructure is the hook LT and CLT implement so File can declare,
// create, and reload them generically.
type dataStructure interface {
	structureName() string
	spec() structureSpec
	create(f *File) error
	load(f *File) error
}

// File is an open lattice database file.
type File struct {
	path   string
	f      *os.File
	lock   *fileLock
	mode   Mode
	config Config
	codec  Codec

	cat          *catalogue
	header       *Dataset
	headerOffset int64
	tableStart   int64

	size     int64 // logical end of allocated regions
	physical int64 // actual on-disk file size (>= size)
	dumped   bool
	txDepth  int

	datasets   map[string]*Dataset
	arraysU    map[string]*Uint64Array
	arraysB    map[string]*BoolArray
	groups     map[string]*Group
	structures map[string]dataStructure

	nextIdentifier int8
}

// Open opens the file at path, creating it if it does not exist.
func Open(path string, mode Mode, config Config) (*File, error) {
	config.setDefaults()

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, fmt.Errorf("lattice: stat %s: %w", path, statErr)
	}

	flag := os.O_RDWR | os.O_CREATE
	if mode == ModeReadOnly {
		flag = os.O_RDONLY
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lattice: create directory for %s: %w", path, err)
	}
	osFile, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lattice: open %s: %w", path, err)
	}

	f := &File{
		path:       path,
		f:          osFile,
		lock:       &fileLock{f: osFile},
		mode:       mode,
		config:     config,
		codec:      config.Codec,
		datasets:   make(map[string]*Dataset),
		arraysU:    make(map[string]*Uint64Array),
		arraysB:    make(map[string]*BoolArray),
		groups:     make(map[string]*Group),
		structures: make(map[string]dataStructure),
		nextIdentifier: 3,
	}

	lockMode := LockExclusive
	if mode == ModeReadOnly {
		lockMode = LockShared
	}
	if err := f.lock.Lock(lockMode); err != nil {
		osFile.Close()
		return nil, fmt.Errorf("lattice: lock %s: %w", path, err)
	}

	if exists {
		if err := f.reopen(); err != nil {
			f.lock.Unlock()
			osFile.Close()
			return nil, err
		}
	} else {
		if mode == ModeReadOnly {
			f.lock.Unlock()
			osFile.Close()
			return nil, fmt.Errorf("lattice: %s does not exist", path)
		}
		f.cat = &catalogue{}
	}

	return f, nil
}

// Close releases the file's OS lock and handle.
func (f *File) Close() error {
	f.lock.Unlock()
	return f.f.Close()
}

// reopen loads the preamble and catalogue of an existing file and
// rebuilds every registered dataset, array, group, and structure.
func (f *File) reopen() error {
	var pre [preambleSize]byte
	if err := f.readAt(pre[:], 0); err != nil {
		return fmt.Errorf("lattice: read preamble: %w", err)
	}
	if [4]byte(pre[0:4]) != magicBytes {
		return fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}

	var lenBuf [4]byte
	if err := f.readAt(lenBuf[:], preambleSize); err != nil {
		return fmt.Errorf("lattice: read catalogue length: %w", err)
	}
	catLen := binary.LittleEndian.Uint32(lenBuf[:])
	catBytes := make([]byte, catLen)
	if err := f.readAt(catBytes, preambleSize+4); err != nil {
		return fmt.Errorf("lattice: read catalogue: %w", err)
	}
	cat := &catalogue{}
	if err := (JSONCodec{}).Decode(catBytes, cat); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCatalogue, err)
	}
	f.cat = cat

	f.headerOffset = preambleSize + 4 + int64(catLen)
	f.header = newDataset(f, "_header", 1, cat.HeaderFields)
	f.tableStart = f.headerOffset + int64(f.header.rowSize)

	info, err := f.f.Stat()
	if err != nil {
		return fmt.Errorf("lattice: stat: %w", err)
	}
	f.physical = info.Size()
	f.size = f.tableStart
	if f.physical > f.size {
		// size tracks the logical tail; callers that recorded larger
		// offsets in the catalogue/header will push it forward below.
	}
	f.dumped = true

	for _, ds := range cat.Datasets {
		f.datasets[ds.Name] = newDataset(f, ds.Name, ds.Identifier, ds.Fields)
		f.bumpIdentifier(ds.Identifier)
	}
	for _, as := range cat.Arrays {
		switch as.Kind {
		case arrayKindUint64:
			f.arraysU[as.Name] = newUint64Array(f, as.Name, as.Identifier)
		case arrayKindBool:
			f.arraysB[as.Name] = newBoolArray(f, as.Name, as.Identifier)
		}
		f.bumpIdentifier(as.Identifier)
	}
	for _, gs := range cat.Groups {
		f.groups[gs.Name] = newGroup(f, gs.Name, gs.HeaderIdentifier, gs.EntryIdentifier, gs.HeaderFields, gs.EntryFields)
		f.bumpIdentifier(gs.HeaderIdentifier)
		f.bumpIdentifier(gs.EntryIdentifier)
	}
	for _, ss := range cat.Structures {
		var ds dataStructure
		switch ss.Kind {
		case structureKindLT:
			ds = newLTFromSpec(f, ss)
		case structureKindCLT:
			ds = newCLTFromSpec(f, ss)
		default:
			return fmt.Errorf("lattice: unknown structure kind %q", ss.Kind)
		}
		if err := ds.load(f); err != nil {
			return fmt.Errorf("lattice: load structure %q: %w", ss.Name, err)
		}
		f.structures[ss.Name] = ds
	}

	// The true logical tail may exceed tableStart once any region has
	// been written; track it via the physical file size since nothing
	// after tableStart is ever shrunk.
	if f.physical > f.size {
		f.size = f.physical
	}
	return nil
}

func (f *File) bumpIdentifier(id int8) {
	if id >= f.nextIdentifier {
		f.nextIdentifier = id + 1
	}
}

func (f *File) allocIdentifier() int8 {
	id := f.nextIdentifier
	f.nextIdentifier++
	return id
}

// BeginTransaction dumps the catalogue on a file's first call and
// otherwise just tracks nesting depth; lattice provides no
// atomicity guarantee across a transaction, only flush coalescing.
func (f *File) BeginTransaction() error {
	if f.mode == ModeReadOnly {
		return ErrReadOnly
	}
	if !f.dumped {
		if err := f.dump(); err != nil {
			return err
		}
	}
	f.txDepth++
	return nil
}

// EndTransaction closes a transaction opened with BeginTransaction,
// fsyncing once the outermost transaction completes if
// Config.SyncWrites is set.
func (f *File) EndTransaction() error {
	if f.txDepth > 0 {
		f.txDepth--
	}
	if f.txDepth == 0 && f.config.SyncWrites {
		return f.f.Sync()
	}
	return nil
}

// dump serializes the catalogue and writes the fixed preamble,
// catalogue, and zeroed header row in a single pass, then binds
// every registered structure so it allocates its initial on-disk
// state.
func (f *File) dump() error {
	catBytes, err := (JSONCodec{}).Encode(f.cat)
	if err != nil {
		return fmt.Errorf("lattice: encode catalogue: %w", err)
	}
	f.header = newDataset(f, "_header", 1, f.cat.HeaderFields)

	total := preambleSize + 4 + int64(len(catBytes)) + int64(f.header.rowSize)
	buf := make([]byte, total)
	copy(buf[0:4], magicBytes[:])
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	binary.LittleEndian.PutUint32(buf[preambleSize:], uint32(len(catBytes)))
	copy(buf[preambleSize+4:], catBytes)
	// The header row is left zeroed; its status byte of 0 means
	// "never written", matching every other never-written record.

	if err := f.f.Truncate(total); err != nil {
		return fmt.Errorf("lattice: truncate: %w", err)
	}
	if _, err := f.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("lattice: write preamble: %w", err)
	}

	f.headerOffset = preambleSize + 4 + int64(len(catBytes))
	f.tableStart = total
	f.size = total
	f.physical = total
	f.dumped = true

	for _, ds := range f.structures {
		if err := ds.create(f); err != nil {
			return fmt.Errorf("lattice: create structure %q: %w", ds.structureName(), err)
		}
	}
	return nil
}

// readAt reads len(buf) bytes starting at offset.
func (f *File) readAt(buf []byte, offset int64) error {
	_, err := f.f.ReadAt(buf, offset)
	return err
}

// writeAt overwrites len(data) bytes starting at offset. offset must
// already be within an allocated region.
func (f *File) writeAt(data []byte, offset int64) error {
	if f.mode == ModeReadOnly {
		return ErrReadOnly
	}
	_, err := f.f.WriteAt(data, offset)
	return err
}

// reserve grows the file's logical tail by n bytes and returns the
// offset the new region starts at. The underlying file is pre-grown
// by AllocationStep bytes of slack via Truncate, which on every
// platform lattice targets leaves the new range sparse and
// zero-filled, so reserved-but-unwritten bytes already read back as
// zero without an explicit zero-fill pass.
func (f *File) reserve(n int64) (int64, error) {
	if f.mode == ModeReadOnly {
		return 0, ErrReadOnly
	}
	if !f.dumped {
		return 0, ErrNotDumped
	}
	offset := f.size
	newLogical := offset + n
	if newLogical > f.physical {
		newPhysical := newLogical + f.config.AllocationStep
		if err := f.f.Truncate(newPhysical); err != nil {
			return 0, fmt.Errorf("lattice: grow file: %w", err)
		}
		f.physical = newPhysical
	}
	f.size = newLogical
	return offset, nil
}

// allocate reserves n zero-filled bytes at the tail and returns their
// offset, without writing anything itself.
func (f *File) allocate(n int64) (int64, error) {
	return f.reserve(n)
}

// append reserves len(data) bytes at the tail and writes data into
// them, returning the offset data was written at.
func (f *File) append(data []byte) (int64, error) {
	offset, err := f.reserve(int64(len(data)))
	if err != nil {
		return 0, err
	}
	if err := f.writeAt(data, offset); err != nil {
		return 0, err
	}
	return offset, nil
}

// reserveHeaderField adds name to the header schema during the
// pre-dump declaration phase. It must not be called once the
// catalogue has been dumped.
func (f *File) reserveHeaderField(name string, kind Kind, length int) error {
	if f.dumped {
		return fmt.Errorf("lattice: cannot add header field %q after the catalogue is written", name)
	}
	for _, existing := range f.cat.HeaderFields {
		if existing.Name == name {
			return fmt.Errorf("%w: header field %q", ErrDuplicateSchema, name)
		}
	}
	f.cat.HeaderFields = append(f.cat.HeaderFields, Field{Name: name, Kind: kind, Len: length})
	return nil
}

// HeaderValue reads a field of the single header row.
func (f *File) HeaderValue(field string) (any, error) {
	return f.header.GetValue(f.headerOffset, field)
}

// SetHeaderValue writes a field of the single header row.
func (f *File) SetHeaderValue(field string, value any) error {
	return f.header.SetValue(f.headerOffset, field, value)
}

// CreateDataset declares a new record-region dataset. It must be
// called before the first BeginTransaction.
func (f *File) CreateDataset(name string, fields []Field) (*Dataset, error) {
	if f.dumped {
		return nil, fmt.Errorf("lattice: cannot declare dataset %q after the catalogue is written", name)
	}
	if _, exists := f.datasets[name]; exists {
		return nil, fmt.Errorf("%w: dataset %q", ErrDuplicateSchema, name)
	}
	id := f.allocIdentifier()
	d := newDataset(f, name, id, fields)
	f.datasets[name] = d
	f.cat.Datasets = append(f.cat.Datasets, d.spec())
	return d, nil
}

// CreateUint64Array declares a new uint64 array-region schema.
func (f *File) CreateUint64Array(name string) (*Uint64Array, error) {
	if f.dumped {
		return nil, fmt.Errorf("lattice: cannot declare array %q after the catalogue is written", name)
	}
	if _, exists := f.arraysU[name]; exists {
		return nil, fmt.Errorf("%w: array %q", ErrDuplicateSchema, name)
	}
	id := f.allocIdentifier()
	a := newUint64Array(f, name, id)
	f.arraysU[name] = a
	f.cat.Arrays = append(f.cat.Arrays, a.spec(arrayKindUint64))
	return a, nil
}

// CreateBoolArray declares a new boolean array-region schema.
func (f *File) CreateBoolArray(name string) (*BoolArray, error) {
	if f.dumped {
		return nil, fmt.Errorf("lattice: cannot declare array %q after the catalogue is written", name)
	}
	if _, exists := f.arraysB[name]; exists {
		return nil, fmt.Errorf("%w: array %q", ErrDuplicateSchema, name)
	}
	id := f.allocIdentifier()
	a := newBoolArray(f, name, id)
	f.arraysB[name] = a
	f.cat.Arrays = append(f.cat.Arrays, a.spec(arrayKindBool))
	return a, nil
}

// CreateGroup declares a new group-region schema: one header row
// followed by a homogeneous array of entry rows.
func (f *File) CreateGroup(name string, headerFields, entryFields []Field) (*Group, error) {
	if f.dumped {
		return nil, fmt.Errorf("lattice: cannot declare group %q after the catalogue is written", name)
	}
	if _, exists := f.groups[name]; exists {
		return nil, fmt.Errorf("%w: group %q", ErrDuplicateSchema, name)
	}
	headerID := f.allocIdentifier()
	entryID := f.allocIdentifier()
	g := newGroup(f, name, headerID, entryID, headerFields, entryFields)
	f.groups[name] = g
	f.cat.Groups = append(f.cat.Groups, g.spec())
	return g, nil
}

// Dataset returns a previously created dataset by name.
func (f *File) Dataset(name string) (*Dataset, bool) {
	d, ok := f.datasets[name]
	return d, ok
}

// Structure returns a previously created LT or CLT by name as the
// dataStructure interface; callers use LT(name) or CLT(name) for a
// concrete handle.
func (f *File) structure(name string) (dataStructure, bool) {
	s, ok := f.structures[name]
	return s, ok
}

// LT returns a previously created layered hash table by name.
func (f *File) LT(name string) (*LT, bool) {
	s, ok := f.structures[name]
	if !ok {
		return nil, false
	}
	lt, ok := s.(*LT)
	return lt, ok
}

// CLT returns a previously created chained layered hash table by
// name.
func (f *File) CLT(name string) (*CLT, bool) {
	s, ok := f.structures[name]
	if !ok {
		return nil, false
	}
	clt, ok := s.(*CLT)
	return clt, ok
}

// Size returns the current logical size of the file in bytes.
func (f *File) Size() int64 {
	return f.size
}
