package lattice

import "errors"

// Sentinel errors returned by engine operations. All recoverable
// "not found" conditions collapse to ErrNotFound so callers can use a
// single errors.Is check regardless of which layer raised it.
var (
	// ErrNotFound is returned when a key, row, or blob cannot be
	// located: a probe window exhausts without a match, a row's
	// status byte is not the live tag, or a schema mismatch is
	// detected at row granularity.
	ErrNotFound = errors.New("lattice: not found")

	// ErrDuplicateSchema is returned by CreateDataset,
	// CreateUint64Array, CreateBoolArray, CreateGroup, CreateLT, or
	// CreateCLT when the requested name already exists, and when a
	// structure's reserved header field name is already taken.
	ErrDuplicateSchema = errors.New("lattice: schema already exists")

	// ErrCapacityExceeded is returned when a layered hash table would
	// need to grow past its 32-layer hard cap.
	ErrCapacityExceeded = errors.New("lattice: capacity exceeded")

	// ErrSchemaMismatch names the case of a block addressed through a
	// dataset whose identifier does not match the byte found at that
	// offset. No operation in this package returns it: that case is
	// reported as ErrNotFound at row granularity.
	ErrSchemaMismatch = errors.New("lattice: schema mismatch")

	// ErrClosed names the closed-file condition. No operation in this
	// package returns it: a call on a closed File returns the error
	// of the underlying *os.File call.
	ErrClosed = errors.New("lattice: file is closed")

	// ErrInvalidField is returned when a field name is not part of a
	// dataset's compiled field table.
	ErrInvalidField = errors.New("lattice: invalid field")

	// ErrCorruptHeader is returned when the header record cannot be
	// decoded.
	ErrCorruptHeader = errors.New("lattice: corrupt header")

	// ErrCorruptCatalogue is returned when the schema catalogue at
	// the start of the file cannot be decoded.
	ErrCorruptCatalogue = errors.New("lattice: corrupt catalogue")

	// ErrReadOnly is returned when a mutating call is made on a file
	// opened in read-only mode.
	ErrReadOnly = errors.New("lattice: file is read-only")

	// ErrNotDumped is returned when a data operation is attempted
	// before the catalogue has been written (no transaction opened
	// yet on a freshly created file).
	ErrNotDumped = errors.New("lattice: catalogue not written yet")
)
