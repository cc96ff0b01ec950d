// The Chained Layered Hash Table (CLT): a growable chain of Group
// blocks, each with a growth exponent one higher than the block
// before it, and so a capacity at least as large (with b = 2, p = 0
// and p = 1 both give capacity 1; every later block is strictly
// larger). Unlike LT, a CLT does not own a single well-known root:
// each chain is identified by the byte offset of its head block (its
// table_id), which a caller threads through Insert and stores
// wherever it needs to recover the chain again — typically as the
// value side of a separate LT mapping some external key to its
// table_id, exactly as an inverted index maps a token to the chain of
// document ids that contain it.
//
// Insertion walks a chain head-first (newest, largest block checked
// first) twice: once to deduplicate an existing key, once to find
// room for a new one. When no block in the chain has room in its
// probe window, a newly allocated block of growth exponent _p + 1
// becomes the new head, linking the old head as its _prev_table — a chain's _p sequence strictly increases
// walking tail to head, bounding chain length to O(log N).
package lattice

import (
	"container/list"
	"fmt"
	"iter"
	"math"
)

// CLTParams configures a chained layered hash table at creation
// time.
type CLTParams struct {
	// Fields is the entry schema shared by every row of every table
	// this CLT manages.
	Fields []Field
	// KeyField names the Fields entry used for dedup and lookup. It
	// must be a KindString field.
	KeyField string
	// InitialP is p_init: the growth exponent of a freshly created
	// table's first block, C_p = max(1, GrowthFactor^p - 1).
	InitialP int
	// GrowthFactor (b) is the chain's growth exponent base, shared
	// with LT's probe-window formula.
	GrowthFactor float64
	// LoadFactor (alpha) scales each block's linear-probe window:
	// round(p * LoadFactor * GrowthFactor), clamped to [1, capacity].
	LoadFactor float64
	// BloomBitsPerKey (k) sizes each block's bloom filter to
	// k * block capacity bits.
	BloomBitsPerKey int
	// BloomSeed keys the bloom filter's hash independently of the
	// table's primary hash.
	BloomSeed int64
	// CacheLen is the capacity of the table_id -> block-metadata LRU
	// cache. 0 disables it.
	CacheLen int
}

func (p *CLTParams) setDefaults() {
	if p.GrowthFactor <= 1 {
		p.GrowthFactor = 2
	}
	if p.LoadFactor == 0 {
		p.LoadFactor = 1
	}
	if p.BloomBitsPerKey == 0 {
		p.BloomBitsPerKey = 8
	}
}

// cltMeta is a chain block's header, decoded: its predecessor, its
// growth exponent, and the offset of its per-block bloom array.
type cltMeta struct {
	Prev       int64
	P          int
	BloomBlock int64
}

// cltCache caches table_id -> cltMeta so a multi-hop chain walk does
// not re-read every block's header row on every call. Same doubly-
// linked-list-plus-map shape as lru.go, keyed by table_id instead of
// a string key since that is what a CLT hops between.
type cltCache struct {
	capacity int
	ll       *list.List
	index    map[int64]*list.Element
}

type cltCacheEntry struct {
	tableID int64
	meta    cltMeta
}

func newCLTCache(capacity int) *cltCache {
	if capacity <= 0 {
		return &cltCache{}
	}
	return &cltCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[int64]*list.Element, capacity),
	}
}

func (c *cltCache) Get(tableID int64) (cltMeta, bool) {
	if c.capacity == 0 {
		return cltMeta{}, false
	}
	el, ok := c.index[tableID]
	if !ok {
		return cltMeta{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cltCacheEntry).meta, true
}

func (c *cltCache) Put(tableID int64, meta cltMeta) {
	if c.capacity == 0 {
		return
	}
	if el, ok := c.index[tableID]; ok {
		el.Value.(*cltCacheEntry).meta = meta
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cltCacheEntry{tableID: tableID, meta: meta})
	c.index[tableID] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cltCacheEntry).tableID)
		}
	}
}

// CLT is a chained layered hash table managing many independent
// chains ("tables") that share one entry schema.
type CLT struct {
	file   *File
	name   string
	params CLTParams

	chain *Group
	bloom *BoolArray
	cache *cltCache
}

func cltHeaderFields() []Field {
	return []Field{
		{Name: "prev_table", Kind: KindInt64},
		{Name: "p", Kind: KindInt64},
		{Name: "bloom_block", Kind: KindInt64},
	}
}

// CreateCLT declares a new chained layered hash table. It must be
// called before the first BeginTransaction.
func (f *File) CreateCLT(name string, params CLTParams) (*CLT, error) {
	if f.dumped {
		return nil, fmt.Errorf("lattice: cannot declare CLT %q after the catalogue is written", name)
	}
	if _, exists := f.structures[name]; exists {
		return nil, fmt.Errorf("%w: structure %q", ErrDuplicateSchema, name)
	}
	if len(params.Fields) == 0 {
		return nil, fmt.Errorf("lattice: CLT %q: Fields must not be empty", name)
	}
	var keyField *Field
	for i := range params.Fields {
		if params.Fields[i].Name == params.KeyField {
			keyField = &params.Fields[i]
			break
		}
	}
	if keyField == nil || keyField.Kind != KindString {
		return nil, fmt.Errorf("lattice: CLT %q: KeyField %q must name a string field", name, params.KeyField)
	}
	params.setDefaults()

	headerID := f.allocIdentifier()
	entryID := f.allocIdentifier()
	bloomID := f.allocIdentifier()

	clt := &CLT{
		file:   f,
		name:   name,
		params: params,
		chain:  newGroup(f, name+"_chain", headerID, entryID, cltHeaderFields(), params.Fields),
		bloom:  newBoolArray(f, name+"_bloom", bloomID),
		cache:  newCLTCache(params.CacheLen),
	}
	f.structures[name] = clt
	f.cat.Structures = append(f.cat.Structures, clt.spec())
	return clt, nil
}

func newCLTFromSpec(f *File, ss structureSpec) *CLT {
	return &CLT{
		file: f,
		name: ss.Name,
		params: CLTParams{
			Fields:          ss.EntryFields,
			KeyField:        ss.KeyField,
			InitialP:        ss.InitialP,
			GrowthFactor:    ss.GrowthFactor,
			LoadFactor:      ss.LoadFactor,
			BloomBitsPerKey: ss.BloomBitsPerKey,
			BloomSeed:       ss.BloomSeed,
			CacheLen:        ss.CacheLen,
		},
		chain: newGroup(f, ss.Name+"_chain", ss.SlotIdentifier, ss.LayerIdentifier, cltHeaderFields(), ss.EntryFields),
		bloom: newBoolArray(f, ss.Name+"_bloom", ss.BloomIdentifier),
		cache: newCLTCache(ss.CacheLen),
	}
}

func (clt *CLT) structureName() string { return clt.name }

func (clt *CLT) spec() structureSpec {
	return structureSpec{
		Name:            clt.name,
		Kind:            structureKindCLT,
		SlotIdentifier:  clt.chain.header.identifier,
		LayerIdentifier: clt.chain.entry.identifier,
		BloomIdentifier: clt.bloom.identifier,
		EntryFields:     clt.params.Fields,
		KeyField:        clt.params.KeyField,
		InitialP:        clt.params.InitialP,
		GrowthFactor:    clt.params.GrowthFactor,
		LoadFactor:      clt.params.LoadFactor,
		BloomBitsPerKey: clt.params.BloomBitsPerKey,
		BloomSeed:       clt.params.BloomSeed,
		CacheLen:        clt.params.CacheLen,
	}
}

// create is a no-op: a CLT has no header-rooted state of its own.
// Every chain is addressed by its own table_id, which NewTable hands
// back to the caller to store wherever fits its use — there is
// nothing here for File to root in the header.
func (clt *CLT) create(f *File) error { return nil }

// load is a no-op for the same reason create is.
func (clt *CLT) load(f *File) error { return nil }

// capacityForP returns C_p = max(1, GrowthFactor^p - 1), a block's
// entry capacity derived from its growth exponent rather than stored
// alongside it.
func (clt *CLT) capacityForP(p int) int {
	c := int(math.Round(math.Pow(clt.params.GrowthFactor, float64(p)))) - 1
	if c < 1 {
		c = 1
	}
	return c
}

// newChainBlock allocates a block of growth exponent p linked to prev
// (0 for a chain's first block) and returns its table_id.
func (clt *CLT) newChainBlock(p int, prev int64) (int64, error) {
	capacity := clt.capacityForP(p)
	block, err := clt.chain.NewBlock(capacity)
	if err != nil {
		return 0, err
	}
	bloomBlock, err := clt.bloom.NewBlock(clt.params.BloomBitsPerKey * capacity)
	if err != nil {
		return 0, err
	}
	if err := clt.chain.HeaderSet(block, map[string]any{
		"prev_table":  prev,
		"p":           int64(p),
		"bloom_block": bloomBlock,
	}); err != nil {
		return 0, err
	}
	clt.cache.Put(block, cltMeta{Prev: prev, P: p, BloomBlock: bloomBlock})
	return block, nil
}

func (clt *CLT) metaAt(tableID int64) (cltMeta, error) {
	if m, ok := clt.cache.Get(tableID); ok {
		return m, nil
	}
	row, err := clt.chain.HeaderGet(tableID)
	if err != nil {
		return cltMeta{}, err
	}
	m := cltMeta{
		Prev:       row["prev_table"].(int64),
		P:          int(row["p"].(int64)),
		BloomBlock: row["bloom_block"].(int64),
	}
	clt.cache.Put(tableID, m)
	return m, nil
}

func (clt *CLT) keyValue(data map[string]any) (string, error) {
	v, ok := data[clt.params.KeyField]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, clt.params.KeyField)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("lattice: CLT %q: key field %q must be a string, got %T", clt.name, clt.params.KeyField, v)
	}
	return s, nil
}

func (clt *CLT) bloomBit(key string, capacity int) int {
	size := clt.params.BloomBitsPerKey * capacity
	if size <= 0 {
		size = 1
	}
	return int(hashKeySeeded(key, clt.params.BloomSeed) % uint64(size))
}

// NewTable allocates a fresh, empty chain and returns its table_id.
func (clt *CLT) NewTable() (int64, error) {
	return clt.newChainBlock(clt.params.InitialP, 0)
}

// scanBlock linearly probes capacity-sized block starting at
// h mod capacity for window slots, looking for a live entry whose key
// field equals key.
func (clt *CLT) scanBlock(block int64, capacity int, key string, h uint64, window int) (int64, bool, error) {
	slot := int(h % uint64(capacity))
	for i := 0; i < window && slot+i < capacity; i++ {
		off := clt.chain.EntryOffset(block, slot+i)
		status, err := clt.chain.entry.Status(off)
		if err != nil {
			return 0, false, err
		}
		if status == 0 {
			break
		}
		if status < 0 {
			continue // tombstoned; keep probing
		}
		row, err := clt.chain.EntryGet(block, slot+i)
		if err != nil {
			return 0, false, err
		}
		if row[clt.params.KeyField].(string) == key {
			return off, true, nil
		}
	}
	return 0, false, nil
}

// findEntry walks the chain rooted at tableID head-first, consulting
// each block's bloom filter before scanning it, and returns the
// offset of key's live entry if one exists anywhere in the chain.
func (clt *CLT) findEntry(tableID int64, key string, h uint64) (int64, bool, error) {
	cur := tableID
	for cur != 0 {
		meta, err := clt.metaAt(cur)
		if err != nil {
			return 0, false, err
		}
		capacity := clt.capacityForP(meta.P)
		set, err := clt.bloom.Get(meta.BloomBlock, clt.bloomBit(key, capacity))
		if err != nil {
			return 0, false, err
		}
		if set {
			window := probeWindow(meta.P, clt.params.LoadFactor, clt.params.GrowthFactor, capacity)
			off, found, err := clt.scanBlock(cur, capacity, key, h, window)
			if err != nil {
				return 0, false, err
			}
			if found {
				return off, true, nil
			}
		}
		cur = meta.Prev
	}
	return 0, false, nil
}

// placeInBlock writes data into the first never-written or tombstoned
// slot within block's probe window and sets the block's bloom bit for
// key. It reports whether a slot was found.
func (clt *CLT) placeInBlock(block int64, p int, data map[string]any, key string, h uint64, window int) (bool, error) {
	capacity := clt.capacityForP(p)
	slot := int(h % uint64(capacity))
	for i := 0; i < window && slot+i < capacity; i++ {
		off := clt.chain.EntryOffset(block, slot+i)
		status, err := clt.chain.entry.Status(off)
		if err != nil {
			return false, err
		}
		if status > 0 {
			continue
		}
		if err := clt.chain.entry.Set(off, data); err != nil {
			return false, err
		}
		meta, err := clt.metaAt(block)
		if err != nil {
			return false, err
		}
		if err := clt.bloom.Set(meta.BloomBlock, clt.bloomBit(key, capacity), true); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// insertIntoChain walks the chain rooted at tableID head-first looking
// for a block with room for a new entry, reporting whether one was
// found.
func (clt *CLT) insertIntoChain(tableID int64, data map[string]any, key string, h uint64) (bool, error) {
	cur := tableID
	for cur != 0 {
		meta, err := clt.metaAt(cur)
		if err != nil {
			return false, err
		}
		capacity := clt.capacityForP(meta.P)
		window := probeWindow(meta.P, clt.params.LoadFactor, clt.params.GrowthFactor, capacity)
		ok, err := clt.placeInBlock(cur, meta.P, data, key, h, window)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		cur = meta.Prev
	}
	return false, nil
}

// Insert writes data into the chain rooted at tableID, which must be
// a table_id previously returned by NewTable or Insert. An existing
// entry for data's key is updated in place. Otherwise, insert walks
// the chain head-first for room; if every block refuses, a new,
// larger block is allocated as the chain's new head. Insert returns
// the table_id the caller must use for every subsequent call against
// this chain — unchanged unless growth occurred.
func (clt *CLT) Insert(tableID int64, data map[string]any) (int64, error) {
	key, err := clt.keyValue(data)
	if err != nil {
		return 0, err
	}
	h := hashKey(key, clt.file.config.HashAlgorithm)

	if off, found, err := clt.findEntry(tableID, key, h); err != nil {
		return 0, err
	} else if found {
		if err := clt.chain.entry.Set(off, data); err != nil {
			return 0, err
		}
		return tableID, nil
	}

	if ok, err := clt.insertIntoChain(tableID, data, key, h); err != nil {
		return 0, err
	} else if ok {
		return tableID, nil
	}

	head, err := clt.metaAt(tableID)
	if err != nil {
		return 0, err
	}
	newP := head.P + 1
	newBlock, err := clt.newChainBlock(newP, tableID)
	if err != nil {
		return 0, err
	}
	// A freshly allocated block is entirely empty, so a full scan
	// (not bounded by the probe window) always finds room.
	ok, err := clt.placeInBlock(newBlock, newP, data, key, h, clt.capacityForP(newP))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrCapacityExceeded
	}
	return newBlock, nil
}

// Lookup returns the live entry for key within the chain rooted at
// tableID.
func (clt *CLT) Lookup(tableID int64, key string) (map[string]any, error) {
	h := hashKey(key, clt.file.config.HashAlgorithm)
	off, found, err := clt.findEntry(tableID, key, h)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return clt.chain.entry.Get(off)
}

// Iterate walks every live entry of every block in the chain rooted
// at tableID, head-first, scanning each block's full capacity rather
// than just its probe window.
func (clt *CLT) Iterate(tableID int64) iter.Seq[map[string]any] {
	return func(yield func(map[string]any) bool) {
		cur := tableID
		for cur != 0 {
			meta, err := clt.metaAt(cur)
			if err != nil {
				return
			}
			capacity := clt.capacityForP(meta.P)
			for i := 0; i < capacity; i++ {
				off := clt.chain.EntryOffset(cur, i)
				status, err := clt.chain.entry.Status(off)
				if err != nil || status <= 0 {
					continue
				}
				row, err := clt.chain.EntryGet(cur, i)
				if err != nil {
					continue
				}
				if !yield(row) {
					return
				}
			}
			cur = meta.Prev
		}
	}
}

// IterateField is Iterate, projected down to a single field, for
// callers that only want e.g. the key values of every entry.
func (clt *CLT) IterateField(tableID int64, field string) iter.Seq[any] {
	return func(yield func(any) bool) {
		for row := range clt.Iterate(tableID) {
			if !yield(row[field]) {
				return
			}
		}
	}
}
