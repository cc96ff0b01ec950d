// The Layered Hash Table (LT): a growth-by-doubling, open-addressed
// single-value map. Each layer is a fixed-capacity slot block (one
// record-region row per slot, so a slot's own status byte already
// distinguishes empty/live/tombstoned) plus a bloom-filter byte
// array sized to that layer's capacity, letting a negative lookup
// skip an entire layer without a single slot read.
//
// At most one copy of a given key exists across all layers: Insert
// always searches newest-to-oldest for an existing copy before
// placing a new one, and only ever places new keys in the newest
// layer.
package lattice

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

const maxLTLayers = 32

// LTParams configures a layered hash table at creation time.
type LTParams struct {
	// KeyLen is the fixed byte width reserved for keys.
	KeyLen int
	// InitialCapacity is the slot count of the first layer, C_{p_init}.
	InitialCapacity int
	// GrowthFactor (b) is the multiplier applied to a layer's capacity
	// to get the next layer's capacity when the table grows, so the
	// p'th layer (1-indexed) holds InitialCapacity * b^(p-1) slots.
	GrowthFactor float64
	// LoadFactor (alpha) scales the linear-probe window: a layer's
	// probe window is round(p * LoadFactor * GrowthFactor), clamped to
	// [1, layer capacity].
	LoadFactor float64
	// BloomBitsPerKey (k) sizes each layer's bloom filter to
	// k * layer capacity bits.
	BloomBitsPerKey int
	// BloomSeed keys the bloom filter's hash independently of the
	// table's primary hash.
	BloomSeed int64
	// CacheLen is the capacity of the optional LRU result cache. 0
	// disables caching.
	CacheLen int
}

func (p *LTParams) setDefaults() {
	if p.KeyLen == 0 {
		p.KeyLen = 64
	}
	if p.InitialCapacity == 0 {
		p.InitialCapacity = 16
	}
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

// ltLayerRow is the decoded form of one row of the layer-descriptor
// dataset.
type ltLayerRow struct {
	SlotBlock  int64
	BloomBlock int64
	Capacity   int
	Count      int
}

// LT is a layered hash table mapping string keys to a single uint64
// value (typically a record offset elsewhere in the file).
type LT struct {
	file   *File
	name   string
	params LTParams

	slots     *Dataset
	bloom     *BoolArray
	layerDesc *Dataset

	layerDescBlock int64
	layerCount     int

	cache *lru
}

// CreateLT declares a new layered hash table. It must be called
// before the first BeginTransaction.
func (f *File) CreateLT(name string, params LTParams) (*LT, error) {
	if f.dumped {
		return nil, fmt.Errorf("lattice: cannot declare LT %q after the catalogue is written", name)
	}
	if _, exists := f.structures[name]; exists {
		return nil, fmt.Errorf("%w: structure %q", ErrDuplicateSchema, name)
	}
	params.setDefaults()

	lt := &LT{
		file:      f,
		name:      name,
		params:    params,
		slots:     newDataset(f, name+"_slots", f.allocIdentifier(), ltEntryFields(params.KeyLen)),
		bloom:     newBoolArray(f, name+"_bloom", f.allocIdentifier()),
		layerDesc: newDataset(f, name+"_layers", f.allocIdentifier(), ltLayerFields()),
		cache:     newLRU(params.CacheLen),
	}
	if err := f.reserveHeaderField(name+"_root", KindInt64, 0); err != nil {
		return nil, err
	}
	if err := f.reserveHeaderField(name+"_count", KindUint32, 0); err != nil {
		return nil, err
	}
	f.structures[name] = lt
	f.cat.Structures = append(f.cat.Structures, lt.spec())
	return lt, nil
}

func ltEntryFields(keyLen int) []Field {
	return []Field{
		{Name: "key", Kind: KindString, Len: keyLen},
		{Name: "value", Kind: KindUint64},
	}
}

func ltLayerFields() []Field {
	return []Field{
		{Name: "slot_block", Kind: KindInt64},
		{Name: "bloom_block", Kind: KindInt64},
		{Name: "capacity", Kind: KindInt64},
		{Name: "count", Kind: KindInt64},
	}
}

func newLTFromSpec(f *File, ss structureSpec) *LT {
	return &LT{
		file: f,
		name: ss.Name,
		params: LTParams{
			KeyLen:          ss.KeyLen,
			InitialCapacity: ss.InitialCapacity,
			GrowthFactor:    ss.GrowthFactor,
			LoadFactor:      ss.LoadFactor,
			BloomBitsPerKey: ss.BloomBitsPerKey,
			BloomSeed:       ss.BloomSeed,
			CacheLen:        ss.CacheLen,
		},
		slots:     newDataset(f, ss.Name+"_slots", ss.SlotIdentifier, ltEntryFields(ss.KeyLen)),
		bloom:     newBoolArray(f, ss.Name+"_bloom", ss.BloomIdentifier),
		layerDesc: newDataset(f, ss.Name+"_layers", ss.LayerIdentifier, ltLayerFields()),
		cache:     newLRU(ss.CacheLen),
	}
}

func (lt *LT) structureName() string { return lt.name }

func (lt *LT) spec() structureSpec {
	return structureSpec{
		Name:            lt.name,
		Kind:            structureKindLT,
		KeyLen:          lt.params.KeyLen,
		SlotIdentifier:  lt.slots.identifier,
		BloomIdentifier: lt.bloom.identifier,
		LayerIdentifier: lt.layerDesc.identifier,
		InitialCapacity: lt.params.InitialCapacity,
		GrowthFactor:    lt.params.GrowthFactor,
		LoadFactor:      lt.params.LoadFactor,
		BloomBitsPerKey: lt.params.BloomBitsPerKey,
		BloomSeed:       lt.params.BloomSeed,
		CacheLen:        lt.params.CacheLen,
	}
}

// create allocates the first layer and roots it in the header. It
// runs once, immediately after the catalogue is dumped.
func (lt *LT) create(f *File) error {
	block, err := lt.layerDesc.NewBlock(maxLTLayers)
	if err != nil {
		return err
	}
	lt.layerDescBlock = block
	if err := lt.appendLayer(lt.params.InitialCapacity); err != nil {
		return err
	}
	if err := f.SetHeaderValue(lt.name+"_root", block); err != nil {
		return err
	}
	return f.SetHeaderValue(lt.name+"_count", uint32(lt.layerCount))
}

// load reconstructs in-memory bookkeeping from the header on reopen.
func (lt *LT) load(f *File) error {
	v, err := f.HeaderValue(lt.name + "_root")
	if err != nil {
		return err
	}
	lt.layerDescBlock = v.(int64)
	v, err = f.HeaderValue(lt.name + "_count")
	if err != nil {
		return err
	}
	lt.layerCount = int(v.(uint32))
	return nil
}

func (lt *LT) layerAt(p int) (ltLayerRow, error) {
	row, err := lt.layerDesc.Get(lt.layerDescBlock + int64(p)*int64(lt.layerDesc.rowSize))
	if err != nil {
		return ltLayerRow{}, err
	}
	return ltLayerRow{
		SlotBlock:  row["slot_block"].(int64),
		BloomBlock: row["bloom_block"].(int64),
		Capacity:   int(row["capacity"].(int64)),
		Count:      int(row["count"].(int64)),
	}, nil
}

func (lt *LT) setLayerCount(p, count int) error {
	return lt.layerDesc.SetValue(lt.layerDescBlock+int64(p)*int64(lt.layerDesc.rowSize), "count", int64(count))
}

// appendLayer allocates a new layer of the given capacity as the
// table's newest layer.
func (lt *LT) appendLayer(capacity int) error {
	if lt.layerCount >= maxLTLayers {
		return ErrCapacityExceeded
	}
	slotBlock, err := lt.slots.NewBlock(capacity)
	if err != nil {
		return err
	}
	bloomBlock, err := lt.bloom.NewBlock(lt.params.BloomBitsPerKey * capacity)
	if err != nil {
		return err
	}
	p := lt.layerCount
	row := map[string]any{
		"slot_block":  slotBlock,
		"bloom_block": bloomBlock,
		"capacity":    int64(capacity),
		"count":       int64(0),
	}
	if err := lt.layerDesc.Set(lt.layerDescBlock+int64(p)*int64(lt.layerDesc.rowSize), row); err != nil {
		return err
	}
	lt.layerCount++
	return lt.file.SetHeaderValue(lt.name+"_count", uint32(lt.layerCount))
}

// probeWindow returns R_p = round(p * alpha * b), the linear-probe
// length for layer/block p (1-indexed), clamped to [1, capacity]. b
// is the structure's growth factor, shared by LT layers and CLT
// chain blocks.
func probeWindow(p int, alpha float64, b float64, capacity int) int {
	r := int(math.Round(float64(p) * alpha * b))
	if r < 1 {
		r = 1
	}
	if r > capacity {
		r = capacity
	}
	return r
}

func (lt *LT) bloomBit(key string, capacity int) int {
	size := lt.params.BloomBitsPerKey * capacity
	if size <= 0 {
		size = 1
	}
	return int(hashKeySeeded(key, lt.params.BloomSeed) % uint64(size))
}

// Insert writes or overwrites the value for key, preserving the
// invariant that at most one copy of a key exists across all layers.
func (lt *LT) Insert(key string, value uint64) error {
	hb := hashKey(key, lt.file.config.HashAlgorithm)
	if off, found, err := lt.findSlot(key, hb); err != nil {
		return err
	} else if found {
		if err := lt.slots.SetValue(off, "value", value); err != nil {
			return err
		}
		lt.cache.Put(key, value)
		return nil
	}
	return lt.insertNewest(key, value, hb)
}

// findSlot searches every layer, newest first, for key's existing
// slot and returns its offset.
func (lt *LT) findSlot(key string, hb uint64) (int64, bool, error) {
	for p := lt.layerCount; p >= 1; p-- {
		layer, err := lt.layerAt(p - 1)
		if err != nil {
			return 0, false, err
		}
		set, err := lt.bloom.Get(layer.BloomBlock, lt.bloomBit(key, layer.Capacity))
		if err != nil {
			return 0, false, err
		}
		if !set {
			continue
		}
		off, found, err := lt.scanLayer(layer, key, hb, probeWindow(p, lt.params.LoadFactor, lt.params.GrowthFactor, layer.Capacity))
		if err != nil {
			return 0, false, err
		}
		if found {
			return off, true, nil
		}
	}
	return 0, false, nil
}

func (lt *LT) scanLayer(layer ltLayerRow, key string, hb uint64, window int) (int64, bool, error) {
	slot := int(hb % uint64(layer.Capacity))
	for i := 0; i < window && slot+i < layer.Capacity; i++ {
		off := layer.SlotBlock + int64(slot+i)*int64(lt.slots.rowSize)
		status, err := lt.slots.Status(off)
		if err != nil {
			return 0, false, err
		}
		if status == 0 {
			break
		}
		if status < 0 {
			continue // tombstoned; keep probing
		}
		row, err := lt.slots.Get(off)
		if err != nil {
			return 0, false, err
		}
		if row["key"].(string) == key {
			return off, true, nil
		}
	}
	return 0, false, nil
}

func (lt *LT) insertNewest(key string, value uint64, hb uint64) error {
	p := lt.layerCount
	layer, err := lt.layerAt(p - 1)
	if err != nil {
		return err
	}
	window := probeWindow(p, lt.params.LoadFactor, lt.params.GrowthFactor, layer.Capacity)
	if off, ok, err := lt.placeInLayer(layer, p-1, key, value, hb, window); err != nil {
		return err
	} else if ok {
		_ = off
		return nil
	}
	if lt.layerCount >= maxLTLayers {
		return ErrCapacityExceeded
	}
	nextCapacity := int(math.Round(float64(layer.Capacity) * lt.params.GrowthFactor))
	if nextCapacity <= layer.Capacity {
		nextCapacity = layer.Capacity + 1
	}
	if err := lt.appendLayer(nextCapacity); err != nil {
		return err
	}
	newLayer, err := lt.layerAt(lt.layerCount - 1)
	if err != nil {
		return err
	}
	// A freshly allocated layer is entirely empty, so a full scan
	// (not bounded by the probe window) always finds room.
	_, ok, err := lt.placeInLayer(newLayer, lt.layerCount-1, key, value, hb, newLayer.Capacity)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCapacityExceeded
	}
	return nil
}

func (lt *LT) placeInLayer(layer ltLayerRow, layerIndex int, key string, value uint64, hb uint64, window int) (int64, bool, error) {
	slot := int(hb % uint64(layer.Capacity))
	for i := 0; i < window && slot+i < layer.Capacity; i++ {
		off := layer.SlotBlock + int64(slot+i)*int64(lt.slots.rowSize)
		status, err := lt.slots.Status(off)
		if err != nil {
			return 0, false, err
		}
		if status > 0 {
			continue
		}
		if err := lt.slots.Set(off, map[string]any{"key": key, "value": value}); err != nil {
			return 0, false, err
		}
		if err := lt.bloom.Set(layer.BloomBlock, lt.bloomBit(key, layer.Capacity), true); err != nil {
			return 0, false, err
		}
		if err := lt.setLayerCount(layerIndex, layer.Count+1); err != nil {
			return 0, false, err
		}
		lt.cache.Put(key, value)
		return off, true, nil
	}
	return 0, false, nil
}

// Lookup returns the value stored for key.
func (lt *LT) Lookup(key string) (uint64, error) {
	if v, ok := lt.cache.Get(key); ok {
		return v, nil
	}
	hb := hashKey(key, lt.file.config.HashAlgorithm)
	off, found, err := lt.findSlot(key, hb)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	row, err := lt.slots.Get(off)
	if err != nil {
		return 0, err
	}
	value := row["value"].(uint64)
	lt.cache.Put(key, value)
	return value, nil
}

// Contains reports whether key has a live entry.
func (lt *LT) Contains(key string) (bool, error) {
	_, err := lt.Lookup(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete tombstones key's slot, if present.
func (lt *LT) Delete(key string) error {
	hb := hashKey(key, lt.file.config.HashAlgorithm)
	off, found, err := lt.findSlot(key, hb)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if err := lt.slots.Delete(off); err != nil {
		return err
	}
	lt.cache.Invalidate(key)
	return nil
}

// Iterate walks every live key/value pair across all layers.
func (lt *LT) Iterate() iter.Seq2[string, uint64] {
	return func(yield func(string, uint64) bool) {
		for p := 1; p <= lt.layerCount; p++ {
			layer, err := lt.layerAt(p - 1)
			if err != nil {
				return
			}
			for i := 0; i < layer.Capacity; i++ {
				off := layer.SlotBlock + int64(i)*int64(lt.slots.rowSize)
				status, err := lt.slots.Status(off)
				if err != nil || status <= 0 {
					continue
				}
				row, err := lt.slots.Get(off)
				if err != nil {
					continue
				}
				if !yield(row["key"].(string), row["value"].(uint64)) {
					return
				}
			}
		}
	}
}

// Len returns the number of live layers currently allocated.
func (lt *LT) Len() int { return lt.layerCount }
