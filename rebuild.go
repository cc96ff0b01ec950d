// Rebuild is an opt-in compaction pass that drops tombstones and
// repacks a table's (or one CLT chain's) live entries into a freshly
// allocated layer or block.
//
// It does not reclaim the space the old layers/chains occupied —
// this engine never shrinks a file, matching the append-only model
// the rest of the record, array, and group regions already follow —
// it only stops a heavily deleted-from table from paying probe-window
// or chain-walk cost for tombstones that will never be reused.
package lattice

import "fmt"

// Rebuild repacks lt's live entries into a single fresh layer whose
// capacity is InitialCapacity doubled until it is at least twice the
// live entry count, abandoning the old layers.
func (lt *LT) Rebuild() error {
	var pairs []struct {
		key   string
		value uint64
	}
	for k, v := range lt.Iterate() {
		pairs = append(pairs, struct {
			key   string
			value uint64
		}{k, v})
	}

	capacity := lt.params.InitialCapacity
	for capacity < len(pairs)*2 {
		capacity *= 2
	}
	if err := lt.appendLayer(capacity); err != nil {
		return fmt.Errorf("lattice: rebuild %q: %w", lt.name, err)
	}
	newLayerIndex := lt.layerCount - 1
	newLayer, err := lt.layerAt(newLayerIndex)
	if err != nil {
		return err
	}

	// Drop every prior layer: the new layer becomes the whole table.
	lt.layerCount = 0
	if err := lt.appendLayerDescriptor(newLayer); err != nil {
		return err
	}

	for _, pair := range pairs {
		hb := hashKey(pair.key, lt.file.config.HashAlgorithm)
		if _, ok, err := lt.placeInLayer(newLayer, 0, pair.key, pair.value, hb, newLayer.Capacity); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("lattice: rebuild %q: capacity %d too small for %d entries", lt.name, capacity, len(pairs))
		}
	}
	return nil
}

// appendLayerDescriptor re-registers layer as the table's sole,
// newest layer after Rebuild has reset layerCount to 0.
func (lt *LT) appendLayerDescriptor(layer ltLayerRow) error {
	row := map[string]any{
		"slot_block":  layer.SlotBlock,
		"bloom_block": layer.BloomBlock,
		"capacity":    int64(layer.Capacity),
		"count":       int64(0),
	}
	if err := lt.layerDesc.Set(lt.layerDescBlock, row); err != nil {
		return err
	}
	lt.layerCount = 1
	return lt.file.SetHeaderValue(lt.name+"_count", uint32(1))
}

// Rebuild repacks one chain's live entries into a single fresh block
// of the smallest growth exponent p whose capacity is at least twice
// the live entry count, abandoning the old chain blocks. tableID is the chain's current head, normally
// a value previously returned by NewTable or Insert; Rebuild returns
// the new head, which the caller must store wherever it was keeping
// the old one (typically an LT value pointing at this chain).
func (clt *CLT) Rebuild(tableID int64) (int64, error) {
	var rows []map[string]any
	for row := range clt.Iterate(tableID) {
		rows = append(rows, row)
	}

	p := 0
	for clt.capacityForP(p) < len(rows)*2 {
		p++
	}
	newBlock, err := clt.newChainBlock(p, 0)
	if err != nil {
		return 0, fmt.Errorf("lattice: rebuild %q: %w", clt.name, err)
	}
	capacity := clt.capacityForP(p)

	for _, row := range rows {
		key, err := clt.keyValue(row)
		if err != nil {
			return 0, err
		}
		h := hashKey(key, clt.file.config.HashAlgorithm)
		ok, err := clt.placeInBlock(newBlock, p, row, key, h, capacity)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("lattice: rebuild %q: capacity %d too small for %d entries", clt.name, capacity, len(rows))
		}
	}
	return newBlock, nil
}
