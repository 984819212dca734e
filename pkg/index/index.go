// Package index implements the fixed-slot, open-addressed hash table that
// maps a key to the byte offset of its value chunk. It never interprets
// chunk bytes itself — every call that needs to compare a stored key takes
// a KeyAt callback, which pkg/chunkstore supplies, so this package stays
// ignorant of the chunk format.
package index

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/marmos91/shmcache/pkg/region"
)

// NotFound is the sentinel index-cell value meaning "empty": a chunk
// offset of 0 can never be valid since every chunk lives at or beyond
// the region's value-area offset.
const NotFound int64 = 0

// KeyAt reads back the key stored in the chunk at offset, for comparison
// against a probed candidate.
type KeyAt func(offset int64) (string, error)

// NaturalBucket returns hash(key) mod KEYS_SLOTS: the slot a key's probe
// chain starts from, and the bucket lock index that guards it.
func NaturalBucket(key string) int {
	return int(xxhash.Sum64String(key) % uint64(region.KeysSlots))
}

// CellOffset returns the absolute region offset of index cell i.
func CellOffset(layout region.Layout, i int) int64 {
	return layout.IndexOffset + int64(i)*region.LongSize
}

// ReadCell returns the chunk offset stored in index cell i.
func ReadCell(r *region.Region, layout region.Layout, i int) (int64, error) {
	return r.ReadInt(CellOffset(layout, i))
}

// WriteCell stores a chunk offset (or NotFound) in index cell i.
func WriteCell(r *region.Region, layout region.Layout, i int, offset int64) error {
	return r.WriteInt(CellOffset(layout, i), offset)
}

// Find probes from key's natural bucket, returning the chunk offset for
// key or (0, false) if key is absent. The probe stops at the first empty
// cell, per the no-tombstones deletion scheme in Remove.
func Find(r *region.Region, layout region.Layout, key string, keyAt KeyAt) (offset int64, found bool, err error) {
	bucket := NaturalBucket(key)
	for i := 0; i < region.KeysSlots; i++ {
		slot := (bucket + i) % region.KeysSlots
		cell, err := ReadCell(r, layout, slot)
		if err != nil {
			return 0, false, err
		}
		if cell == NotFound {
			return 0, false, nil
		}
		candidate, err := keyAt(cell)
		if err != nil {
			return 0, false, err
		}
		if candidate == key {
			return cell, true, nil
		}
	}
	return 0, false, nil
}

// Insert places offset in the first empty cell on key's probe chain.
func Insert(r *region.Region, layout region.Layout, key string, offset int64) error {
	bucket := NaturalBucket(key)
	for i := 0; i < region.KeysSlots; i++ {
		slot := (bucket + i) % region.KeysSlots
		cell, err := ReadCell(r, layout, slot)
		if err != nil {
			return err
		}
		if cell == NotFound {
			return WriteCell(r, layout, slot, offset)
		}
	}
	return fmt.Errorf("%w for key %q", errIndexFull, key)
}

// Remove locates key's cell and clears it, then repairs the probe chain
// by shifting later entries backward (the standard backward-shift
// deletion scheme for open addressing with linear probing), so no
// tombstone is ever needed and Find's "stop at first empty cell" rule
// keeps working.
func Remove(r *region.Region, layout region.Layout, key string, keyAt KeyAt) error {
	bucket := NaturalBucket(key)
	var target = -1
	for i := 0; i < region.KeysSlots; i++ {
		slot := (bucket + i) % region.KeysSlots
		cell, err := ReadCell(r, layout, slot)
		if err != nil {
			return err
		}
		if cell == NotFound {
			return nil // not present
		}
		candidate, err := keyAt(cell)
		if err != nil {
			return err
		}
		if candidate == key {
			target = slot
			break
		}
	}
	if target == -1 {
		return nil
	}
	if err := WriteCell(r, layout, target, NotFound); err != nil {
		return err
	}
	return backwardShift(r, layout, target, keyAt)
}

func backwardShift(r *region.Region, layout region.Layout, empty int, keyAt KeyAt) error {
	i := empty
	j := i
	for {
		j = (j + 1) % region.KeysSlots
		if j == empty {
			return nil // probed the whole table back to the hole; nothing left to shift
		}
		cell, err := ReadCell(r, layout, j)
		if err != nil {
			return err
		}
		if cell == NotFound {
			return nil
		}
		candidateKey, err := keyAt(cell)
		if err != nil {
			return err
		}
		natural := NaturalBucket(candidateKey)
		if cyclicIn(i, natural, j) {
			// natural falls in (i, j]: this entry's probe chain still
			// needs slot j to reach it, so it cannot move into i yet.
			continue
		}
		if err := WriteCell(r, layout, i, cell); err != nil {
			return err
		}
		if err := WriteCell(r, layout, j, NotFound); err != nil {
			return err
		}
		i = j
	}
}

// cyclicIn reports whether x lies in the circular half-open interval
// (a, b] modulo KEYS_SLOTS.
func cyclicIn(a, x, b int) bool {
	if a <= b {
		return x > a && x <= b
	}
	return x > a || x <= b
}

var errIndexFull = fmt.Errorf("index: table full")
