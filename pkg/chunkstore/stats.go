package chunkstore

import (
	"fmt"

	"github.com/marmos91/shmcache/pkg/index"
	"github.com/marmos91/shmcache/pkg/region"
)

// Snapshot is the stats() result: a best-effort, point-in-time view of the
// index and value area, produced under the alloc read lock.
type Snapshot struct {
	Items                   int
	MaxItems                int
	AvailableHashTableSlots int
	UsedHashTableSlots      int
	HashTableLoadFactor     float64
	HashTableMemorySize     int64
	AvailableValueMemSize   int64
	UsedValueMemSize        int64
	AvgItemValueSize        float64
	OldestChunkOffset       int64
	GetHitCount             int64
	GetMissCount            int64
	ItemMetadataSize        int
	MinItemValueSize        int64
	MaxItemValueSize        int64
}

// Stats walks the index and chunk stream and reads the header counters.
// The caller must hold the alloc read lock for the duration of the call.
func (s *Store) Stats() (Snapshot, error) {
	snap := Snapshot{
		MaxItems:            region.MaxItems,
		ItemMetadataSize:    MetaSize,
		HashTableMemorySize: s.layout.IndexSize,
	}

	used := 0
	for i := 0; i < region.KeysSlots; i++ {
		cell, err := index.ReadCell(s.r, s.layout, i)
		if err != nil {
			return snap, err
		}
		if cell != index.NotFound {
			used++
		}
	}
	snap.UsedHashTableSlots = used
	snap.AvailableHashTableSlots = region.KeysSlots - used
	snap.HashTableLoadFactor = float64(used) / float64(region.KeysSlots)

	off := s.firstChunkOffset()
	end := s.layout.ValueOffset + s.layout.ValueSize
	var items int
	var usedValue, availValue int64
	minVal, maxVal := int64(-1), int64(-1)

	for off < end {
		c := chunkView{r: s.r, off: off}
		vsize, err := c.valSize()
		if err != nil {
			return snap, err
		}
		valloc, err := c.valAllocSize()
		if err != nil {
			return snap, err
		}
		if vsize > 0 {
			items++
			usedValue += vsize
			if minVal == -1 || vsize < minVal {
				minVal = vsize
			}
			if vsize > maxVal {
				maxVal = vsize
			}
		} else {
			availValue += valloc
		}
		off += int64(MetaSize) + valloc
	}

	snap.Items = items
	snap.UsedValueMemSize = usedValue
	snap.AvailableValueMemSize = availValue
	if items > 0 {
		snap.AvgItemValueSize = float64(usedValue) / float64(items)
	}
	if minVal == -1 {
		minVal = 0
	}
	snap.MinItemValueSize = minVal
	snap.MaxItemValueSize = maxVal

	cur, err := s.r.HeaderOldestCursor()
	if err != nil {
		return snap, err
	}
	snap.OldestChunkOffset = cur

	statsLock := s.ls.Stats()
	if err := statsLock.RLock(); err != nil {
		return snap, fmt.Errorf("%w: %w", ErrLock, err)
	}
	hits, err := s.r.HeaderHits()
	if err == nil {
		snap.GetMissCount, err = s.r.HeaderMisses()
	}
	if unlockErr := statsLock.RUnlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("%w: %w", ErrLock, unlockErr)
	}
	if err != nil {
		return snap, err
	}
	snap.GetHitCount = hits

	return snap, nil
}
