// Package region owns the mapped bytes of the shared-memory cache region and
// exposes them as typed reads/writes at byte offsets.
//
// The region is partitioned, in order, into a fixed header, the hash index,
// and the value area (the chunk stream). Region itself knows nothing about
// chunks or index semantics — it only knows how to resolve those segment
// offsets and move bytes in and out of the mapped range. Higher layers
// (pkg/index, pkg/chunkstore, pkg/shmcache) build the cache semantics on top.
package region

import (
	"encoding/binary"
	"fmt"
)

// LongSize is the fixed integer width used throughout the region for
// header fields, index cells, and chunk metadata integers.
const LongSize = 8

const (
	// DefaultCacheSize is the region size used when no size is requested.
	DefaultCacheSize = 128 * 1024 * 1024

	// MinRegionSize is the smallest region Open will create or attach to.
	MinRegionSize = 16 * 1024 * 1024

	// MaxKeyLength is the maximum key length; longer keys are truncated.
	MaxKeyLength = 250

	// MinValueAllocSize is the floor on a chunk's payload capacity.
	MinValueAllocSize = 128

	// MaxChunkSize is the largest payload a chunk may hold.
	MaxChunkSize = 1 << 20 // 1 MiB

	// MaxItems bounds the number of simultaneously live keys the index is
	// sized for.
	MaxItems = 20000

	// KeysSlots is the index cell count. Kept at roughly MaxItems/0.75 so
	// the table stays at or below ~75% full at capacity.
	KeysSlots = 30000

	// FullCacheRemovedItems is reserved for a future batch-eviction mode.
	// The current allocator evicts one contiguous run at a time and never
	// consults this constant; see chunkstore.Store.Set.
	FullCacheRemovedItems = 1
)

const (
	magic          = "SHMC"
	formatVersion  = uint16(1)
	headerSize     = 64
	offMagic       = 0
	offVersion     = 4
	offTotalSize   = 8
	offOldestCur   = 16
	offHitCount    = 24
	offMissCount   = 32
	offIndexOffset = 40 // constant once computed, stored for clarity/debugging
)

// Layout describes the fixed partitioning of a region of the given total
// size: header, index (KeysSlots cells of LongSize bytes each), and the
// value area filling the remainder.
type Layout struct {
	TotalSize   int64
	HeaderSize  int64
	IndexOffset int64
	IndexSize   int64
	ValueOffset int64
	ValueSize   int64
}

// ComputeLayout resolves the segment offsets for a region of totalSize
// bytes. Returns an error if totalSize is too small to hold the header and
// a full index plus at least one minimum-size chunk.
func ComputeLayout(totalSize int64) (Layout, error) {
	indexSize := int64(KeysSlots) * LongSize
	valueOffset := headerSize + indexSize
	minValue := int64(chunkMetaSizeConst) + MinValueAllocSize

	if totalSize < valueOffset+minValue {
		return Layout{}, fmt.Errorf("region: size %d too small for header+index+min chunk (need >= %d)", totalSize, valueOffset+minValue)
	}

	return Layout{
		TotalSize:   totalSize,
		HeaderSize:  headerSize,
		IndexOffset: headerSize,
		IndexSize:   indexSize,
		ValueOffset: valueOffset,
		ValueSize:   totalSize - valueOffset,
	}, nil
}

// chunkMetaSizeConst mirrors chunkstore.MetaSize without importing
// pkg/chunkstore (which itself depends on pkg/region for layout). Kept in
// sync by pkg/chunkstore/store_test.go's TestMetaSizeMatchesRegionConst.
const chunkMetaSizeConst = 2*LongSize + MaxKeyLength + 1

// Region owns a mapped byte range and exposes typed offset-based I/O.
//
// Region never rebuilds a typed object graph over the mapped bytes: every
// "reference" used by callers is a byte offset into this range, and offsets
// must be re-resolved from the index on every operation because another
// attached process may have split, swallowed, or coalesced chunks between
// calls.
type Region struct {
	backend backend
	layout  Layout
	name    string
}

// backend is the platform-specific shared-memory primitive. See
// region_linux.go for the SysV shm implementation.
type backend interface {
	Bytes() []byte
	Size() int64
	Detach() error
	Destroy() error
}

// Name returns the name this region was opened under.
func (r *Region) Name() string { return r.name }

// Size returns the region's total size in bytes.
func (r *Region) Size() int64 { return r.layout.TotalSize }

// Layout returns the resolved segment layout for this region.
func (r *Region) Layout() Layout { return r.layout }

// Read returns a copy of length bytes starting at offset.
func (r *Region) Read(offset int64, length int) ([]byte, error) {
	b := r.backend.Bytes()
	if offset < 0 || length < 0 || offset+int64(length) > int64(len(b)) {
		return nil, fmt.Errorf("region: read [%d:%d] out of bounds (size %d)", offset, offset+int64(length), len(b))
	}
	out := make([]byte, length)
	copy(out, b[offset:offset+int64(length)])
	return out, nil
}

// ReadInto copies into dst starting at offset, returning the number of
// bytes copied. Used by hot paths that want to avoid an extra allocation.
func (r *Region) ReadInto(offset int64, dst []byte) error {
	b := r.backend.Bytes()
	if offset < 0 || offset+int64(len(dst)) > int64(len(b)) {
		return fmt.Errorf("region: read [%d:%d] out of bounds (size %d)", offset, offset+int64(len(dst)), len(b))
	}
	copy(dst, b[offset:offset+int64(len(dst))])
	return nil
}

// Write copies data into the region starting at offset.
func (r *Region) Write(offset int64, data []byte) error {
	b := r.backend.Bytes()
	if offset < 0 || offset+int64(len(data)) > int64(len(b)) {
		return fmt.Errorf("region: write [%d:%d] out of bounds (size %d)", offset, offset+int64(len(data)), len(b))
	}
	copy(b[offset:offset+int64(len(data))], data)
	return nil
}

// Zero fills length bytes at offset with zero.
func (r *Region) Zero(offset int64, length int64) error {
	b := r.backend.Bytes()
	if offset < 0 || offset+length > int64(len(b)) {
		return fmt.Errorf("region: zero [%d:%d] out of bounds (size %d)", offset, offset+length, len(b))
	}
	clear(b[offset : offset+length])
	return nil
}

// ReadInt reads a native LONG_SIZE-width signed integer at offset.
func (r *Region) ReadInt(offset int64) (int64, error) {
	b := r.backend.Bytes()
	if offset < 0 || offset+LongSize > int64(len(b)) {
		return 0, fmt.Errorf("region: read_int at %d out of bounds (size %d)", offset, len(b))
	}
	return int64(binary.LittleEndian.Uint64(b[offset : offset+LongSize])), nil
}

// WriteInt writes a native LONG_SIZE-width signed integer at offset.
func (r *Region) WriteInt(offset int64, value int64) error {
	b := r.backend.Bytes()
	if offset < 0 || offset+LongSize > int64(len(b)) {
		return fmt.Errorf("region: write_int at %d out of bounds (size %d)", offset, len(b))
	}
	binary.LittleEndian.PutUint64(b[offset:offset+LongSize], uint64(value))
	return nil
}

// Detach releases this process's mapping of the region without destroying
// it for other attachers.
func (r *Region) Detach() error {
	return r.backend.Detach()
}

// Destroy returns the region to the OS. Only legal when the caller holds
// the alloc write lock and no other attachers remain; enforced by the
// caller (pkg/shmcache), not by Region itself.
func (r *Region) Destroy() error {
	return r.backend.Destroy()
}
