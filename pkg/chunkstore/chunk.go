// Package chunkstore implements the value area: a contiguous stream of
// fixed-format chunks, each [metadata][payload], allocated, split, and
// reclaimed by a single forward-moving "oldest chunk" cursor. It owns the
// chunk byte format; pkg/index only ever sees chunk offsets and keys
// handed to it through the KeyAt callback, never the raw bytes.
package chunkstore

import (
	"fmt"

	"github.com/marmos91/shmcache/pkg/region"
)

// Chunk field layout, in order, within CHUNK_META_SIZE bytes:
//
//	key           [region.MaxKeyLength]byte  null-padded; first byte 0 means free
//	valallocsize  int64                      capacity of the payload slot
//	valsize       int64                      bytes currently used (0 == free)
//	flags         byte                       bit 0: caller-serialised payload
const (
	keyOff          = 0
	valAllocSizeOff = region.MaxKeyLength
	valSizeOff      = valAllocSizeOff + region.LongSize
	flagsOff        = valSizeOff + region.LongSize

	// MetaSize is CHUNK_META_SIZE: the fixed byte width of a chunk's
	// metadata, before its payload.
	MetaSize = flagsOff + 1
)

// Flag bits for the chunk flags byte.
const (
	FlagSerialized uint8 = 1 << 0
)

// chunkView resolves field offsets for the chunk at a given absolute
// region offset.
type chunkView struct {
	r   *region.Region
	off int64
}

func (c chunkView) readKey() (string, error) {
	b, err := c.r.Read(c.off+keyOff, region.MaxKeyLength)
	if err != nil {
		return "", err
	}
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n]), nil
}

func (c chunkView) writeKey(key string) error {
	if len(key) > region.MaxKeyLength {
		key = key[:region.MaxKeyLength]
	}
	buf := make([]byte, region.MaxKeyLength)
	copy(buf, key)
	return c.r.Write(c.off+keyOff, buf)
}

func (c chunkView) clearKey() error {
	return c.r.Zero(c.off+keyOff, region.MaxKeyLength)
}

func (c chunkView) valAllocSize() (int64, error) { return c.r.ReadInt(c.off + valAllocSizeOff) }
func (c chunkView) setValAllocSize(v int64) error {
	return c.r.WriteInt(c.off+valAllocSizeOff, v)
}

func (c chunkView) valSize() (int64, error) { return c.r.ReadInt(c.off + valSizeOff) }
func (c chunkView) setValSize(v int64) error {
	return c.r.WriteInt(c.off+valSizeOff, v)
}

func (c chunkView) flags() (uint8, error) {
	b, err := c.r.Read(c.off+flagsOff, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c chunkView) setFlags(f uint8) error {
	return c.r.Write(c.off+flagsOff, []byte{f})
}

func (c chunkView) payloadOffset() int64 { return c.off + int64(MetaSize) }

func (c chunkView) readPayload() ([]byte, error) {
	size, err := c.valSize()
	if err != nil {
		return nil, err
	}
	return c.r.Read(c.payloadOffset(), int(size))
}

func (c chunkView) writePayload(data []byte) error {
	return c.r.Write(c.payloadOffset(), data)
}

// occupied reports whether the chunk holds a live entry.
func (c chunkView) occupied() (bool, error) {
	size, err := c.valSize()
	if err != nil {
		return false, err
	}
	return size > 0, nil
}

// totalSize returns MetaSize + valallocsize: the number of bytes this
// chunk occupies in the value stream.
func (c chunkView) totalSize() (int64, error) {
	alloc, err := c.valAllocSize()
	if err != nil {
		return 0, err
	}
	return int64(MetaSize) + alloc, nil
}

// nextOffset returns the offset of the chunk immediately following this
// one, and false if this chunk runs to the end of the value area (the
// caller must wrap to the first chunk explicitly).
func (c chunkView) nextOffset(layout region.Layout) (int64, bool, error) {
	size, err := c.totalSize()
	if err != nil {
		return 0, false, err
	}
	next := c.off + size
	end := layout.ValueOffset + layout.ValueSize
	if next >= end {
		if next > end {
			return 0, false, fmt.Errorf("chunkstore: chunk at %d overruns value area end %d", c.off, end)
		}
		return 0, false, nil
	}
	return next, true, nil
}
