package chunkstore

import (
	"fmt"
	"time"

	"github.com/marmos91/shmcache/pkg/index"
	"github.com/marmos91/shmcache/pkg/lockset"
	"github.com/marmos91/shmcache/pkg/region"
)

// Store owns the value area (the chunk stream) and the index over it. It
// assumes its caller already holds the alloc lock (read for per-item
// operations, write for Flush) and, for Set/Remove, the write lock on the
// key's natural bucket. Store acquires the oldest-cursor lock itself for
// any operation that walks or moves the FIFO cursor, and acquires a
// second bucket lock, out of numeric order if necessary, only on the one
// path that swallows an occupied neighboring chunk during allocation.
type Store struct {
	r       *region.Region
	ls      *lockset.LockSet
	layout  region.Layout
	onEvict func()
}

// New returns a Store over an already-open region and lock set.
func New(r *region.Region, ls *lockset.LockSet) *Store {
	return &Store{r: r, ls: ls, layout: r.Layout()}
}

// SetEvictionHook registers a callback invoked each time allocateAndInsert
// evicts a live chunk to make room for a new value. Used by pkg/shmcache to
// feed an optional metrics.CacheMetrics without this package knowing
// anything about metrics.
func (s *Store) SetEvictionHook(fn func()) {
	s.onEvict = fn
}

func (s *Store) firstChunkOffset() int64 { return s.layout.ValueOffset }

func (s *Store) keyAt(offset int64) (string, error) {
	return chunkView{r: s.r, off: offset}.readKey()
}

// InitValueArea lays the value area out as one free chunk spanning it and
// sets the oldest cursor to its start. A no-op if the cursor shows the
// area is already laid out (HeaderOldestCursor != -1): called whenever a
// process attaches, but only the process that won the region's creation
// race should ever find cur == -1.
func (s *Store) InitValueArea() error {
	cur, err := s.r.HeaderOldestCursor()
	if err != nil {
		return err
	}
	if cur != -1 {
		return nil
	}

	c := chunkView{r: s.r, off: s.firstChunkOffset()}
	if err := c.clearKey(); err != nil {
		return err
	}
	if err := c.setValAllocSize(s.layout.ValueSize - int64(MetaSize)); err != nil {
		return err
	}
	if err := c.setValSize(0); err != nil {
		return err
	}
	if err := c.setFlags(0); err != nil {
		return err
	}
	return s.r.SetHeaderOldestCursor(s.firstChunkOffset())
}

// Get returns the payload and flags stored for key, or found == false on a
// miss.
func (s *Store) Get(key string) (value []byte, flags uint8, found bool, err error) {
	off, found, err := index.Find(s.r, s.layout, key, s.keyAt)
	if err != nil || !found {
		return nil, 0, found, err
	}
	c := chunkView{r: s.r, off: off}
	value, err = c.readPayload()
	if err != nil {
		return nil, 0, false, err
	}
	flags, err = c.flags()
	if err != nil {
		return nil, 0, false, err
	}
	return value, flags, true, nil
}

// Exists reports whether key has a live chunk, without reading its
// payload.
func (s *Store) Exists(key string) (bool, error) {
	_, found, err := index.Find(s.r, s.layout, key, s.keyAt)
	return found, err
}

// Set implements the write algorithm of the value-area spec: in-place
// update when the existing allocation is large enough, otherwise
// allocate fresh from the oldest cursor, swallowing and (if the
// remainder is large enough) splitting chunks as it grows to fit.
func (s *Store) Set(key string, value []byte, flags uint8) error {
	if len(value) > region.MaxChunkSize {
		// A failed set still removes any prior entry for the key, per the
		// well-known "failed SET clears the old value" semantics this
		// cache follows.
		_ = s.Remove(key)
		return ErrValueTooLarge
	}

	primaryBucket := index.NaturalBucket(key)

	off, found, err := index.Find(s.r, s.layout, key, s.keyAt)
	if err != nil {
		return err
	}
	if found {
		c := chunkView{r: s.r, off: off}
		alloc, err := c.valAllocSize()
		if err != nil {
			return err
		}
		if alloc >= int64(len(value)) {
			if err := c.setValSize(int64(len(value))); err != nil {
				return err
			}
			if err := c.setFlags(flags); err != nil {
				return err
			}
			return c.writePayload(value)
		}
		if err := s.Remove(key); err != nil {
			return err
		}
	}

	return s.allocateAndInsert(key, value, flags, primaryBucket)
}

func (s *Store) allocateAndInsert(key string, value []byte, flags uint8, primaryBucket int) error {
	oldest := s.ls.Oldest()
	if err := oldest.Lock(); err != nil {
		return fmt.Errorf("%w: %w", ErrLock, err)
	}
	defer func() { _ = oldest.Unlock() }()

	cur, err := s.r.HeaderOldestCursor()
	if err != nil {
		return err
	}
	target := cur

	if err := s.evictIfOccupied(target, primaryBucket); err != nil {
		return err
	}

	tc := chunkView{r: s.r, off: target}
	size, err := tc.valAllocSize()
	if err != nil {
		return err
	}

	needed := int64(len(value))
	for size < needed {
		next, hasNext, err := tc.nextOffset(s.layout)
		if err != nil {
			return err
		}
		if !hasNext {
			// Wrap to the first chunk of the value area. This is the one
			// point where the cursor may jump discontinuously.
			target = s.firstChunkOffset()
			if err := s.evictIfOccupied(target, primaryBucket); err != nil {
				return err
			}
			tc = chunkView{r: s.r, off: target}
			size, err = tc.valAllocSize()
			if err != nil {
				return err
			}
			continue
		}
		if err := s.evictIfOccupied(next, primaryBucket); err != nil {
			return err
		}
		nc := chunkView{r: s.r, off: next}
		nAlloc, err := nc.valAllocSize()
		if err != nil {
			return err
		}
		size += int64(MetaSize) + nAlloc
		// Commit the enlarged allocation immediately so the chunk stream
		// stays tiled (I1) even if a later step in this same walk fails.
		if err := tc.setValAllocSize(size); err != nil {
			return err
		}
	}

	remainder := size - needed
	if remainder >= int64(MetaSize)+region.MinValueAllocSize {
		if err := tc.setValAllocSize(needed); err != nil {
			return err
		}
		freeOff := target + int64(MetaSize) + needed
		fc := chunkView{r: s.r, off: freeOff}
		if err := fc.clearKey(); err != nil {
			return err
		}
		if err := fc.setValAllocSize(remainder - int64(MetaSize)); err != nil {
			return err
		}
		if err := fc.setValSize(0); err != nil {
			return err
		}
		if err := fc.setFlags(0); err != nil {
			return err
		}
	}

	if err := tc.writeKey(key); err != nil {
		return err
	}
	if err := tc.setValSize(needed); err != nil {
		return err
	}
	if err := tc.setFlags(flags); err != nil {
		return err
	}
	if err := tc.writePayload(value); err != nil {
		return err
	}

	if err := index.Insert(s.r, s.layout, key, target); err != nil {
		return err
	}

	next, hasNext, err := tc.nextOffset(s.layout)
	if err != nil {
		return err
	}
	if !hasNext {
		next = s.firstChunkOffset()
	}
	return s.r.SetHeaderOldestCursor(next)
}

// evictIfOccupied removes whatever live entry occupies the chunk at
// offset, first acquiring that entry's bucket write lock if it differs
// from the bucket the caller already holds (primaryBucket). Lock
// acquisition order is numeric: a higher-indexed bucket is taken with an
// ordinary blocking Lock, a lower-indexed one with a bounded non-blocking
// retry, surfacing ErrBucketLockContention rather than risking deadlock
// against a concurrent walk going the other way.
func (s *Store) evictIfOccupied(offset int64, primaryBucket int) error {
	c := chunkView{r: s.r, off: offset}
	occupied, err := c.occupied()
	if err != nil {
		return err
	}
	if !occupied {
		return nil
	}
	key, err := c.readKey()
	if err != nil {
		return err
	}
	victimBucket := index.NaturalBucket(key)

	unlock, err := s.acquireOrderedBucketLock(primaryBucket, victimBucket)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.removeAt(key, offset); err != nil {
		return err
	}
	if s.onEvict != nil {
		s.onEvict()
	}
	return nil
}

const secondLockMaxAttempts = 64
const secondLockRetryDelay = time.Millisecond

func (s *Store) acquireOrderedBucketLock(primaryBucket, targetBucket int) (unlock func(), err error) {
	if targetBucket == primaryBucket {
		return func() {}, nil
	}
	l := s.ls.Bucket(targetBucket)
	unlock := func() { _ = l.Unlock() }
	if targetBucket > primaryBucket {
		if err := l.Lock(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLock, err)
		}
		return unlock, nil
	}

	for attempt := 0; attempt < secondLockMaxAttempts; attempt++ {
		ok, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLock, err)
		}
		if ok {
			return unlock, nil
		}
		time.Sleep(secondLockRetryDelay)
	}
	return nil, fmt.Errorf("%w: bucket %d while holding bucket %d", ErrBucketLockContention, targetBucket, primaryBucket)
}

// Remove deletes key's entry if present. A miss is not an error: delete
// on an absent key is defined to succeed.
func (s *Store) Remove(key string) error {
	oldest := s.ls.Oldest()
	if err := oldest.Lock(); err != nil {
		return fmt.Errorf("%w: %w", ErrLock, err)
	}
	defer func() { _ = oldest.Unlock() }()

	off, found, err := index.Find(s.r, s.layout, key, s.keyAt)
	if err != nil || !found {
		return err
	}
	return s.removeAt(key, off)
}

// removeAt assumes the caller holds both the oldest lock and the write
// lock on key's natural bucket.
func (s *Store) removeAt(key string, offset int64) error {
	if err := index.Remove(s.r, s.layout, key, s.keyAt); err != nil {
		return err
	}
	c := chunkView{r: s.r, off: offset}
	if err := c.clearKey(); err != nil {
		return err
	}
	if err := c.setValSize(0); err != nil {
		return err
	}
	return s.coalesceForward(offset)
}

// coalesceForward merges offset's now-free chunk with any immediately
// following free chunks, and pulls the oldest cursor back to the start of
// the merged run if it had been pointing strictly inside it.
func (s *Store) coalesceForward(offset int64) error {
	c := chunkView{r: s.r, off: offset}

	for {
		next, has, err := c.nextOffset(s.layout)
		if err != nil {
			return err
		}
		if !has {
			break
		}
		nc := chunkView{r: s.r, off: next}
		occupied, err := nc.occupied()
		if err != nil {
			return err
		}
		if occupied {
			break
		}
		nAlloc, err := nc.valAllocSize()
		if err != nil {
			return err
		}
		alloc, err := c.valAllocSize()
		if err != nil {
			return err
		}
		if err := c.setValAllocSize(alloc + int64(MetaSize) + nAlloc); err != nil {
			return err
		}
	}

	finalAlloc, err := c.valAllocSize()
	if err != nil {
		return err
	}
	mergedEnd := offset + int64(MetaSize) + finalAlloc

	cur, err := s.r.HeaderOldestCursor()
	if err != nil {
		return err
	}
	if cur > offset && cur < mergedEnd {
		return s.r.SetHeaderOldestCursor(offset)
	}
	return nil
}

// Flush reinitializes the index and value area to an empty cache. The
// caller must hold the alloc write lock.
func (s *Store) Flush() error {
	for i := 0; i < region.KeysSlots; i++ {
		if err := index.WriteCell(s.r, s.layout, i, index.NotFound); err != nil {
			return err
		}
	}
	if err := s.r.Zero(s.layout.ValueOffset, s.layout.ValueSize); err != nil {
		return err
	}
	c := chunkView{r: s.r, off: s.firstChunkOffset()}
	if err := c.setValAllocSize(s.layout.ValueSize - int64(MetaSize)); err != nil {
		return err
	}
	if err := c.setValSize(0); err != nil {
		return err
	}
	return s.r.SetHeaderOldestCursor(s.firstChunkOffset())
}
