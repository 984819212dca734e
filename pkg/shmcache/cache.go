// Package shmcache is the public cache facade: get/set/add/replace/
// delete/increment/decrement/exists/flush/stats/destroy, composing
// pkg/region, pkg/lockset, pkg/index, and pkg/chunkstore under the lock
// discipline that lets many attached processes share one region safely.
//
// A Cache never caches chunk offsets or other region state across calls —
// every operation re-resolves the key through the index, because another
// attached process may have split, swallowed, or coalesced chunks between
// calls. The only process-local state a Cache keeps is a pair of
// unflushed hit/miss counters, merged into the region's counters under
// the stats lock when the Cache is closed.
package shmcache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/shmcache/internal/logger"
	"github.com/marmos91/shmcache/pkg/chunkstore"
	"github.com/marmos91/shmcache/pkg/index"
	"github.com/marmos91/shmcache/pkg/lockset"
	"github.com/marmos91/shmcache/pkg/metrics"
	"github.com/marmos91/shmcache/pkg/region"
)

// Cache is a process's attachment to a named shared-memory region. Open
// more than one from the same process only if you intend to model
// separate attachers (e.g. in tests simulating multiple OS processes);
// ordinary callers open exactly one per process.
type Cache struct {
	name       string
	instanceID string

	region  *region.Region
	locks   *lockset.LockSet
	store   *chunkstore.Store
	metrics metrics.CacheMetrics

	localHits   atomic.Int64
	localMisses atomic.Int64
	closed      atomic.Bool
}

// Open creates or attaches to the named region, sized to desiredSize
// bytes (0 selects region.DefaultCacheSize). desiredSize, if non-zero,
// must be at least region.MinRegionSize. An existing region keeps the
// size it was created with. Equivalent to
// OpenWithMetrics(name, desiredSize, nil).
func Open(name string, desiredSize int64) (*Cache, error) {
	return OpenWithMetrics(name, desiredSize, nil)
}

// OpenWithMetrics is Open with an optional metrics.CacheMetrics observer.
// Pass nil (or use Open) for zero metrics overhead.
func OpenWithMetrics(name string, desiredSize int64, m metrics.CacheMetrics) (*Cache, error) {
	if desiredSize != 0 && desiredSize < region.MinRegionSize {
		return nil, fmt.Errorf("%w: desired size %d below minimum %d", ErrConfig, desiredSize, region.MinRegionSize)
	}

	r, err := region.Open(name, desiredSize)
	if err != nil {
		return nil, fmt.Errorf("%w: opening region %q: %w", ErrRegionIO, name, err)
	}

	ls, _, err := lockset.Open(name, region.KeysSlots)
	if err != nil {
		_ = r.Detach()
		return nil, fmt.Errorf("%w: opening lock set for %q: %w", ErrLock, name, err)
	}

	store := chunkstore.New(r, ls)
	if m != nil {
		store.SetEvictionHook(func() { metrics.RecordEviction(m) })
	}

	alloc := ls.Alloc()
	if err := alloc.Lock(); err != nil {
		_ = r.Detach()
		return nil, fmt.Errorf("%w: locking alloc for %q: %w", ErrLock, name, err)
	}
	initErr := store.InitValueArea()
	if unlockErr := alloc.Unlock(); unlockErr != nil && initErr == nil {
		initErr = unlockErr
	}
	if initErr != nil {
		_ = r.Detach()
		return nil, fmt.Errorf("%w: laying out value area for %q: %w", ErrRegionIO, name, initErr)
	}

	c := &Cache{
		name:       name,
		instanceID: uuid.NewString(),
		region:     r,
		locks:      ls,
		store:      store,
		metrics:    m,
	}

	logger.Info("cache attached", logger.Region(name), logger.RegionSize(int(r.Size())), logger.KeyInstanceID, c.instanceID)
	return c, nil
}

func truncateKey(key string) string {
	if len(key) > region.MaxKeyLength {
		return key[:region.MaxKeyLength]
	}
	return key
}

// wrapLockErr wraps a failure returned by a pkg/lockset lock method as
// ErrLock. Every facade method that takes a lock checks this error:
// pkg/lockset reports OS failures as errors rather than panicking (see
// DESIGN.md's pkg/lockset entry).
func wrapLockErr(err error) error {
	return fmt.Errorf("%w: %w", ErrLock, err)
}

func (c *Cache) checkAlive() error {
	if c.closed.Load() {
		return ErrUseAfterDestroy
	}
	return nil
}

// Get returns the value and serialised flag stored for key, or
// found == false on a miss. Increments the process-local hit/miss
// counters, flushed to the region on Close.
func (c *Cache) Get(key string) (value []byte, serialized bool, found bool, err error) {
	if err := c.checkAlive(); err != nil {
		return nil, false, false, err
	}
	key = truncateKey(key)
	bucket := index.NaturalBucket(key)
	start := time.Now()

	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return nil, false, false, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()

	bl := c.locks.Bucket(bucket)
	if err := bl.RLock(); err != nil {
		return nil, false, false, wrapLockErr(err)
	}
	value, flags, found, getErr := c.store.Get(key)
	unlockErr := bl.RUnlock()
	if getErr != nil {
		return nil, false, false, fmt.Errorf("%w: get %q: %w", ErrRegionIO, key, getErr)
	}
	if unlockErr != nil {
		return nil, false, false, wrapLockErr(unlockErr)
	}

	if found {
		c.localHits.Add(1)
	} else {
		c.localMisses.Add(1)
	}
	metrics.ObserveGet(c.metrics, found, time.Since(start), len(value))
	return value, flags&chunkstore.FlagSerialized != 0, found, nil
}

// Set overwrites key's value unconditionally.
func (c *Cache) Set(key string, value []byte, serialized bool) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	key = truncateKey(key)
	start := time.Now()

	if len(value) > region.MaxChunkSize {
		logger.Warn("value exceeds MAX_CHUNK_SIZE", logger.Key(key), logger.ValueSize(len(value)))
	}

	bucket := index.NaturalBucket(key)
	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()

	bl := c.locks.Bucket(bucket)
	if err := bl.Lock(); err != nil {
		return wrapLockErr(err)
	}
	defer func() { _ = bl.Unlock() }()

	err := c.setLocked(key, value, serialized)
	metrics.ObserveOp(c.metrics, "set", time.Since(start), outcome(err))
	return err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Cache) setLocked(key string, value []byte, serialized bool) error {
	var flags uint8
	if serialized {
		flags |= chunkstore.FlagSerialized
	}
	if err := c.store.Set(key, value, flags); err != nil {
		return wrapStoreErr(err, key)
	}
	return nil
}

// Add sets key's value only if it was absent.
func (c *Cache) Add(key string, value []byte, serialized bool) (bool, error) {
	if err := c.checkAlive(); err != nil {
		return false, err
	}
	key = truncateKey(key)
	bucket := index.NaturalBucket(key)

	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()
	bl := c.locks.Bucket(bucket)
	if err := bl.Lock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = bl.Unlock() }()

	exists, err := c.store.Exists(key)
	if err != nil {
		return false, fmt.Errorf("%w: add %q: %w", ErrRegionIO, key, err)
	}
	if exists {
		return false, nil
	}
	if err := c.setLocked(key, value, serialized); err != nil {
		return false, err
	}
	return true, nil
}

// Replace sets key's value only if it was already present.
func (c *Cache) Replace(key string, value []byte, serialized bool) (bool, error) {
	if err := c.checkAlive(); err != nil {
		return false, err
	}
	key = truncateKey(key)
	bucket := index.NaturalBucket(key)

	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()
	bl := c.locks.Bucket(bucket)
	if err := bl.Lock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = bl.Unlock() }()

	exists, err := c.store.Exists(key)
	if err != nil {
		return false, fmt.Errorf("%w: replace %q: %w", ErrRegionIO, key, err)
	}
	if !exists {
		return false, nil
	}
	if err := c.setLocked(key, value, serialized); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key if present. Returns true whether key was absent on
// entry or successfully removed; only an OS-level failure returns false.
func (c *Cache) Delete(key string) (bool, error) {
	if err := c.checkAlive(); err != nil {
		return false, err
	}
	key = truncateKey(key)
	bucket := index.NaturalBucket(key)

	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()
	bl := c.locks.Bucket(bucket)
	if err := bl.Lock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = bl.Unlock() }()

	if err := c.store.Remove(key); err != nil {
		if errors.Is(err, chunkstore.ErrLock) {
			return false, fmt.Errorf("%w: %v", ErrLock, err)
		}
		return false, fmt.Errorf("%w: delete %q: %w", ErrRegionIO, key, err)
	}
	return true, nil
}

// Exists reports whether key has a live entry, without reading its value.
func (c *Cache) Exists(key string) (bool, error) {
	if err := c.checkAlive(); err != nil {
		return false, err
	}
	key = truncateKey(key)
	bucket := index.NaturalBucket(key)

	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()
	bl := c.locks.Bucket(bucket)
	if err := bl.RLock(); err != nil {
		return false, wrapLockErr(err)
	}
	defer func() { _ = bl.RUnlock() }()

	found, err := c.store.Exists(key)
	if err != nil {
		return false, fmt.Errorf("%w: exists %q: %w", ErrRegionIO, key, err)
	}
	return found, nil
}

// Increment reads key's value under a bucket write lock. If absent, it is
// set to initial. If present and numeric, it becomes max(value+delta, 0).
// If present and non-numeric, Increment fails and leaves the value
// untouched.
func (c *Cache) Increment(key string, delta int64, initial int64) (int64, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	key = truncateKey(key)
	bucket := index.NaturalBucket(key)

	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return 0, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()
	bl := c.locks.Bucket(bucket)
	if err := bl.Lock(); err != nil {
		return 0, wrapLockErr(err)
	}
	defer func() { _ = bl.Unlock() }()

	val, flags, found, err := c.store.Get(key)
	if err != nil {
		return 0, fmt.Errorf("%w: increment %q: %w", ErrRegionIO, key, err)
	}

	if !found {
		if err := c.store.Set(key, []byte(strconv.FormatInt(initial, 10)), 0); err != nil {
			return 0, wrapStoreErr(err, key)
		}
		return initial, nil
	}

	n, perr := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
	if perr != nil {
		logger.Warn("increment on non-numeric value", logger.Key(key))
		return 0, fmt.Errorf("%w: key %q", ErrNotNumeric, key)
	}

	next := n + delta
	if next < 0 {
		next = 0
	}
	if err := c.store.Set(key, []byte(strconv.FormatInt(next, 10)), flags); err != nil {
		return 0, wrapStoreErr(err, key)
	}
	return next, nil
}

// Decrement is Increment with delta negated.
func (c *Cache) Decrement(key string, delta int64, initial int64) (int64, error) {
	return c.Increment(key, -delta, initial)
}

// Flush reinitializes the cache to empty under the alloc write lock.
func (c *Cache) Flush() error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	alloc := c.locks.Alloc()
	if err := alloc.Lock(); err != nil {
		return wrapLockErr(err)
	}
	defer func() { _ = alloc.Unlock() }()

	if err := c.store.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrRegionIO, err)
	}
	return nil
}

// Stats returns a snapshot of cache occupancy and hit/miss counters,
// produced under the alloc read lock.
func (c *Cache) Stats() (chunkstore.Snapshot, error) {
	if err := c.checkAlive(); err != nil {
		return chunkstore.Snapshot{}, err
	}
	alloc := c.locks.Alloc()
	if err := alloc.RLock(); err != nil {
		return chunkstore.Snapshot{}, wrapLockErr(err)
	}
	defer func() { _ = alloc.RUnlock() }()

	snap, err := c.store.Stats()
	if err != nil {
		if errors.Is(err, chunkstore.ErrLock) {
			return snap, fmt.Errorf("%w: %v", ErrLock, err)
		}
		return snap, fmt.Errorf("%w: stats: %w", ErrRegionIO, err)
	}
	metrics.RecordOccupancy(c.metrics, snap.Items, snap.UsedValueMemSize)
	return snap, nil
}

func (c *Cache) flushCounters() error {
	hits := c.localHits.Swap(0)
	misses := c.localMisses.Swap(0)
	if hits == 0 && misses == 0 {
		return nil
	}

	st := c.locks.Stats()
	if err := st.Lock(); err != nil {
		return wrapLockErr(err)
	}
	defer func() { _ = st.Unlock() }()

	if hits > 0 {
		if err := c.region.AddHeaderHits(hits); err != nil {
			return err
		}
	}
	if misses > 0 {
		if err := c.region.AddHeaderMisses(misses); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes process-local counters into the region and detaches this
// process's mapping. It does not destroy the region for other attachers.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	flushErr := c.flushCounters()
	detachErr := c.region.Detach()
	if flushErr != nil {
		return fmt.Errorf("%w: flushing counters on close: %w", ErrRegionIO, flushErr)
	}
	if detachErr != nil {
		return fmt.Errorf("%w: detaching region on close: %w", ErrRegionIO, detachErr)
	}
	return nil
}

// Destroy returns the region and lock set to the OS entirely. Only call
// this when no other process is attached.
func (c *Cache) Destroy() error {
	if err := c.checkAlive(); err != nil {
		return err
	}

	alloc := c.locks.Alloc()
	if err := alloc.Lock(); err != nil {
		return wrapLockErr(err)
	}
	if err := c.region.Destroy(); err != nil {
		_ = alloc.Unlock()
		return fmt.Errorf("%w: destroying region %q: %w", ErrRegionIO, c.name, err)
	}
	_ = alloc.Unlock()

	if err := c.locks.Destroy(); err != nil {
		c.closed.Store(true)
		return fmt.Errorf("%w: destroying lock set for %q: %w", ErrLock, c.name, err)
	}
	c.closed.Store(true)
	return nil
}

func wrapStoreErr(err error, key string) error {
	switch {
	case errors.Is(err, chunkstore.ErrValueTooLarge):
		return fmt.Errorf("%w: key %q", ErrValueTooLarge, key)
	case errors.Is(err, chunkstore.ErrBucketLockContention), errors.Is(err, chunkstore.ErrLock):
		return fmt.Errorf("%w: %v", ErrLock, err)
	default:
		return fmt.Errorf("%w: set %q: %w", ErrRegionIO, key, err)
	}
}
