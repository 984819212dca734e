package shmcache

import "errors"

// Sentinel errors for the cache facade's error kinds, matching the error
// taxonomy of the in-region engine. Wrap these with fmt.Errorf("...: %w",
// err) at call sites so callers can still errors.Is against the kind.
var (
	// ErrConfig signals an invalid desired region size: non-zero and
	// below the 16 MiB floor. Fatal to construction.
	ErrConfig = errors.New("shmcache: invalid configuration")

	// ErrLock signals that the OS failed to grant or release a lock.
	// The operation that surfaced it has released any locks it held.
	ErrLock = errors.New("shmcache: lock acquisition failed")

	// ErrRegionIO signals a failed read or write against the region.
	ErrRegionIO = errors.New("shmcache: region I/O failed")

	// ErrValueTooLarge signals a value beyond MAX_CHUNK_SIZE. The prior
	// entry for the key, if any, has already been removed.
	ErrValueTooLarge = errors.New("shmcache: value exceeds MAX_CHUNK_SIZE")

	// ErrNotNumeric signals an increment/decrement against an existing
	// value that does not parse as an integer. The existing value is
	// left untouched.
	ErrNotNumeric = errors.New("shmcache: existing value is not numeric")

	// ErrUseAfterDestroy signals an operation on a facade whose region
	// has been destroyed or detached. Fatal: construct a new Cache.
	ErrUseAfterDestroy = errors.New("shmcache: use after destroy/detach")
)
