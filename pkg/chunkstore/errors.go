package chunkstore

import "errors"

var (
	// ErrValueTooLarge is returned when a value exceeds region.MaxChunkSize.
	ErrValueTooLarge = errors.New("chunkstore: value exceeds MAX_CHUNK_SIZE")

	// ErrBucketLockContention is returned when an out-of-order secondary
	// bucket lock (taken while swallowing an occupied chunk during
	// allocation) could not be acquired within the bounded retry budget.
	ErrBucketLockContention = errors.New("chunkstore: could not acquire secondary bucket lock without risking deadlock")

	// ErrIndexFull names the full-index condition. This package never
	// returns it: when index.Insert probes every slot without finding a
	// free cell it reports the index package's own error, which Set
	// passes through unchanged.
	ErrIndexFull = errors.New("chunkstore: index has no free slot")

	// ErrLock is returned when the OS refuses to grant or release one of
	// the named locks this package takes internally (the oldest-cursor
	// lock, or a secondary bucket lock taken during eviction).
	ErrLock = errors.New("chunkstore: lock acquisition failed")
)
