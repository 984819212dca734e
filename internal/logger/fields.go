package logger

import (
	"log/slog"
	"os"
)

// Standard field keys for structured logging across the region engine and
// facade. Use these keys consistently so log lines are greppable/aggregable.
const (
	// Attribution.
	KeyInstanceID = "instance_id" // UUID of the attaching Cache handle
	KeyPID        = "pid"         // OS process ID
	KeyOperation  = "operation"   // get, set, add, replace, delete, increment, decrement, flush, stats, destroy

	// Key/value cache domain.
	KeyCacheKey  = "key" // cache key (truncated to MAX_KEY_LENGTH for logging)
	KeyValueSize = "value_size"
	KeyFlags     = "flags"

	// Region / chunk store internals.
	KeyRegionName  = "region"
	KeyRegionSize  = "region_size"
	KeyChunkOffset = "chunk_offset"
	KeyBucket      = "bucket"
	KeyCursor      = "oldest_cursor"

	// Lock discipline.
	KeyLockName = "lock"
	KeyLockMode = "lock_mode"

	// Operation metadata.
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// pid returns the current process ID, used to attribute log lines to the
// attaching process when many short-lived processes share one region.
func pid() int {
	return os.Getpid()
}

// ============================================================================
// Field Helpers
// ============================================================================
//
// These wrap slog.Attr construction for the keys above so call sites read
// as `logger.Key(k), logger.DurationMs(ms)` instead of repeating string
// keys at every call site.

// Err formats an error for logging. Returns an empty attr for a nil error
// so it can be passed unconditionally: logger.Err(err).
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Key returns an attr for the cache key involved in an operation.
func Key(k string) slog.Attr {
	return slog.String(KeyCacheKey, k)
}

// ValueSize returns an attr for a payload size in bytes.
func ValueSize(n int) slog.Attr {
	return slog.Int(KeyValueSize, n)
}

// Flags returns an attr for the chunk flags byte.
func Flags(f uint8) slog.Attr {
	return slog.Int(KeyFlags, int(f))
}

// Region returns an attr for the shared-memory region name.
func Region(name string) slog.Attr {
	return slog.String(KeyRegionName, name)
}

// RegionSize returns an attr for the region size in bytes.
func RegionSize(n int) slog.Attr {
	return slog.Int(KeyRegionSize, n)
}

// ChunkOffset returns an attr for a byte offset into the value area.
func ChunkOffset(off int64) slog.Attr {
	return slog.Int64(KeyChunkOffset, off)
}

// Bucket returns an attr for an index bucket number.
func Bucket(n int) slog.Attr {
	return slog.Int(KeyBucket, n)
}

// Cursor returns an attr for the oldest-chunk cursor position.
func Cursor(off int64) slog.Attr {
	return slog.Int64(KeyCursor, off)
}

// LockName returns an attr identifying a named lock (alloc, stats, oldest, bucket{i}).
func LockName(name string) slog.Attr {
	return slog.String(KeyLockName, name)
}

// LockMode returns an attr for the acquired lock mode ("read" or "write").
func LockMode(mode string) slog.Attr {
	return slog.String(KeyLockMode, mode)
}

// Operation returns an attr naming the facade operation in progress.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// DurationMs returns an attr for an operation's duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
