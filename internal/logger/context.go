package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context.
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single cache
// operation (get/set/add/replace/delete/increment/decrement/flush/stats).
type LogContext struct {
	InstanceID string    // UUID of the attaching Cache handle
	Operation  string    // get, set, add, replace, delete, increment, decrement, flush, stats
	Key        string    // cache key involved, if any
	PID        int       // process ID performing the operation
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given instance ID.
func NewLogContext(instanceID string) *LogContext {
	return &LogContext{
		InstanceID: instanceID,
		PID:        pid(),
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithOperation returns a copy with the operation set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = op
	}
	return clone
}

// WithKey returns a copy with the cache key set.
func (lc *LogContext) WithKey(key string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Key = key
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
