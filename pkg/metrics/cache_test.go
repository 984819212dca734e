package metrics

import "testing"

func TestNilHelpersDoNotPanic(t *testing.T) {
	ObserveOp(nil, "get", 0, "ok")
	ObserveGet(nil, true, 0, 10)
	RecordEviction(nil)
	RecordOccupancy(nil, 0, 0)
}

func TestNewCacheMetricsReturnsNilWhenDisabled(t *testing.T) {
	if got := NewCacheMetrics(); got != nil {
		t.Errorf("NewCacheMetrics() = %v, want nil when not enabled", got)
	}
}

func TestIsEnabledReflectsInitRegistry(t *testing.T) {
	if IsEnabled() {
		t.Skip("metrics already enabled by an earlier test in this run")
	}
	InitRegistry()
	if !IsEnabled() {
		t.Error("IsEnabled() = false after InitRegistry(), want true")
	}
	if GetRegistry() == nil {
		t.Error("GetRegistry() = nil after InitRegistry()")
	}
}
