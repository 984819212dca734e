package shmcache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/shmcache/pkg/region"
)

func openTestCache(t *testing.T, size int64) *Cache {
	t.Helper()
	name := fmt.Sprintf("shmcache-test-cache-%s", t.Name())
	c, err := Open(name, size)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := c.Destroy(); err != nil {
			t.Errorf("Destroy() error = %v", err)
		}
	})
	return c
}

func TestSetGetRoundTrip(t *testing.T) {
	c := openTestCache(t, 0)

	if err := c.Set("greeting", []byte("hello"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, serialized, found, err := c.Get("greeting")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() found = false, want true")
	}
	if serialized {
		t.Error("Get() serialized = true, want false")
	}
	if !bytes.Equal(v, []byte("hello")) {
		t.Errorf("Get() value = %q, want %q", v, "hello")
	}
}

func TestGetMissReturnsNotFound(t *testing.T) {
	c := openTestCache(t, 0)

	_, _, found, err := c.Get("absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true for absent key, want false")
	}
}

func TestSerializedFlagRoundTrips(t *testing.T) {
	c := openTestCache(t, 0)

	if err := c.Set("blob", []byte{0x01, 0x02}, true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_, serialized, found, err := c.Get("blob")
	if err != nil || !found {
		t.Fatalf("Get() = (_, _, %v, %v), want a hit", found, err)
	}
	if !serialized {
		t.Error("Get() serialized = false, want true")
	}
}

func TestAddOnlySetsWhenAbsent(t *testing.T) {
	c := openTestCache(t, 0)

	added, err := c.Add("k", []byte("first"), false)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !added {
		t.Fatal("Add() on absent key = false, want true")
	}

	added, err = c.Add("k", []byte("second"), false)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added {
		t.Error("Add() on existing key = true, want false")
	}

	v, _, _, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(v, []byte("first")) {
		t.Errorf("Get() value = %q, want original %q preserved", v, "first")
	}
}

func TestReplaceOnlySetsWhenPresent(t *testing.T) {
	c := openTestCache(t, 0)

	replaced, err := c.Replace("k", []byte("v"), false)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if replaced {
		t.Error("Replace() on absent key = true, want false")
	}

	if _, err := c.Add("k", []byte("v1"), false); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	replaced, err = c.Replace("k", []byte("v2"), false)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if !replaced {
		t.Error("Replace() on existing key = false, want true")
	}

	v, _, _, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(v, []byte("v2")) {
		t.Errorf("Get() value = %q, want %q", v, "v2")
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := openTestCache(t, 0)

	if err := c.Set("k", []byte("v"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := c.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, _, found, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true after Delete, want false")
	}
}

func TestExistsTracksLifecycle(t *testing.T) {
	c := openTestCache(t, 0)

	ok, err := c.Exists("k")
	if err != nil || ok {
		t.Fatalf("Exists() = (%v, %v) before Set, want (false, nil)", ok, err)
	}

	if err := c.Set("k", []byte("v"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	ok, err = c.Exists("k")
	if err != nil || !ok {
		t.Fatalf("Exists() = (%v, %v) after Set, want (true, nil)", ok, err)
	}

	if _, err := c.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ok, err = c.Exists("k")
	if err != nil || ok {
		t.Fatalf("Exists() = (%v, %v) after Delete, want (false, nil)", ok, err)
	}
}

func TestIncrementInitializesAbsentKey(t *testing.T) {
	c := openTestCache(t, 0)

	n, err := c.Increment("counter", 5, 10)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if n != 10 {
		t.Errorf("Increment() on absent key = %d, want initial value 10", n)
	}
}

func TestIncrementAccumulates(t *testing.T) {
	c := openTestCache(t, 0)

	// The first call finds "counter" absent and stores the initial value
	// 0; the second adds 4 to it.
	if _, err := c.Increment("counter", 1, 0); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	n, err := c.Increment("counter", 4, 0)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Increment() accumulated = %d, want 4", n)
	}
}

func TestDecrementFloorsAtZero(t *testing.T) {
	c := openTestCache(t, 0)

	if _, err := c.Increment("counter", 3, 0); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	n, err := c.Decrement("counter", 10, 0)
	if err != nil {
		t.Fatalf("Decrement() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Decrement() below zero = %d, want floored to 0", n)
	}
}

func TestIncrementOnNonNumericFails(t *testing.T) {
	c := openTestCache(t, 0)

	if err := c.Set("word", []byte("not-a-number"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_, err := c.Increment("word", 1, 0)
	if !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("Increment() error = %v, want ErrNotNumeric", err)
	}

	v, _, found, getErr := c.Get("word")
	if getErr != nil || !found {
		t.Fatalf("Get() = (_, _, %v, %v), want a hit", found, getErr)
	}
	if !bytes.Equal(v, []byte("not-a-number")) {
		t.Error("Get() value changed after a failed Increment, want untouched")
	}
}

func TestSetOversizedValueReturnsErrValueTooLarge(t *testing.T) {
	c := openTestCache(t, 0)

	oversized := make([]byte, region.MaxChunkSize+1)
	err := c.Set("k", oversized, false)
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("Set() error = %v, want ErrValueTooLarge", err)
	}
}

func TestFlushEmptiesCache(t *testing.T) {
	c := openTestCache(t, 0)

	if err := c.Set("k", []byte("v"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	_, _, found, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true after Flush, want false")
	}
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	c := openTestCache(t, 0)

	if err := c.Set("k", []byte("v"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, _, _, err := c.Get("k"); err != nil {
		t.Fatalf("Get() hit error = %v", err)
	}
	if _, _, _, err := c.Get("missing"); err != nil {
		t.Fatalf("Get() miss error = %v", err)
	}

	// flushCounters only runs on Close; call it directly to observe the
	// header counters without tearing the cache down mid-test.
	if err := c.flushCounters(); err != nil {
		t.Fatalf("flushCounters() error = %v", err)
	}

	snap, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if snap.GetHitCount != 1 {
		t.Errorf("Stats().GetHitCount = %d, want 1", snap.GetHitCount)
	}
	if snap.GetMissCount != 1 {
		t.Errorf("Stats().GetMissCount = %d, want 1", snap.GetMissCount)
	}
}

func TestOperationsFailAfterDestroy(t *testing.T) {
	name := fmt.Sprintf("shmcache-test-cache-%s", t.Name())
	c, err := Open(name, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	if _, _, _, err := c.Get("k"); !errors.Is(err, ErrUseAfterDestroy) {
		t.Errorf("Get() after Destroy error = %v, want ErrUseAfterDestroy", err)
	}
	if err := c.Set("k", []byte("v"), false); !errors.Is(err, ErrUseAfterDestroy) {
		t.Errorf("Set() after Destroy error = %v, want ErrUseAfterDestroy", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	name := fmt.Sprintf("shmcache-test-cache-%s", t.Name())
	c, err := Open(name, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() first call error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() second call error = %v, want nil (idempotent)", err)
	}

	// Reattach to clean up the region, since Close only detaches.
	c2, err := Open(name, 0)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	if err := c2.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
}

// TestConcurrentAttachersShareState opens the same named region from two
// independent Cache handles in this process, standing in for two separate
// OS processes attached to the same shared-memory segment: the spec's
// entire premise is that state is visible across attachers, not just
// across calls within one handle.
func TestConcurrentAttachersShareState(t *testing.T) {
	name := fmt.Sprintf("shmcache-test-cache-%s", t.Name())

	a, err := Open(name, 0)
	if err != nil {
		t.Fatalf("Open() first attacher error = %v", err)
	}
	defer a.Close()

	b, err := Open(name, 0)
	if err != nil {
		t.Fatalf("Open() second attacher error = %v", err)
	}

	if err := a.Set("shared", []byte("written-by-a"), false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, _, found, err := b.Get("shared")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("second attacher did not see the first attacher's write")
	}
	if !bytes.Equal(v, []byte("written-by-a")) {
		t.Errorf("Get() value = %q, want %q", v, "written-by-a")
	}

	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
}

// TestConcurrentGoroutineSetGet simulates several concurrent clients
// hammering distinct keys through one Cache handle, exercising the bucket
// lock set under real contention.
func TestConcurrentGoroutineSetGet(t *testing.T) {
	c := openTestCache(t, 0)

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				val := []byte(fmt.Sprintf("v%d-%d", w, i))
				if err := c.Set(key, val, false); err != nil {
					t.Errorf("Set(%q) error = %v", key, err)
					return
				}
				got, _, found, err := c.Get(key)
				if err != nil {
					t.Errorf("Get(%q) error = %v", key, err)
					return
				}
				if !found {
					t.Errorf("Get(%q) found = false immediately after Set", key)
					return
				}
				if !bytes.Equal(got, val) {
					t.Errorf("Get(%q) = %q, want %q", key, got, val)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestOpenRejectsSizeBelowMinimum(t *testing.T) {
	name := fmt.Sprintf("shmcache-test-cache-%s", t.Name())
	_, err := Open(name, 1024)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Open() with undersized desiredSize error = %v, want ErrConfig", err)
	}
}
