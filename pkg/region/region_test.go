package region

import (
	"fmt"
	"testing"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("shmcache-test-region-%s", t.Name())
}

func TestOpenCreatesFreshRegion(t *testing.T) {
	r, err := Open(uniqueName(t), MinRegionSize)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() {
		if err := r.Destroy(); err != nil {
			t.Errorf("Destroy() error = %v", err)
		}
	}()

	cur, err := r.HeaderOldestCursor()
	if err != nil {
		t.Fatalf("HeaderOldestCursor() error = %v", err)
	}
	if cur != -1 {
		t.Errorf("HeaderOldestCursor() on fresh region = %d, want -1", cur)
	}
}

func TestOpenBelowMinimumIsClamped(t *testing.T) {
	r, err := Open(uniqueName(t), 1)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	if r.Size() != MinRegionSize {
		t.Errorf("Size() = %d, want clamp to MinRegionSize %d", r.Size(), MinRegionSize)
	}
}

func TestOpenZeroSizeUsesDefault(t *testing.T) {
	r, err := Open(uniqueName(t), 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	if r.Size() != DefaultCacheSize {
		t.Errorf("Size() = %d, want DefaultCacheSize %d", r.Size(), DefaultCacheSize)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	r, err := Open(uniqueName(t), MinRegionSize)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	payload := []byte("hello, region")
	off := r.Layout().ValueOffset
	if err := r.Write(off, payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := r.Read(off, len(payload))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Read() = %q, want %q", got, payload)
	}
}

func TestReadWriteIntRoundTrip(t *testing.T) {
	r, err := Open(uniqueName(t), MinRegionSize)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	off := r.Layout().ValueOffset
	want := int64(-123456789)
	if err := r.WriteInt(off, want); err != nil {
		t.Fatalf("WriteInt() error = %v", err)
	}
	got, err := r.ReadInt(off)
	if err != nil {
		t.Fatalf("ReadInt() error = %v", err)
	}
	if got != want {
		t.Errorf("ReadInt() = %d, want %d", got, want)
	}
}

func TestReadOutOfBoundsErrors(t *testing.T) {
	r, err := Open(uniqueName(t), MinRegionSize)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	if _, err := r.Read(r.Size()-1, 10); err == nil {
		t.Error("Read() past end of region = nil error, want error")
	}
}

func TestZeroClearsBytes(t *testing.T) {
	r, err := Open(uniqueName(t), MinRegionSize)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	off := r.Layout().ValueOffset
	if err := r.Write(off, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := r.Zero(off, 4); err != nil {
		t.Fatalf("Zero() error = %v", err)
	}
	got, err := r.Read(off, 4)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for i, b := range got {
		if b != 0 {
			t.Errorf("Read()[%d] = %d, want 0", i, b)
		}
	}
}

func TestAttachToExistingRegionSeesSameHeader(t *testing.T) {
	name := uniqueName(t)
	r1, err := Open(name, MinRegionSize)
	if err != nil {
		t.Fatalf("Open() first error = %v", err)
	}
	defer r1.Destroy()

	if err := r1.SetHeaderOldestCursor(42); err != nil {
		t.Fatalf("SetHeaderOldestCursor() error = %v", err)
	}

	r2, err := Open(name, MinRegionSize)
	if err != nil {
		t.Fatalf("Open() second error = %v", err)
	}
	defer r2.Detach()

	cur, err := r2.HeaderOldestCursor()
	if err != nil {
		t.Fatalf("HeaderOldestCursor() error = %v", err)
	}
	if cur != 42 {
		t.Errorf("second attach sees cursor = %d, want 42", cur)
	}
}

func TestAddHeaderHitsAndMisses(t *testing.T) {
	r, err := Open(uniqueName(t), MinRegionSize)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Destroy()

	if err := r.AddHeaderHits(3); err != nil {
		t.Fatalf("AddHeaderHits() error = %v", err)
	}
	if err := r.AddHeaderHits(2); err != nil {
		t.Fatalf("AddHeaderHits() error = %v", err)
	}
	if err := r.AddHeaderMisses(1); err != nil {
		t.Fatalf("AddHeaderMisses() error = %v", err)
	}

	hits, err := r.HeaderHits()
	if err != nil {
		t.Fatalf("HeaderHits() error = %v", err)
	}
	if hits != 5 {
		t.Errorf("HeaderHits() = %d, want 5", hits)
	}
	misses, err := r.HeaderMisses()
	if err != nil {
		t.Fatalf("HeaderMisses() error = %v", err)
	}
	if misses != 1 {
		t.Errorf("HeaderMisses() = %d, want 1", misses)
	}
}

func TestComputeLayoutRejectsTooSmall(t *testing.T) {
	if _, err := ComputeLayout(1024); err == nil {
		t.Error("ComputeLayout(1024) error = nil, want error")
	}
}

func TestComputeLayoutSegmentsDoNotOverlap(t *testing.T) {
	layout, err := ComputeLayout(MinRegionSize)
	if err != nil {
		t.Fatalf("ComputeLayout() error = %v", err)
	}
	if layout.IndexOffset != layout.HeaderSize {
		t.Errorf("IndexOffset = %d, want %d", layout.IndexOffset, layout.HeaderSize)
	}
	if layout.ValueOffset != layout.IndexOffset+layout.IndexSize {
		t.Errorf("ValueOffset = %d, want %d", layout.ValueOffset, layout.IndexOffset+layout.IndexSize)
	}
	if layout.ValueOffset+layout.ValueSize != layout.TotalSize {
		t.Errorf("value area end = %d, want TotalSize %d", layout.ValueOffset+layout.ValueSize, layout.TotalSize)
	}
}
