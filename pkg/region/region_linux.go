//go:build linux

package region

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// shmBackend maps a SysV shared-memory segment into this process's address
// space and exposes it as a byte slice.
type shmBackend struct {
	id   int
	data []byte
}

// openShm creates or attaches to a SysV shared-memory segment of size
// bytes under the IPC key derived from name, resolving the create-race
// described in SPEC_FULL.md by first trying IPC_CREAT|IPC_EXCL and falling
// back to a plain attach on EEXIST. created reports whether this call won
// the race and must perform first-time layout.
func openShm(name string, size int64) (backend *shmBackend, created bool, err error) {
	key := int(IPCKey(name, 'R'))

	id, err := unix.SysvShmGet(key, int(size), unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	switch {
	case err == nil:
		created = true
	case errors.Is(err, unix.EEXIST):
		id, err = unix.SysvShmGet(key, 0, 0o600)
		if err != nil {
			return nil, false, fmt.Errorf("region: shmget attach %q: %w", name, err)
		}
	default:
		return nil, false, fmt.Errorf("region: shmget create %q: %w", name, err)
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, false, fmt.Errorf("region: shmat %q (id %d): %w", name, id, err)
	}

	return &shmBackend{id: id, data: data}, created, nil
}

func (s *shmBackend) Bytes() []byte { return s.data }
func (s *shmBackend) Size() int64   { return int64(len(s.data)) }

func (s *shmBackend) Detach() error {
	if s.data == nil {
		return nil
	}
	err := unix.SysvShmDetach(s.data)
	s.data = nil
	return err
}

func (s *shmBackend) Destroy() error {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, &desc); err != nil {
		return fmt.Errorf("region: shmctl IPC_RMID (id %d): %w", s.id, err)
	}
	return s.Detach()
}

// Open creates or attaches to the named region. A newly created region
// (this call won the create-race) is size bytes, at least MinRegionSize,
// and has its header written before Open returns; its first free chunk
// is laid out later by chunkstore.Store.InitValueArea. An existing region
// is attached at the size it was created with, whatever size is passed.
func Open(name string, size int64) (*Region, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if size < MinRegionSize {
		size = MinRegionSize
	}

	layout, err := ComputeLayout(size)
	if err != nil {
		return nil, err
	}

	be, created, err := openShm(name, size)
	if err != nil {
		return nil, err
	}
	if !created {
		// An existing segment keeps the size it was created with; lay it
		// out by its mapped size, not the requested one.
		if layout, err = ComputeLayout(be.Size()); err != nil {
			_ = be.Detach()
			return nil, err
		}
	}

	r := &Region{backend: be, layout: layout, name: name}

	if created {
		if err := r.initFresh(); err != nil {
			_ = r.Destroy()
			return nil, fmt.Errorf("region: initializing fresh region %q: %w", name, err)
		}
	} else if err := r.verifyHeader(); err != nil {
		_ = r.Detach()
		return nil, fmt.Errorf("region: attaching to %q: %w", name, err)
	}

	return r, nil
}

// initFresh zeroes the region and writes the header. It does not lay out
// the first free chunk; pkg/chunkstore.Store.InitValueArea does that,
// called by every attacher under the alloc write lock, so that callers who
// only ever attach (never create) never observe a half-initialized value
// area.
func (r *Region) initFresh() error {
	b := r.backend.Bytes()
	clear(b)

	copy(b[offMagic:offMagic+4], magic)
	binary.LittleEndian.PutUint16(b[offVersion:offVersion+2], formatVersion)

	if err := r.WriteInt(offTotalSize, r.layout.TotalSize); err != nil {
		return err
	}
	if err := r.WriteInt(offOldestCur, -1); err != nil { // -1: value area not yet laid out
		return err
	}
	if err := r.WriteInt(offHitCount, 0); err != nil {
		return err
	}
	return r.WriteInt(offMissCount, 0)
}

func (r *Region) verifyHeader() error {
	b := r.backend.Bytes()
	if string(b[offMagic:offMagic+4]) != magic {
		return fmt.Errorf("bad magic %q (region created by an incompatible version or reused key)", b[offMagic:offMagic+4])
	}
	return nil
}

// HeaderOldestCursor returns the absolute byte offset within the region
// of the oldest chunk, or -1 if the value area has not been laid out yet.
func (r *Region) HeaderOldestCursor() (int64, error) {
	return r.ReadInt(offOldestCur)
}

// SetHeaderOldestCursor updates the oldest-chunk cursor.
func (r *Region) SetHeaderOldestCursor(v int64) error {
	return r.WriteInt(offOldestCur, v)
}

// HeaderHits returns the cumulative hit counter.
func (r *Region) HeaderHits() (int64, error) { return r.ReadInt(offHitCount) }

// HeaderMisses returns the cumulative miss counter.
func (r *Region) HeaderMisses() (int64, error) { return r.ReadInt(offMissCount) }

// AddHeaderHits atomically-under-caller's-stats-lock bumps the hit counter.
func (r *Region) AddHeaderHits(delta int64) error {
	cur, err := r.ReadInt(offHitCount)
	if err != nil {
		return err
	}
	return r.WriteInt(offHitCount, cur+delta)
}

// AddHeaderMisses atomically-under-caller's-stats-lock bumps the miss counter.
func (r *Region) AddHeaderMisses(delta int64) error {
	cur, err := r.ReadInt(offMissCount)
	if err != nil {
		return err
	}
	return r.WriteInt(offMissCount, cur+delta)
}
