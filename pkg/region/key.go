package region

import "hash/fnv"

// IPCKey derives a deterministic SysV IPC key from a region name and a
// project byte, in the same spirit as the traditional ftok(3) call (which
// combines a filesystem path's inode with a project id). We have no
// filesystem path to hash against — the region is named, not pathed — so
// we hash the name string instead. proj lets pkg/region (shared memory)
// and pkg/lockset (semaphores) derive distinct keys from the same region
// name without colliding.
func IPCKey(name string, proj byte) int32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte{proj})
	sum := h.Sum32()
	// SysV keys are plain ints; clear the top bit so the value is never
	// negative when treated as a signed 32-bit key on platforms where
	// that matters.
	return int32(sum &^ (1 << 31))
}
