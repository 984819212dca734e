package lockset

import "hash/fnv"

// ipcKeyFor derives a deterministic SysV IPC key for name, salted by proj
// so the resource and gate semaphore arrays (and pkg/region's shared
// memory segment) never collide even though they're all keyed off the
// same region name.
func ipcKeyFor(name string, proj byte) int32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte{proj})
	return int32(h.Sum32() &^ (1 << 31))
}
