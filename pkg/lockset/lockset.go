// Package lockset implements the named reader/writer lock set that
// serializes access to the shared-memory region: one lock named "alloc",
// one named "stats", one named "oldest", and one named "bucket{i}" for
// every index bucket. Every lock is backed by a real OS primitive so the
// same discipline holds whether two callers are goroutines in one process
// or two entirely separate processes attached to the same region.
//
// golang.org/x/sys/unix exposes high-level wrappers for SysV shared memory
// (SysvShmGet/SysvShmAttach/...) but not for SysV semaphores, so this
// package talks to the kernel directly via unix.Syscall using the raw
// semget/semop/semctl syscall numbers. That is the traditional pairing for
// this exact class of cache (APCu and its ancestors use SysV semaphores
// for precisely this lock set), and a counting semaphore is what lets a
// single primitive serialize both real processes and goroutines that each
// hold their own file descriptor — fcntl byte-range locks would not, since
// they are scoped per-process rather than per-descriptor, and flock locks
// have no byte-range addressing for tens of thousands of independent
// bucket locks.
package lockset

import "fmt"

// maxReaders bounds how many concurrent readers a single named lock can
// admit. It is also the amount a writer subtracts to take the lock
// exclusively, so it must be large enough that no realistic reader count
// saturates it.
const maxReaders = 1 << 14

// Names of the fixed, non-bucket locks.
const (
	NameAlloc  = "alloc"
	NameStats  = "stats"
	NameOldest = "oldest"
)

// LockSet owns the semaphore arrays backing every named lock for one
// region. Index 0/1/2 are alloc/stats/oldest; index 3+i is bucket i.
type LockSet struct {
	resourceSemID int
	gateSemID     int
	numBuckets    int
}

// Lock is a handle to one named reader/writer lock within a LockSet.
// Its methods mirror sync.RWMutex's names (Lock/Unlock/RLock/RUnlock) but
// return an error instead of panicking, since a failure here is a normal
// OS-level condition (e.g. a concurrently destroyed semaphore array) that
// must surface to the caller as an operation failure, not crash the
// process.
type Lock struct {
	ls   *LockSet
	idx  int
	name string
}

const (
	allocIdx  = 0
	statsIdx  = 1
	oldestIdx = 2
	bucketBase = 3
)

// Open creates or attaches to the semaphore arrays for the region named
// name, sized for numBuckets bucket locks plus the three fixed locks.
// created reports whether this call won the creation race and therefore
// must initialize semaphore values; callers that create should do so
// under the same gate as pkg/region.Open's fresh-region path.
func Open(name string, numBuckets int) (ls *LockSet, created bool, err error) {
	nsems := bucketBase + numBuckets

	resourceKey := int(ipcKeyFor(name, 'L'))
	gateKey := int(ipcKeyFor(name, 'G'))

	resID, createdResource, err := semGetOrCreate(resourceKey, nsems)
	if err != nil {
		return nil, false, fmt.Errorf("lockset: resource semaphore array: %w", err)
	}
	gateID, createdGate, err := semGetOrCreate(gateKey, nsems)
	if err != nil {
		return nil, false, fmt.Errorf("lockset: gate semaphore array: %w", err)
	}

	ls = &LockSet{resourceSemID: resID, gateSemID: gateID, numBuckets: numBuckets}

	// Both arrays are created together under the same race; in practice
	// either both win or both lose since they're created back-to-back by
	// the same caller that won pkg/region's shm creation race, but guard
	// against partial creation defensively.
	created = createdResource || createdGate
	if created {
		if err := ls.initValues(nsems); err != nil {
			return nil, false, fmt.Errorf("lockset: initializing semaphore values: %w", err)
		}
	}

	return ls, created, nil
}

func (ls *LockSet) initValues(nsems int) error {
	resourceVals := make([]uint16, nsems)
	for i := range resourceVals {
		resourceVals[i] = maxReaders
	}
	if err := semSetAll(ls.resourceSemID, resourceVals); err != nil {
		return err
	}

	gateVals := make([]uint16, nsems)
	for i := range gateVals {
		gateVals[i] = 1
	}
	return semSetAll(ls.gateSemID, gateVals)
}

// Alloc returns the region-wide allocator lock: read for per-item
// operations, write for flush/destroy/resize.
func (ls *LockSet) Alloc() *Lock { return &Lock{ls: ls, idx: allocIdx, name: NameAlloc} }

// Stats returns the lock guarding the in-region hit/miss counters.
func (ls *LockSet) Stats() *Lock { return &Lock{ls: ls, idx: statsIdx, name: NameStats} }

// Oldest returns the lock guarding the FIFO eviction cursor.
func (ls *LockSet) Oldest() *Lock { return &Lock{ls: ls, idx: oldestIdx, name: NameOldest} }

// Bucket returns the lock for the index's natural bucket i. Callers must
// acquire bucket locks in ascending index order when more than one is held
// at a time, per the region's lock hierarchy.
func (ls *LockSet) Bucket(i int) *Lock {
	if i < 0 || i >= ls.numBuckets {
		panic(fmt.Sprintf("lockset: bucket index %d out of range [0,%d)", i, ls.numBuckets))
	}
	return &Lock{ls: ls, idx: bucketBase + i, name: fmt.Sprintf("bucket%d", i)}
}

// Name identifies this lock for logging.
func (l *Lock) Name() string { return l.name }

// RLock acquires the lock for shared (reader) access. It blocks for as
// long as a writer holds or is waiting to take the lock: the gate
// semaphore is held by a writer for the duration of its own wait, so new
// readers queue behind any writer already in line, giving writers
// preference over a continuous stream of readers.
//
// RLock returns an error instead of panicking if the OS refuses the
// underlying semop (e.g. the semaphore array was removed by a concurrent
// Destroy); callers must surface this as an operation failure, never
// recover from a panic, per the facade's no-panic contract.
func (l *Lock) RLock() error {
	if err := l.semOp(l.ls.gateSemID, -1); err != nil {
		return err
	}
	if err := l.semOp(l.ls.gateSemID, +1); err != nil {
		return err
	}
	return l.semOp(l.ls.resourceSemID, -1)
}

// RUnlock releases one reader's hold on the lock.
func (l *Lock) RUnlock() error {
	return l.semOp(l.ls.resourceSemID, +1)
}

// Lock acquires the lock exclusively. It holds the gate for as long as it
// takes existing readers to drain, which blocks any reader that arrives
// after this call starts waiting.
func (l *Lock) Lock() error {
	if err := l.semOp(l.ls.gateSemID, -1); err != nil {
		return err
	}
	if err := l.semOp(l.ls.resourceSemID, -maxReaders); err != nil {
		return err
	}
	return l.semOp(l.ls.gateSemID, +1)
}

// Unlock releases an exclusive hold on the lock.
func (l *Lock) Unlock() error {
	return l.semOp(l.ls.resourceSemID, +maxReaders)
}

// TryRLock attempts to acquire the lock for shared access without
// blocking, reporting whether it succeeded.
func (l *Lock) TryRLock() (bool, error) {
	ok, err := l.trySemOp(l.ls.gateSemID, -1)
	if err != nil || !ok {
		return false, err
	}
	if err := l.semOp(l.ls.gateSemID, +1); err != nil {
		return false, err
	}
	return l.trySemOp(l.ls.resourceSemID, -1)
}

// TryLock attempts to acquire the lock exclusively without blocking,
// reporting whether it succeeded. Used by pkg/chunkstore to take a second
// bucket lock out of numeric order without risking deadlock: if the
// ordered acquisition would block, the caller backs off and surfaces a
// lock error instead of waiting indefinitely.
func (l *Lock) TryLock() (bool, error) {
	ok, err := l.trySemOp(l.ls.gateSemID, -1)
	if err != nil || !ok {
		return false, err
	}
	ok, err = l.trySemOp(l.ls.resourceSemID, -maxReaders)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := l.semOp(l.ls.gateSemID, +1); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := l.semOp(l.ls.gateSemID, +1); err != nil {
		return false, err
	}
	return true, nil
}

// semOp performs a single blocking semop against this lock's semaphore
// index, wrapping any OS failure (e.g. EIDRM from a concurrently
// destroyed semaphore array) as an error rather than panicking.
func (l *Lock) semOp(semid int, delta int16) error {
	if err := semOp(semid, l.idx, delta); err != nil {
		return fmt.Errorf("lockset: semop(id=%d, idx=%d, delta=%d) on %q: %w", semid, l.idx, delta, l.name, err)
	}
	return nil
}

// trySemOp performs a single non-blocking semop, returning ok == false
// with a nil error on the "would block" case and a non-nil error only on
// a genuine OS failure.
func (l *Lock) trySemOp(semid int, delta int16) (bool, error) {
	ok, err := semTryOp(semid, l.idx, delta)
	if err != nil {
		return false, fmt.Errorf("lockset: semop nowait(id=%d, idx=%d, delta=%d) on %q: %w", semid, l.idx, delta, l.name, err)
	}
	return ok, nil
}

// Destroy removes both semaphore arrays from the OS. Only legal once no
// other attacher remains; enforced by pkg/shmcache, not by LockSet.
func (ls *LockSet) Destroy() error {
	if err := semRemove(ls.resourceSemID); err != nil {
		return fmt.Errorf("lockset: removing resource semaphore array: %w", err)
	}
	if err := semRemove(ls.gateSemID); err != nil {
		return fmt.Errorf("lockset: removing gate semaphore array: %w", err)
	}
	return nil
}
