//go:build linux

package lockset

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// golang.org/x/sys/unix wraps SysV shared memory but not SysV semaphores,
// so the handful of operations this package needs are issued directly via
// unix.Syscall using the raw syscall numbers and the command constants
// from linux/sem.h. These command numbers (unlike shm's IPC_* flags) are
// not re-exported by x/sys/unix, so they're declared here; they are fixed
// across Linux architectures.
const (
	semGETVAL = 12
	semSETVAL = 16
	semSETALL = 17
)

// sembuf mirrors struct sembuf from <sys/sem.h>: one step of a semop(2)
// operation.
type sembuf struct {
	semNum uint16
	semOp  int16
	semFlg int16
}

// semGetOrCreate creates a semaphore array of nsems semaphores under key,
// or attaches to an existing one. Mirrors pkg/region's shmget create-race
// resolution: try exclusive creation first, fall back to plain attach on
// EEXIST.
func semGetOrCreate(key, nsems int) (id int, created bool, err error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(unix.IPC_CREAT|unix.IPC_EXCL|0o600))
	if errno == 0 {
		return int(id), true, nil
	}
	if !errors.Is(errno, unix.EEXIST) {
		return 0, false, fmt.Errorf("semget create: %w", errno)
	}

	id, _, errno = unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(0o600))
	if errno != 0 {
		return 0, false, fmt.Errorf("semget attach: %w", errno)
	}
	return int(id), false, nil
}

// semSetAll sets every semaphore's value in one array via SETALL.
func semSetAll(semid int, values []uint16) error {
	if len(values) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(semid), 0, semSETALL, uintptr(unsafe.Pointer(&values[0])), 0, 0)
	if errno != 0 {
		return fmt.Errorf("semctl SETALL: %w", errno)
	}
	return nil
}

// semOp performs a single blocking semaphore step: delta is added to
// semaphore index within semid, blocking (without SEM_UNDO) until the
// operation can proceed. A signal delivered mid-wait interrupts the
// underlying syscall with EINTR; that is not a real failure, so semOp
// retries the operation rather than surfacing it to the caller.
func semOp(semid, index int, delta int16) error {
	ops := [1]sembuf{{semNum: uint16(index), semOp: delta, semFlg: 0}}
	for {
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(semid), uintptr(unsafe.Pointer(&ops[0])), 1)
		if errno == 0 {
			return nil
		}
		if errors.Is(errno, unix.EINTR) {
			continue
		}
		return fmt.Errorf("semop: %w", errno)
	}
}

// semTryOp performs a single non-blocking semaphore step. ok is false (with
// a nil error) if the operation would have blocked. EINTR is retried the
// same way as in semOp.
func semTryOp(semid, index int, delta int16) (ok bool, err error) {
	ops := [1]sembuf{{semNum: uint16(index), semOp: delta, semFlg: int16(unix.IPC_NOWAIT)}}
	for {
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(semid), uintptr(unsafe.Pointer(&ops[0])), 1)
		switch {
		case errno == 0:
			return true, nil
		case errors.Is(errno, unix.EINTR):
			continue
		case errors.Is(errno, unix.EAGAIN):
			return false, nil
		default:
			return false, fmt.Errorf("semop (nowait): %w", errno)
		}
	}
}

// semRemove destroys a semaphore array via IPC_RMID.
func semRemove(semid int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(semid), 0, unix.IPC_RMID, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("semctl IPC_RMID: %w", errno)
	}
	return nil
}
