//go:build windows

package storage

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock = 0x00000002
	lockfileFailImmediate = 0x00000001
)

// osLock holds the lock file's handle for the Windows LockFileEx
// implementation backing FileLock.
type osLock struct {
	file *os.File
}

// acquireOSLock opens (creating if needed) path+lockSuffix and takes an
// exclusive, non-blocking LockFileEx lock on it, failing immediately
// rather than waiting if another process already holds it.
func acquireOSLock(path string) (*osLock, error) {
	f, err := os.OpenFile(path+lockSuffix, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open lock guard: %w", err)
	}

	ol := new(syscall.Overlapped)
	r1, _, _ := procLockFileEx.Call(
		f.Fd(),
		uintptr(lockfileExclusiveLock|lockfileFailImmediate),
		0,
		1, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	if r1 == 0 {
		f.Close()
		return nil, fmt.Errorf("storage: %q is already open by another process", path)
	}

	return &osLock{file: f}, nil
}

// release drops the LockFileEx lock, closes the guard file, and
// removes it.
func (ol *osLock) release() error {
	if ol.file == nil {
		return nil
	}
	overlapped := new(syscall.Overlapped)
	procUnlockFileEx.Call(
		ol.file.Fd(),
		0,
		1, 0,
		uintptr(unsafe.Pointer(overlapped)),
	)
	name := ol.file.Name()
	err := ol.file.Close()
	os.Remove(name)
	return err
}
