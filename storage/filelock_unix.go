//go:build !windows && !js && !wasip1

package storage

import (
	"fmt"
	"os"
	"syscall"
)

// osLock holds the lock file's descriptor for the Unix flock
// implementation backing FileLock.
type osLock struct {
	file *os.File
}

// acquireOSLock opens (creating if needed) path+lockSuffix and takes a
// non-blocking exclusive flock on it, failing immediately rather than
// waiting if another process already holds it.
func acquireOSLock(path string) (*osLock, error) {
	f, err := os.OpenFile(path+lockSuffix, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open lock guard: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: %q is already open by another process", path)
	}

	return &osLock{file: f}, nil
}

// release drops the flock, closes the guard file, and removes it.
func (ol *osLock) release() error {
	if ol.file == nil {
		return nil
	}
	syscall.Flock(int(ol.file.Fd()), syscall.LOCK_UN)
	name := ol.file.Name()
	err := ol.file.Close()
	os.Remove(name)
	return err
}
