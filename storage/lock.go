package storage

// lockSuffix is appended to a store's path prefix to name its
// OS-level open-guard file, shared by every platform's osLock
// implementation.
const lockSuffix = ".lock"

// FileLock is an OS-level exclusive open-guard: a second process (or
// a second Open call in this one) pointed at the same path fails
// immediately instead of silently corrupting the shared files. It is
// not part of the spec's correctness model — recovery alone
// guarantees consistency after a crash — but cheaply rules out the
// two-processes-one-database mistake.
type FileLock struct {
	inner *osLock
}

// LockPath acquires an exclusive open-guard lock keyed on path. The
// platform-specific mechanism lives in osLock (flock on Unix,
// LockFileEx on Windows, a no-op on js/wasm).
func LockPath(path string) (*FileLock, error) {
	inner, err := acquireOSLock(path)
	if err != nil {
		return nil, err
	}
	return &FileLock{inner: inner}, nil
}

// Unlock releases the guard.
func (l *FileLock) Unlock() error {
	return l.inner.release()
}
