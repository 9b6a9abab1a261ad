// Package txm implements relaydb's transaction manager: a persistent,
// append-only registry of transaction status keyed by XID. It is the
// source of truth Recovery and the version manager both consult to
// decide whether a given XID's effects are committed, aborted, or were
// still in flight when the process died.
package txm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// Transaction status bytes, as stored one-per-XID in the XID file.
const (
	StatusActive    byte = 0
	StatusCommitted byte = 1
	StatusAborted   byte = 2
)

// headerSize is the width of the XID file's count header.
const headerSize = 8

// SuperXID is the reserved, always-committed transaction identifier.
// It is never assigned by Begin and never written to the file.
const SuperXID int64 = 0

// Manager is the on-disk XID status registry: an 8-byte count header
// followed by one status byte per XID, indexed from 1.
type Manager struct {
	mu    sync.Mutex
	file  *os.File
	count int64
}

// Open opens (or creates) the XID file at path. On an existing file,
// the stored count is validated against the actual file length
// (header + count bytes); a mismatch is a fatal, unrecoverable
// corruption, since every status byte from here on is addressed by
// a count-derived offset.
func Open(path string) (*Manager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("txm: open xid file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("txm: stat xid file: %w", err)
	}

	m := &Manager{file: file}
	if info.Size() == 0 {
		if err := m.writeCount(0); err != nil {
			file.Close()
			return nil, err
		}
		return m, nil
	}

	buf := make([]byte, headerSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("txm: read xid count header: %w", err)
	}
	count := int64(binary.LittleEndian.Uint64(buf))
	if headerSize+count != info.Size() {
		panic(fmt.Sprintf("txm: bad xid file: header says %d XIDs but file is %d bytes", count, info.Size()))
	}
	m.count = count
	return m, nil
}

func (m *Manager) offsetFor(xid int64) int64 {
	return headerSize + (xid - 1)
}

func (m *Manager) writeCount(count int64) error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf, uint64(count))
	if _, err := m.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("txm: write xid count header: %w", err)
	}
	return m.file.Sync()
}

func (m *Manager) writeStatus(xid int64, status byte) error {
	if _, err := m.file.WriteAt([]byte{status}, m.offsetFor(xid)); err != nil {
		return fmt.Errorf("txm: write status for xid %d: %w", xid, err)
	}
	return m.file.Sync()
}

func (m *Manager) readStatus(xid int64) byte {
	if xid == SuperXID {
		return StatusCommitted
	}
	buf := make([]byte, 1)
	if _, err := m.file.ReadAt(buf, m.offsetFor(xid)); err != nil {
		panic(fmt.Sprintf("txm: read status for xid %d: %v", xid, err))
	}
	return buf[0]
}

// Begin atomically reserves a fresh XID (count+1), writes its status
// byte as active and fsyncs, then writes the new count and fsyncs —
// in that order. The file is grown to hold the new status byte before
// the count is written, so a crash between the two leaves the file one
// byte longer than the count header claims, and Open then rejects it
// as a bad XID file.
func (m *Manager) Begin() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	xid := m.count + 1
	if err := m.growTo(xid); err != nil {
		return 0, err
	}
	if err := m.writeStatus(xid, StatusActive); err != nil {
		return 0, err
	}
	if err := m.writeCount(xid); err != nil {
		return 0, err
	}
	m.count = xid
	return xid, nil
}

// growTo extends the file so xid's status byte has a home, without
// yet publishing the new count header.
func (m *Manager) growTo(xid int64) error {
	need := m.offsetFor(xid) + 1
	info, err := m.file.Stat()
	if err != nil {
		return fmt.Errorf("txm: stat xid file: %w", err)
	}
	if info.Size() >= need {
		return nil
	}
	if err := m.file.Truncate(need); err != nil {
		return fmt.Errorf("txm: grow xid file: %w", err)
	}
	return nil
}

// Commit marks xid committed.
func (m *Manager) Commit(xid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeStatus(xid, StatusCommitted)
}

// Abort marks xid aborted.
func (m *Manager) Abort(xid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeStatus(xid, StatusAborted)
}

// MarkAborted satisfies storage.RecoveryTxnManager: Recovery has
// already determined xid was active at crash time and has undone its
// effects, so this simply records the fact, panicking on I/O failure
// since a failure here would leave recovery's verdict unpersisted.
func (m *Manager) MarkAborted(xid int64) {
	if err := m.Abort(xid); err != nil {
		panic(fmt.Sprintf("txm: marking xid %d aborted after recovery: %v", xid, err))
	}
}

// IsActive reports whether xid's status byte is active. Also satisfies
// storage.RecoveryTxnManager.
func (m *Manager) IsActive(xid int64) bool {
	if xid == SuperXID {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readStatus(xid) == StatusActive
}

// IsCommitted reports whether xid's status byte is committed.
func (m *Manager) IsCommitted(xid int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readStatus(xid) == StatusCommitted
}

// IsAborted reports whether xid's status byte is aborted.
func (m *Manager) IsAborted(xid int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readStatus(xid) == StatusAborted
}

// Close closes the underlying file.
func (m *Manager) Close() error {
	return m.file.Close()
}
