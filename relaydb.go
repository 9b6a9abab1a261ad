// Package relaydb wires the storage, transaction, and MVCC layers
// into a single embeddable store: begin a transaction, read/insert/
// delete records by UID, commit or abort.
package relaydb

import (
	"fmt"

	"github.com/relaydb/relaydb/internal/xerr"
	"github.com/relaydb/relaydb/locktable"
	"github.com/relaydb/relaydb/mvcc"
	"github.com/relaydb/relaydb/storage"
	"github.com/relaydb/relaydb/txm"
)

// Options configures Open. Path is the storage prefix shared by the
// three on-disk files (<Path>.db, <Path>.log, <Path>.xid); Cache is
// the page-cache capacity, which must be at least
// storage.MinCacheCapacity; ReadOnly makes Insert and Delete fail with
// xerr.ErrReadOnly. Begin, Commit and Abort are still accepted, and
// Open still runs recovery and rewrites the shutdown marker.
type Options struct {
	Path     string
	Cache    int
	ReadOnly bool
}

// Store is an open relaydb instance: an OS-level open guard around the
// wired transaction manager, data manager, lock table, and version
// manager.
type Store struct {
	opts Options
	lock *storage.FileLock
	tm   *txm.Manager
	dm   *storage.DataManager
	vm   *mvcc.VersionManager
}

// Open opens (or creates) a store at opts.Path. An OS-level exclusive
// lock guards against a second process (or a second Open) pointed at
// the same path. The transaction manager is opened first so the data
// manager can hand it to Recovery if the previous session crashed.
func Open(opts Options) (*Store, error) {
	lock, err := storage.LockPath(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("relaydb: %w", err)
	}

	tm, err := txm.Open(opts.Path + ".xid")
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("relaydb: %w", err)
	}

	dm, err := storage.OpenDataManager(opts.Path+".db", opts.Path+".log", opts.Cache, tm)
	if err != nil {
		tm.Close()
		lock.Unlock()
		return nil, fmt.Errorf("relaydb: %w", err)
	}

	vm := mvcc.NewVersionManager(tm, dm, locktable.New())

	return &Store{opts: opts, lock: lock, tm: tm, dm: dm, vm: vm}, nil
}

// Close flushes the data manager's clean-shutdown marker, closes the
// transaction manager, and releases the open guard.
func (s *Store) Close() error {
	if err := s.dm.Close(); err != nil {
		return err
	}
	if err := s.tm.Close(); err != nil {
		return err
	}
	return s.lock.Unlock()
}

// Begin starts a transaction at the given isolation level.
func (s *Store) Begin(level mvcc.IsolationLevel) (int64, error) {
	return s.vm.Begin(level)
}

// Read returns a copy of the payload at uid as visible to xid, or
// (nil, false, nil) if no visible version exists.
func (s *Store) Read(xid int64, uid int64) ([]byte, bool, error) {
	return s.vm.Read(xid, uid)
}

// Insert stores data under a fresh UID, owned by xid.
func (s *Store) Insert(xid int64, data []byte) (int64, error) {
	if s.opts.ReadOnly {
		return 0, xerr.ErrReadOnly
	}
	return s.vm.Insert(xid, data)
}

// Delete marks the row at uid deleted by xid. Returns false if the row
// isn't visible to xid or was already deleted by xid.
func (s *Store) Delete(xid int64, uid int64) (bool, error) {
	if s.opts.ReadOnly {
		return false, xerr.ErrReadOnly
	}
	return s.vm.Delete(xid, uid)
}

// Commit commits xid.
func (s *Store) Commit(xid int64) error {
	return s.vm.Commit(xid)
}

// Abort aborts xid.
func (s *Store) Abort(xid int64) error {
	return s.vm.Abort(xid)
}
