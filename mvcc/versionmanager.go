// Package mvcc implements relaydb's multi-version concurrency control:
// the Entry envelope, the read-committed and repeatable-read
// Visibility predicates, and the Version Manager that ties the
// transaction manager, data manager, and lock table together into
// begin/read/insert/delete/commit/abort.
package mvcc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relaydb/relaydb/internal/xerr"
	"github.com/relaydb/relaydb/locktable"
	"github.com/relaydb/relaydb/storage"
	"github.com/relaydb/relaydb/txm"
)

// VersionManager holds the transaction manager, data manager, lock
// table, and the live-transaction registry, and implements the MVCC
// record operations every client XID goes through (spec §4.8).
type VersionManager struct {
	tm *txm.Manager
	dm *storage.DataManager
	lt *locktable.LockTable

	mu     sync.Mutex
	active map[int64]*Transaction
}

// NewVersionManager wires a VersionManager around an already-open
// transaction manager, data manager, and lock table.
func NewVersionManager(tm *txm.Manager, dm *storage.DataManager, lt *locktable.LockTable) *VersionManager {
	return &VersionManager{
		tm:     tm,
		dm:     dm,
		lt:     lt,
		active: make(map[int64]*Transaction),
	}
}

// Begin allocates a fresh XID via the transaction manager, snapshots
// the currently active XIDs for a repeatable-read transaction (the
// snapshot stays empty for read-committed; the super XID is never in
// it, since it is never registered here), and registers the new transaction (spec §4.8).
func (vm *VersionManager) Begin(level IsolationLevel) (int64, error) {
	xid, err := vm.tm.Begin()
	if err != nil {
		return 0, err
	}

	vm.mu.Lock()
	snapshot := make(map[int64]struct{}, len(vm.active))
	if level == RepeatableRead {
		for other := range vm.active {
			snapshot[other] = struct{}{}
		}
	}
	vm.active[xid] = newTransaction(xid, level, snapshot)
	vm.mu.Unlock()

	return xid, nil
}

func (vm *VersionManager) txnFor(xid int64) (*Transaction, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	t, ok := vm.active[xid]
	if !ok {
		return nil, fmt.Errorf("mvcc: xid %d is not active", xid)
	}
	return t, nil
}

func (vm *VersionManager) loadEntry(uid int64) (*entry, bool, error) {
	item, ok, err := vm.dm.Read(uid)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &entry{item: item}, true, nil
}

// Read loads the Entry at uid and returns a copy of its payload if
// visible to xid's transaction, else reports not-found (spec §4.8).
func (vm *VersionManager) Read(xid int64, uid int64) ([]byte, bool, error) {
	t, err := vm.txnFor(xid)
	if err != nil {
		return nil, false, err
	}
	if err := t.Err(); err != nil {
		return nil, false, err
	}

	e, ok, err := vm.loadEntry(uid)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	defer e.release()

	vis := t.vis(vm.tm)
	if !vis.visible(e.xmin(), e.xmax()) {
		return nil, false, nil
	}
	return e.payload(), true, nil
}

// Insert wraps data with a fresh [xmin=xid, xmax=0] envelope and
// delegates to the data manager's insert (spec §4.8).
func (vm *VersionManager) Insert(xid int64, data []byte) (int64, error) {
	t, err := vm.txnFor(xid)
	if err != nil {
		return 0, err
	}
	if err := t.Err(); err != nil {
		return 0, err
	}
	return vm.dm.Insert(xid, wrapInsert(xid, data))
}

// Delete marks the Entry at uid deleted by xid, after acquiring the
// row lock and checking visibility and version-skip, per spec §4.8.
// Returns false (no error) if the Entry isn't visible to xid or is
// already deleted by xid itself (a harmless re-delete).
func (vm *VersionManager) Delete(xid int64, uid int64) (bool, error) {
	t, err := vm.txnFor(xid)
	if err != nil {
		return false, err
	}
	if err := t.Err(); err != nil {
		return false, err
	}

	e, ok, err := vm.loadEntry(uid)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer e.release()

	vis := t.vis(vm.tm)
	if !vis.visible(e.xmin(), e.xmax()) {
		return false, nil
	}

	gate, err := vm.lt.Acquire(xid, uid)
	if errors.Is(err, xerr.ErrDeadlock) {
		vm.autoAbort(t, xerr.ErrConcurrentUpdate)
		return false, xerr.ErrConcurrentUpdate
	}
	if err != nil {
		return false, err
	}
	if gate != nil {
		gate.Wait()
	}

	if e.xmax() == xid {
		return false, nil
	}
	if vis.versionSkip(e.xmax()) {
		vm.autoAbort(t, xerr.ErrConcurrentUpdate)
		return false, xerr.ErrConcurrentUpdate
	}

	if err := e.setXmax(xid); err != nil {
		return false, err
	}
	return true, nil
}

// autoAbort performs the VM-internal abort path triggered by deadlock
// or version-skip: it sets the transaction's sticky fault, marks it
// auto-aborted, releases its locks, and marks it aborted in the
// transaction manager (spec §4.8, §7). Unlike a client-initiated abort,
// it leaves the transaction in the active set so a later client call to
// Abort still finds it and can return cleanly instead of "xid not
// active" — the client doesn't know the auto-abort already happened.
func (vm *VersionManager) autoAbort(t *Transaction, fault error) {
	t.fault(fault)
	t.mu.Lock()
	already := t.autoAborted
	t.autoAborted = true
	t.mu.Unlock()
	if already {
		return
	}
	vm.lt.ReleaseAll(t.xid)
	vm.tm.Abort(t.xid)
}

// Commit clears xid from the active set, releases its locks, and
// marks it committed in the transaction manager (spec §4.8).
func (vm *VersionManager) Commit(xid int64) error {
	t, err := vm.txnFor(xid)
	if err != nil {
		return err
	}
	if err := t.Err(); err != nil {
		return err
	}

	vm.mu.Lock()
	delete(vm.active, xid)
	vm.mu.Unlock()

	vm.lt.ReleaseAll(xid)
	return vm.tm.Commit(xid)
}

// Abort removes xid from the active set, releases its locks, and marks
// it aborted. If xid was already auto-aborted (deadlock or version
// skip), the transaction manager and lock table were already updated;
// this call only forgets the in-memory transaction (spec §4.8).
func (vm *VersionManager) Abort(xid int64) error {
	t, err := vm.txnFor(xid)
	if err != nil {
		return err
	}
	t.mu.Lock()
	already := t.autoAborted
	t.mu.Unlock()

	vm.mu.Lock()
	delete(vm.active, xid)
	vm.mu.Unlock()

	if already {
		return nil
	}
	vm.lt.ReleaseAll(xid)
	return vm.tm.Abort(xid)
}
