// Package xerr collects the sentinel errors shared across relaydb's
// storage, transaction and MVCC packages. Callers compare with
// errors.Is; none of these carry payload, so a package-level var is
// enough, matching the storage.ErrReadOnly convention from the
// original pager package this module was adapted from.
package xerr

import "errors"

var (
	// ErrCacheFull is returned by the page cache when capacity is
	// exhausted and the requested page is not already resident.
	ErrCacheFull = errors.New("relaydb: page cache is full")

	// ErrDataTooLarge is returned when a record, once wrapped in a
	// DataItem header, would not fit in a single page.
	ErrDataTooLarge = errors.New("relaydb: data item exceeds page size")

	// ErrDatabaseBusy is returned when the free-space index cannot
	// find or create room for an insert after repeated retries.
	ErrDatabaseBusy = errors.New("relaydb: database busy, no free page available")

	// ErrDeadlock is returned by the lock table when granting a wait
	// would close a cycle in the wait-for graph.
	ErrDeadlock = errors.New("relaydb: deadlock detected")

	// ErrConcurrentUpdate is the transaction-facing error the version
	// manager raises for both deadlocks and version skips; receiving
	// it means the transaction has already been auto-aborted.
	ErrConcurrentUpdate = errors.New("relaydb: concurrent update, transaction aborted")

	// ErrReadOnly is returned when a write operation is attempted on
	// a store opened in read-only mode.
	ErrReadOnly = errors.New("relaydb: database is read-only")
)
