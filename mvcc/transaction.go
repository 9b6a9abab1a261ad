package mvcc

import "sync"

// Transaction is the Version Manager's in-memory view of a live
// transaction: its XID, isolation level, the snapshot of XIDs active
// at its start, a sticky error slot, and whether it has already been
// auto-aborted by the VM itself (spec §3, §9).
type Transaction struct {
	mu sync.Mutex

	xid      int64
	level    IsolationLevel
	snapshot map[int64]struct{}

	err         error
	autoAborted bool
}

func newTransaction(xid int64, level IsolationLevel, snapshot map[int64]struct{}) *Transaction {
	return &Transaction{xid: xid, level: level, snapshot: snapshot}
}

// Err returns the transaction's sticky fault, if any.
func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// fault records err as the transaction's sticky fault, unless one is
// already set (spec §9: the first fault wins and is re-raised by every
// later call).
func (t *Transaction) fault(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *Transaction) vis(status statusChecker) visCtx {
	return visCtx{xid: t.xid, level: t.level, snapshot: t.snapshot, status: status}
}
