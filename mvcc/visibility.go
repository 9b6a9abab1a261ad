package mvcc

// IsolationLevel selects which Visibility predicate a transaction uses.
type IsolationLevel int

const (
	ReadCommitted  IsolationLevel = 0
	RepeatableRead IsolationLevel = 1
)

// visCtx is the slice of transaction state Visibility needs: its own
// xid, isolation level, snapshot, and a way to ask the transaction
// manager about another XID's commit status.
type visCtx struct {
	xid      int64
	level    IsolationLevel
	snapshot map[int64]struct{}
	status   statusChecker
}

// statusChecker is the TM surface Visibility consults.
type statusChecker interface {
	IsCommitted(xid int64) bool
}

func (v visCtx) inSnapshot(xid int64) bool {
	_, ok := v.snapshot[xid]
	return ok
}

// visible decides whether an Entry with (xmin, xmax) is visible to v,
// applying the read-committed or repeatable-read predicate per spec
// §4.6.
func (v visCtx) visible(xmin, xmax int64) bool {
	if xmin == v.xid && xmax == 0 {
		return true
	}
	switch v.level {
	case ReadCommitted:
		if !v.status.IsCommitted(xmin) {
			return false
		}
		return xmax == 0 || (xmax != v.xid && !v.status.IsCommitted(xmax))
	default: // RepeatableRead
		if !v.status.IsCommitted(xmin) || xmin >= v.xid || v.inSnapshot(xmin) {
			return false
		}
		if xmax == 0 {
			return true
		}
		if xmax == v.xid {
			return false
		}
		return !v.status.IsCommitted(xmax) || xmax > v.xid || v.inSnapshot(xmax)
	}
}

// versionSkip reports whether a pending write by v on an Entry with
// the given xmax must be refused because some transaction invisible
// to v has already deleted this version (spec §4.6). Always false
// under read-committed.
func (v visCtx) versionSkip(xmax int64) bool {
	if v.level != RepeatableRead {
		return false
	}
	if xmax == 0 {
		return false
	}
	if !v.status.IsCommitted(xmax) {
		return false
	}
	return xmax > v.xid || v.inSnapshot(xmax)
}
