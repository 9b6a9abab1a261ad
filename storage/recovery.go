package storage

// RecoveryTxnManager is the slice of the transaction manager recovery
// needs: whether a given XID was still active at crash time, and a
// way to mark a crash-surviving in-flight transaction aborted once its
// effects have been undone. storage never imports the txm package —
// any type satisfying this interface can be passed to Recover, which
// is how DataManager wires the two together without a cycle.
type RecoveryTxnManager interface {
	IsActive(xid int64) bool
	MarkAborted(xid int64)
}

// logRecord is a decoded WAL entry plus the xid it applies to,
// regardless of which record type carried it.
type logRecord struct {
	kind   byte
	xid    int64
	insert insertRecord
	update updateRecord
}

func pageOf(r logRecord) uint32 {
	if r.kind == walInsert {
		return r.insert.pgno
	}
	return UIDPage(r.update.uid)
}

func scanLog(logger *Logger) []logRecord {
	logger.Rewind()
	var recs []logRecord
	for {
		raw, ok := logger.Next()
		if !ok {
			break
		}
		switch raw[0] {
		case walInsert:
			ir := decodeInsertRecord(raw)
			recs = append(recs, logRecord{kind: walInsert, xid: ir.xid, insert: ir})
		case walUpdate:
			ur := decodeUpdateRecord(raw)
			recs = append(recs, logRecord{kind: walUpdate, xid: ur.xid, update: ur})
		}
	}
	return recs
}

// Recover replays logger against cache per spec §4.4: scan for the
// highest referenced page and truncate to it, redo every record whose
// transaction is no longer active, then undo — in reverse, per XID —
// every record whose transaction was still active at crash time,
// marking each such XID aborted once its effects are gone. The
// Logger's bad-tail truncation (done at OpenLogger time) is a
// precondition, not something Recover repeats.
func Recover(cache *PageCache, logger *Logger, tm RecoveryTxnManager) error {
	recs := scanLog(logger)

	maxPgno := uint32(1)
	for _, r := range recs {
		if pg := pageOf(r); pg > maxPgno {
			maxPgno = pg
		}
	}
	if err := cache.TruncateTo(maxPgno); err != nil {
		return err
	}

	for _, r := range recs {
		if tm.IsActive(r.xid) {
			continue
		}
		if err := redo(cache, r); err != nil {
			return err
		}
	}

	perXid := make(map[int64][]logRecord)
	var order []int64
	for _, r := range recs {
		if !tm.IsActive(r.xid) {
			continue
		}
		if _, seen := perXid[r.xid]; !seen {
			order = append(order, r.xid)
		}
		perXid[r.xid] = append(perXid[r.xid], r)
	}
	for _, xid := range order {
		list := perXid[xid]
		for i := len(list) - 1; i >= 0; i-- {
			if err := undo(cache, list[i]); err != nil {
				return err
			}
		}
		tm.MarkAborted(xid)
	}
	return nil
}

func redo(cache *PageCache, r logRecord) error {
	if r.kind == walInsert {
		return redoInsert(cache, r.insert)
	}
	return redoUpdate(cache, r.update)
}

func undo(cache *PageCache, r logRecord) error {
	if r.kind == walInsert {
		return undoInsert(cache, r.insert)
	}
	return undoUpdate(cache, r.update)
}

// redoInsert re-applies raw at offset without touching the page's own
// notion of FSO except to extend it far enough to cover this write
// (spec §4.4: "updating it to max(current_FSO, offset+len)").
func redoInsert(cache *PageCache, ir insertRecord) error {
	page, err := cache.GetPage(ir.pgno)
	if err != nil {
		return err
	}
	page.WriteAt(ir.offset, ir.raw)
	need := ir.offset + uint16(len(ir.raw))
	if need > page.FSO() {
		page.SetFSO(need)
	}
	cache.MarkDirty(ir.pgno)
	return cache.Release(ir.pgno)
}

// redoUpdate overwrites the slot with the record's new image, leaving
// FSO unchanged (spec §4.4).
func redoUpdate(cache *PageCache, ur updateRecord) error {
	pgno := UIDPage(ur.uid)
	page, err := cache.GetPage(pgno)
	if err != nil {
		return err
	}
	page.WriteAt(UIDOffset(ur.uid), ur.newImage)
	cache.MarkDirty(pgno)
	return cache.Release(pgno)
}

// undoInsert flips the slot's valid byte — a logical delete of a row
// that never committed (spec §4.4).
func undoInsert(cache *PageCache, ir insertRecord) error {
	page, err := cache.GetPage(ir.pgno)
	if err != nil {
		return err
	}
	page.Data[ir.offset] = diInvalid
	cache.MarkDirty(ir.pgno)
	return cache.Release(ir.pgno)
}

// undoUpdate writes the old image back over the slot.
func undoUpdate(cache *PageCache, ur updateRecord) error {
	pgno := UIDPage(ur.uid)
	page, err := cache.GetPage(pgno)
	if err != nil {
		return err
	}
	page.WriteAt(UIDOffset(ur.uid), ur.oldImage)
	cache.MarkDirty(pgno)
	return cache.Release(pgno)
}
