package storage

import (
	"path/filepath"
	"testing"
)

// fakeTxnManager is a minimal RecoveryTxnManager double for tests that
// don't need a real persistent transaction manager.
type fakeTxnManager struct {
	active  map[int64]bool
	aborted map[int64]bool
}

func newFakeTxnManager() *fakeTxnManager {
	return &fakeTxnManager{active: make(map[int64]bool), aborted: make(map[int64]bool)}
}

func (f *fakeTxnManager) IsActive(xid int64) bool { return f.active[xid] }
func (f *fakeTxnManager) MarkAborted(xid int64) {
	delete(f.active, xid)
	f.aborted[xid] = true
}

func openTestDM(t *testing.T, dir string, tm RecoveryTxnManager) *DataManager {
	t.Helper()
	dm, err := OpenDataManager(filepath.Join(dir, "t.db"), filepath.Join(dir, "t.log"), MinCacheCapacity, tm)
	if err != nil {
		t.Fatalf("open data manager: %v", err)
	}
	return dm
}

func TestInsertThenReadRoundTrip(t *testing.T) {
	tm := newFakeTxnManager()
	dm := openTestDM(t, t.TempDir(), tm)

	uid, err := dm.Insert(1, []byte("hello"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	item, ok, err := dm.Read(uid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ok {
		t.Fatal("expected the freshly inserted item to be valid")
	}
	if string(item.Data()) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", item.Data())
	}
	item.Release()
	dm.Close()
}

func TestUpdateBeforeAfterProtocol(t *testing.T) {
	tm := newFakeTxnManager()
	dm := openTestDM(t, t.TempDir(), tm)

	original := []byte("version-1")
	updated := []byte("version-2") // same length: in-place update, no resize

	uid, err := dm.Insert(1, original)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	item, ok, err := dm.Read(uid)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	item.Before()
	copy(item.Data(), updated)
	if err := item.After(2); err != nil {
		t.Fatalf("after: %v", err)
	}
	item.Release()

	item2, ok, err := dm.Read(uid)
	if err != nil || !ok {
		t.Fatalf("re-read: ok=%v err=%v", ok, err)
	}
	if string(item2.Data()) != string(updated) {
		t.Fatalf("expected updated payload, got %q", item2.Data())
	}
	item2.Release()
	dm.Close()
}

func TestRecoveryRedoesCommittedAndUndoesActive(t *testing.T) {
	dir := t.TempDir()
	tm := newFakeTxnManager()

	dm := openTestDM(t, dir, tm)

	committedUID, err := dm.Insert(1, []byte("committed"))
	if err != nil {
		t.Fatalf("insert committed: %v", err)
	}

	inflightUID, err := dm.Insert(2, []byte("in-flight"))
	if err != nil {
		t.Fatalf("insert in-flight: %v", err)
	}

	// Crash: skip Close (no clean-shutdown marker refresh), simulating a
	// kill -9 between these writes and an orderly shutdown.

	tm2 := newFakeTxnManager()
	tm2.active[1] = false
	tm2.active[2] = true // still active per TM at "crash" time

	dm2 := openTestDM(t, dir, tm2)

	item, ok, err := dm2.Read(committedUID)
	if err != nil {
		t.Fatalf("read committed after recovery: %v", err)
	}
	if !ok || string(item.Data()) != "committed" {
		t.Fatalf("expected committed insert to survive recovery, ok=%v data=%q", ok, item.Data())
	}
	item.Release()

	_, ok, err = dm2.Read(inflightUID)
	if err != nil {
		t.Fatalf("read in-flight after recovery: %v", err)
	}
	if ok {
		t.Fatal("expected the in-flight insert to be undone (invalid) after recovery")
	}

	if !tm2.aborted[2] {
		t.Fatal("expected recovery to mark the crash-surviving xid aborted")
	}
	dm2.Close()
}
