package txm

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "test.xid"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return m
}

func TestSuperXIDAlwaysCommitted(t *testing.T) {
	m := openTest(t)
	if m.IsActive(SuperXID) {
		t.Fatal("super xid must never be active")
	}
	if !m.IsCommitted(SuperXID) {
		t.Fatal("super xid must always be committed")
	}
}

func TestBeginCommitAbort(t *testing.T) {
	m := openTest(t)

	xid, err := m.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if xid != 1 {
		t.Fatalf("expected first xid = 1, got %d", xid)
	}
	if !m.IsActive(xid) {
		t.Fatal("freshly begun xid should be active")
	}

	if err := m.Commit(xid); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !m.IsCommitted(xid) {
		t.Fatal("expected committed")
	}

	xid2, err := m.Begin()
	if err != nil {
		t.Fatalf("begin 2: %v", err)
	}
	if xid2 != 2 {
		t.Fatalf("expected second xid = 2, got %d", xid2)
	}
	if err := m.Abort(xid2); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !m.IsAborted(xid2) {
		t.Fatal("expected aborted")
	}
}

func TestReopenPersistsStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.xid")

	m, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	xid, err := m.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := m.Commit(xid); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	m2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	if !m2.IsCommitted(xid) {
		t.Fatal("expected committed status to survive reopen")
	}

	xid2, err := m2.Begin()
	if err != nil {
		t.Fatalf("begin after reopen: %v", err)
	}
	if xid2 != xid+1 {
		t.Fatalf("expected monotonic xid %d, got %d", xid+1, xid2)
	}
}

func TestMarkAbortedSatisfiesRecoveryInterface(t *testing.T) {
	m := openTest(t)
	xid, err := m.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !m.IsActive(xid) {
		t.Fatal("expected active before recovery runs")
	}
	m.MarkAborted(xid)
	if m.IsActive(xid) {
		t.Fatal("expected no longer active")
	}
	if !m.IsAborted(xid) {
		t.Fatal("expected aborted")
	}
}
