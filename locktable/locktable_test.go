package locktable

import (
	"testing"
	"time"

	"github.com/relaydb/relaydb/internal/xerr"
)

func TestAcquireFreeUID(t *testing.T) {
	lt := New()
	gate, err := lt.Acquire(1, 100)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if gate != nil {
		t.Fatal("expected no wait on a free uid")
	}
}

func TestAcquireSameXidNoWait(t *testing.T) {
	lt := New()
	if _, err := lt.Acquire(1, 100); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	gate, err := lt.Acquire(1, 100)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if gate != nil {
		t.Fatal("expected no wait re-acquiring a uid the same xid already holds")
	}
}

func TestAcquireBlocksThenReleaseGrants(t *testing.T) {
	lt := New()
	if _, err := lt.Acquire(1, 100); err != nil {
		t.Fatalf("acquire by 1: %v", err)
	}

	gate, err := lt.Acquire(2, 100)
	if err != nil {
		t.Fatalf("acquire by 2: %v", err)
	}
	if gate == nil {
		t.Fatal("expected xid 2 to wait behind xid 1")
	}

	done := make(chan struct{})
	go func() {
		gate.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("gate opened before release")
	case <-time.After(20 * time.Millisecond):
	}

	lt.ReleaseAll(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gate never opened after release")
	}
}

func TestReleaseAllIsFairFIFO(t *testing.T) {
	lt := New()
	if _, err := lt.Acquire(1, 100); err != nil {
		t.Fatalf("acquire by 1: %v", err)
	}
	gate2, err := lt.Acquire(2, 100)
	if err != nil || gate2 == nil {
		t.Fatalf("acquire by 2: gate=%v err=%v", gate2, err)
	}
	gate3, err := lt.Acquire(3, 100)
	if err != nil || gate3 == nil {
		t.Fatalf("acquire by 3: gate=%v err=%v", gate3, err)
	}

	lt.ReleaseAll(1)

	select {
	case <-gate2.ch:
	case <-time.After(time.Second):
		t.Fatal("expected xid 2 (first in queue) to be granted")
	}
	select {
	case <-gate3.ch:
		t.Fatal("xid 3 should still be waiting behind xid 2")
	default:
	}

	lt.ReleaseAll(2)
	select {
	case <-gate3.ch:
	case <-time.After(time.Second):
		t.Fatal("expected xid 3 to be granted after xid 2 releases")
	}
}

func TestAcquireDetectsDeadlock(t *testing.T) {
	lt := New()
	if _, err := lt.Acquire(1, 100); err != nil {
		t.Fatalf("1 acquires 100: %v", err)
	}
	if _, err := lt.Acquire(2, 200); err != nil {
		t.Fatalf("2 acquires 200: %v", err)
	}
	gate, err := lt.Acquire(2, 100)
	if err != nil {
		t.Fatalf("2 waits on 100 held by 1: %v", err)
	}
	if gate == nil {
		t.Fatal("expected 2 to wait on 100")
	}

	_, err = lt.Acquire(1, 200)
	if err != xerr.ErrDeadlock {
		t.Fatalf("expected ErrDeadlock closing the cycle, got %v", err)
	}

	// 1's failed wait on 200 must not have been left registered.
	if _, waiting := lt.waitingFor[1]; waiting {
		t.Fatal("xid 1's rolled-back wait edge is still registered")
	}
	for _, w := range lt.waitQueue[200] {
		if w == 1 {
			t.Fatal("xid 1 is still queued on uid 200 after the deadlock rollback")
		}
	}
	if gate2, err := lt.Acquire(3, 200); err == nil && gate2 != nil {
		t.Log("xid 3 correctly queued behind 2's hold of 200")
	}
}

func TestReleaseAllClearsOwnRows(t *testing.T) {
	lt := New()
	if _, err := lt.Acquire(1, 100); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lt.ReleaseAll(1)

	gate, err := lt.Acquire(2, 100)
	if err != nil {
		t.Fatalf("acquire after full release: %v", err)
	}
	if gate != nil {
		t.Fatal("expected uid 100 free after xid 1 released all")
	}
}
