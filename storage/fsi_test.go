package storage

import "testing"

func TestSelectFindsPageWithEnoughSpace(t *testing.T) {
	fsi := NewFreeSpaceIndex()
	fsi.Add(1, 100)
	fsi.Add(2, 5000)
	fsi.Add(3, 8000)

	pgno, ok := fsi.Select(4000)
	if !ok {
		t.Fatal("expected a page with enough free space")
	}
	if pgno != 2 && pgno != 3 {
		t.Fatalf("expected page 2 or 3 (>=4000 free), got %d", pgno)
	}
}

func TestSelectRemovesThePage(t *testing.T) {
	fsi := NewFreeSpaceIndex()
	fsi.Add(1, 8000)

	if _, ok := fsi.Select(4000); !ok {
		t.Fatal("expected first select to succeed")
	}
	if _, ok := fsi.Select(4000); ok {
		t.Fatal("expected the page to be unavailable until re-added")
	}

	fsi.Add(1, 8000)
	if _, ok := fsi.Select(4000); !ok {
		t.Fatal("expected the page to be selectable again after re-add")
	}
}

func TestSelectFailsWhenNoPageFits(t *testing.T) {
	fsi := NewFreeSpaceIndex()
	fsi.Add(1, 10)

	if _, ok := fsi.Select(4000); ok {
		t.Fatal("expected no page to satisfy an oversized request")
	}
}

func TestSelectScansAboveOwnBucketOnly(t *testing.T) {
	// need's own bucket must not be consulted, even when a page in it
	// has room enough to fit need (spec §4.9: idx = need/threshold + 1).
	fsi := NewFreeSpaceIndex()
	need := 100
	sameBucket := bucketFor(need)*fsiThreshold + fsiThreshold - 1 // >= need, same bucket
	fsi.Add(1, sameBucket)

	if _, ok := fsi.Select(need); ok {
		t.Fatal("expected a page in need's own bucket to never be selected")
	}
}
