package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerAppendRewindNext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := OpenLogger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	records := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, r := range records {
		if err := l.Append(r); err != nil {
			t.Fatalf("append %q: %v", r, err)
		}
	}

	l.Rewind()
	for i, want := range records {
		got, ok := l.Next()
		if !ok {
			t.Fatalf("record %d: expected ok=true", i)
		}
		if string(got) != string(want) {
			t.Fatalf("record %d: expected %q, got %q", i, want, got)
		}
	}
	if _, ok := l.Next(); ok {
		t.Fatal("expected EOF after the last record")
	}
	l.Close()
}

func TestLoggerReopenVerifiesChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := OpenLogger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Append([]byte("persisted")); err != nil {
		t.Fatalf("append: %v", err)
	}
	l.Close()

	reopened, err := OpenLogger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Rewind()
	got, ok := reopened.Next()
	if !ok || string(got) != "persisted" {
		t.Fatalf("expected the prior record to survive reopen, got ok=%v data=%q", ok, got)
	}
	reopened.Close()
}

func TestLoggerDiscardsBadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := OpenLogger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Append([]byte("good")); err != nil {
		t.Fatalf("append: %v", err)
	}
	l.Close()

	// Truncate the last 4 bytes, simulating a crash mid-append (S5).
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-4); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	reopened, err := OpenLogger(path)
	if err != nil {
		t.Fatalf("reopen after bad tail: %v", err)
	}
	reopened.Rewind()
	if _, ok := reopened.Next(); ok {
		t.Fatal("expected the truncated record to be discarded entirely, leaving no readable records")
	}

	if err := reopened.Append([]byte("fresh")); err != nil {
		t.Fatalf("append after bad-tail recovery: %v", err)
	}
	reopened.Rewind()
	got, ok := reopened.Next()
	if !ok || string(got) != "fresh" {
		t.Fatalf("expected to append and read back after bad-tail truncation, got ok=%v data=%q", ok, got)
	}
	reopened.Close()
}

func TestHashBytesMatchesSeedDefinition(t *testing.T) {
	var want int32
	payload := []byte("checksum me")
	for _, b := range payload {
		want = want*logChecksumSeed + int32(int8(b))
	}
	if got := hashBytes(payload); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}
