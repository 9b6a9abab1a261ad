package storage

import "testing"

func TestNewOrdinaryPageFSO(t *testing.T) {
	p := NewOrdinaryPage()
	if p.FSO() != fsoSize {
		t.Fatalf("expected fresh FSO = %d, got %d", fsoSize, p.FSO())
	}
	if p.Free() != MaxPayload {
		t.Fatalf("expected fresh Free() = %d, got %d", MaxPayload, p.Free())
	}
}

func TestAppendAdvancesFSO(t *testing.T) {
	p := NewOrdinaryPage()
	raw := []byte("hello world")

	off := p.Append(raw)
	if off != fsoSize {
		t.Fatalf("expected first append at offset %d, got %d", fsoSize, off)
	}
	if p.FSO() != fsoSize+uint16(len(raw)) {
		t.Fatalf("expected FSO advanced by %d, got %d", len(raw), p.FSO())
	}

	got := p.Data[off : off+uint16(len(raw))]
	if string(got) != string(raw) {
		t.Fatalf("expected %q at offset, got %q", raw, got)
	}
}

func TestWriteAtDoesNotTouchFSO(t *testing.T) {
	p := NewOrdinaryPage()
	off := p.Append([]byte("aaaaaaaaaa"))
	fso := p.FSO()

	p.WriteAt(off, []byte("bbbbbbbbbb"))
	if p.FSO() != fso {
		t.Fatalf("WriteAt must not change FSO: before=%d after=%d", fso, p.FSO())
	}
	if string(p.Data[off:off+10]) != "bbbbbbbbbb" {
		t.Fatal("WriteAt did not overwrite the expected bytes")
	}
}

func TestCleanShutdownMarker(t *testing.T) {
	p := &Page{}
	nonce := [markerSize]byte{1, 2, 3, 4, 5, 6, 7, 8}
	p.initMarker(nonce)

	if p.cleanShutdown() {
		t.Fatal("expected dirty shutdown before refreshCloseMarker runs")
	}
	p.refreshCloseMarker()
	if !p.cleanShutdown() {
		t.Fatal("expected clean shutdown once markers agree")
	}

	// Simulate a crash: a fresh open-marker nonce without a matching close.
	p.initMarker([markerSize]byte{9, 9, 9, 9, 9, 9, 9, 9})
	if p.cleanShutdown() {
		t.Fatal("expected mismatched markers to signal a crash")
	}
}
