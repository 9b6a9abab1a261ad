// Package storage implements relaydb's paged file layer: fixed-size
// pages, a reference-counted page cache, the append-only write-ahead
// log, the free-space index, and the DataItem slot protocol that sits
// on top of them. Higher layers (transaction manager, MVCC version
// manager) are built from these primitives but live in sibling
// packages.
package storage

import "encoding/binary"

// PageSize is the fixed size of every page on disk, in bytes.
const PageSize = 8192

// fsoSize is the width of the free-space-offset header ordinary pages
// carry at byte 0.
const fsoSize = 2

// MaxPayload is the largest number of payload bytes an ordinary page
// can hold after its free-space-offset header.
const MaxPayload = PageSize - fsoSize

// PageNumberMeta is the reserved page holding the clean-shutdown
// marker. It is never handed out by the free-space index.
const PageNumberMeta int64 = 1

// Marker region offsets within page 1, per spec §3: a random nonce is
// written at markerOpenOffset on every open; on clean close it is
// copied to markerCloseOffset. A mismatch on reopen means the process
// crashed before closing cleanly.
const (
	markerOpenOffset  = 100
	markerCloseOffset = 108
	markerSize        = 8
)

// Page is one fixed-size buffer read from or destined for the data
// file. It carries no page-number/dirty/refcount bookkeeping itself —
// that belongs to the PageCache, which is the only thing that owns a
// Page's lifetime.
type Page struct {
	Data [PageSize]byte
}

// NewOrdinaryPage returns a page with its free-space offset initialized
// to just past the header, ready to receive DataItem slots.
func NewOrdinaryPage() *Page {
	p := &Page{}
	binary.LittleEndian.PutUint16(p.Data[0:fsoSize], fsoSize)
	return p
}

// FSO returns the free-space offset: the first byte not yet used by a
// DataItem slot.
func (p *Page) FSO() uint16 {
	return binary.LittleEndian.Uint16(p.Data[0:fsoSize])
}

// SetFSO updates the free-space offset.
func (p *Page) SetFSO(off uint16) {
	binary.LittleEndian.PutUint16(p.Data[0:fsoSize], off)
}

// Free returns the number of unused bytes remaining in the page.
func (p *Page) Free() int {
	return PageSize - int(p.FSO())
}

// Append copies raw into the page at the current FSO and advances it.
// The caller is responsible for ensuring raw fits (Free() >= len(raw)).
func (p *Page) Append(raw []byte) uint16 {
	off := p.FSO()
	copy(p.Data[off:], raw)
	p.SetFSO(off + uint16(len(raw)))
	return off
}

// WriteAt overwrites len(raw) bytes at off without touching FSO — used
// for in-place DataItem updates and WAL redo/undo replay.
func (p *Page) WriteAt(off uint16, raw []byte) {
	copy(p.Data[off:], raw)
}

// initMarker writes a fresh random nonce into the open-marker region.
// Called once when page 1 is first created and again on every
// successful open (the close-marker region is only updated by
// refreshCloseMarker, at clean shutdown).
func (p *Page) initMarker(nonce [markerSize]byte) {
	copy(p.Data[markerOpenOffset:markerOpenOffset+markerSize], nonce[:])
}

// cleanShutdown reports whether the open-marker and close-marker
// regions agree — true only if the previous session closed cleanly.
func (p *Page) cleanShutdown() bool {
	open := p.Data[markerOpenOffset : markerOpenOffset+markerSize]
	closed := p.Data[markerCloseOffset : markerCloseOffset+markerSize]
	for i := range open {
		if open[i] != closed[i] {
			return false
		}
	}
	return true
}

// refreshCloseMarker copies the open-marker region into the
// close-marker region; called on clean Close.
func (p *Page) refreshCloseMarker() {
	copy(p.Data[markerCloseOffset:markerCloseOffset+markerSize], p.Data[markerOpenOffset:markerOpenOffset+markerSize])
}
