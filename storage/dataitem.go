package storage

import (
	"encoding/binary"
	"sync"
)

// DataItem header layout: [valid:1][size:2][bytes:size] (spec §3).
const (
	diValidSize  = 1
	diSizeSize   = 2
	diHeaderSize = diValidSize + diSizeSize
)

const (
	diValid   byte = 0
	diInvalid byte = 1
)

// DataItem is a versioned slot within a page. It holds a non-owning
// back-reference to its Page and to the DataManager that cached it —
// release always flows Entry → DataItem → Page, never the reverse
// (spec §3, §9), so these references are never used to extend a
// Page's lifetime, only to call back into Release/Before/After.
type DataItem struct {
	uid    int64
	pgno   uint32
	offset uint16
	page   *Page
	dm     *DataManager

	lock   sync.RWMutex
	before []byte
}

// RLock/RUnlock let a reader (the version manager's visibility checks)
// take a shared lock while reading an Entry's mutable xmax field, so a
// concurrent Before/After writer is excluded but other readers are not
// (spec §5).
func (d *DataItem) RLock()   { d.lock.RLock() }
func (d *DataItem) RUnlock() { d.lock.RUnlock() }

// uidFor packs a page number and in-page offset into a UID: page
// number in the high 32 bits, offset in the low 16 bits, middle 16
// bits unused (spec §3).
func uidFor(pgno uint32, offset uint16) int64 {
	return (int64(pgno) << 32) | int64(offset)
}

// UIDPage extracts the page number from a UID.
func UIDPage(uid int64) uint32 { return uint32(uid >> 32) }

// UIDOffset extracts the in-page offset from a UID.
func UIDOffset(uid int64) uint16 { return uint16(uid) }

func wrapDataItem(dm *DataManager, pgno uint32, page *Page, offset uint16) *DataItem {
	return &DataItem{
		uid:    uidFor(pgno, offset),
		pgno:   pgno,
		offset: offset,
		page:   page,
		dm:     dm,
	}
}

// wrapRaw builds a DataItem's on-disk representation around data: a
// fresh valid slot with the given payload.
func wrapRaw(data []byte) []byte {
	raw := make([]byte, diHeaderSize+len(data))
	raw[0] = diValid
	binary.LittleEndian.PutUint16(raw[diValidSize:diHeaderSize], uint16(len(data)))
	copy(raw[diHeaderSize:], data)
	return raw
}

func (d *DataItem) size() uint16 {
	return binary.LittleEndian.Uint16(d.page.Data[d.offset+diValidSize : d.offset+diHeaderSize])
}

func (d *DataItem) rawLen() int {
	return diHeaderSize + int(d.size())
}

// IsValid reports whether the slot's valid byte is unset (spec §3:
// "a slot is removed only by flipping the valid byte").
func (d *DataItem) IsValid() bool {
	return d.page.Data[d.offset] == diValid
}

// setInvalid flips the valid byte in place without any locking or
// logging protocol of its own — used only by Recovery's undo phase,
// which replays directly against pages outside the normal
// before/after flow (spec §4.4).
func (d *DataItem) setInvalid() {
	d.page.Data[d.offset] = diInvalid
}

// Data returns the payload bytes as a window into the owning page's
// buffer (spec §9: shared-byte-slice-with-ownership design). Callers
// must hold the DataItem's lock (via Before/After for writers, or
// rely on the DM's own read path for readers) and must never retain
// the slice past release.
func (d *DataItem) Data() []byte {
	start := d.offset + diHeaderSize
	return d.page.Data[start : start+d.size()]
}

// Before acquires the slot's write lock, marks the owning page dirty,
// and snapshots the current payload into the before-image buffer so a
// failed update can be rolled back with UnBefore (spec §4.3).
func (d *DataItem) Before() {
	d.lock.Lock()
	d.dm.cache.MarkDirty(d.pgno)
	cur := d.Data()
	d.before = append(d.before[:0], cur...)
}

// After writes an update WAL record (old image from the before-image
// buffer, new image from the current payload) and releases the write
// lock (spec §4.3). xid is the writer whose mutation this records.
func (d *DataItem) After(xid int64) error {
	rec := encodeUpdateRecord(xid, d.uid, d.before, d.Data())
	err := d.dm.logger.Append(rec)
	d.before = nil
	d.lock.Unlock()
	return err
}

// UnBefore cancels a pending mutation: restores the before-image into
// the page and releases the write lock without ever touching the WAL.
func (d *DataItem) UnBefore() {
	copy(d.Data(), d.before)
	d.before = nil
	d.lock.Unlock()
}

// Release hands the DataItem back to the DataManager, which decrements
// its refcount and — at zero — releases the underlying page back to
// the PageCache (spec §3: "Releasing an Entry decrements the DM's
// refcount on the DataItem...").
func (d *DataItem) Release() {
	d.dm.release(d.uid)
}
