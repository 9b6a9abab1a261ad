package mvcc

import (
	"encoding/binary"

	"github.com/relaydb/relaydb/storage"
)

// entryHeaderSize is the width of the [xmin:8][xmax:8] MVCC envelope
// prefix written ahead of every record's payload (spec §3).
const entryHeaderSize = 16

// entry is an MVCC-wrapped record loaded from a DataItem: xmin is the
// creating XID, xmax is 0 until deleted. It holds the DataItem it was
// read from so Read can release it and delete can run the
// before/after protocol against it.
type entry struct {
	item *storage.DataItem
}

func wrapInsert(xid int64, data []byte) []byte {
	buf := make([]byte, entryHeaderSize+len(data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(xid))
	binary.LittleEndian.PutUint64(buf[8:16], 0)
	copy(buf[16:], data)
	return buf
}

func (e *entry) xmin() int64 {
	return int64(binary.LittleEndian.Uint64(e.item.Data()[0:8]))
}

func (e *entry) xmax() int64 {
	e.item.RLock()
	defer e.item.RUnlock()
	return int64(binary.LittleEndian.Uint64(e.item.Data()[8:16]))
}

func (e *entry) payload() []byte {
	data := e.item.Data()
	out := make([]byte, len(data)-entryHeaderSize)
	copy(out, data[entryHeaderSize:])
	return out
}

// setXmax runs the DataItem before/after protocol to mutate xmax in
// place under the slot's write lock, with WAL (spec §4.8).
func (e *entry) setXmax(xid int64) error {
	e.item.Before()
	binary.LittleEndian.PutUint64(e.item.Data()[8:16], uint64(xid))
	return e.item.After(xid)
}

func (e *entry) release() {
	e.item.Release()
}
