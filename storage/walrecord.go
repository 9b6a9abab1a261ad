package storage

import "encoding/binary"

// WAL record types (spec §3, §6): [type:1][xid:8][...].
const (
	walInsert byte = 0
	walUpdate byte = 1
)

// encodeInsertRecord builds a type=0 record: [type][xid][pgno][offset][raw].
func encodeInsertRecord(xid int64, pgno uint32, offset uint16, raw []byte) []byte {
	buf := make([]byte, 1+8+4+2+len(raw))
	buf[0] = walInsert
	binary.LittleEndian.PutUint64(buf[1:9], uint64(xid))
	binary.LittleEndian.PutUint32(buf[9:13], pgno)
	binary.LittleEndian.PutUint16(buf[13:15], offset)
	copy(buf[15:], raw)
	return buf
}

type insertRecord struct {
	xid    int64
	pgno   uint32
	offset uint16
	raw    []byte
}

func decodeInsertRecord(rec []byte) insertRecord {
	return insertRecord{
		xid:    int64(binary.LittleEndian.Uint64(rec[1:9])),
		pgno:   binary.LittleEndian.Uint32(rec[9:13]),
		offset: binary.LittleEndian.Uint16(rec[13:15]),
		raw:    rec[15:],
	}
}

// encodeUpdateRecord builds a type=1 record: [type][xid][uid][old][new].
// old and new must have equal length — the reader infers each half's
// length from (len(rec)-17)/2 (spec §3: "old and new have equal,
// inferable length from the record size").
func encodeUpdateRecord(xid, uid int64, oldImage, newImage []byte) []byte {
	buf := make([]byte, 1+8+8+len(oldImage)+len(newImage))
	buf[0] = walUpdate
	binary.LittleEndian.PutUint64(buf[1:9], uint64(xid))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(uid))
	copy(buf[17:17+len(oldImage)], oldImage)
	copy(buf[17+len(oldImage):], newImage)
	return buf
}

type updateRecord struct {
	xid      int64
	uid      int64
	oldImage []byte
	newImage []byte
}

func decodeUpdateRecord(rec []byte) updateRecord {
	half := (len(rec) - 17) / 2
	return updateRecord{
		xid:      int64(binary.LittleEndian.Uint64(rec[1:9])),
		uid:      int64(binary.LittleEndian.Uint64(rec[9:17])),
		oldImage: rec[17 : 17+half],
		newImage: rec[17+half:],
	}
}
