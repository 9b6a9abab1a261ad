package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// logChecksumSeed is the multiplier in relaydb's rolling checksum.
// Chosen by the original format and preserved bit-for-bit: both the
// per-record and whole-file checksums use 32-bit signed arithmetic
// and must reproduce the same overflow wrap to stay file-compatible
// (spec §4.2).
const logChecksumSeed int32 = 13331

// logPrefixSize is the width of the file-level rolling checksum at the
// start of the log file.
const logPrefixSize = 4

// Logger is relaydb's append-only write-ahead log. Every record is
// framed as [len:4][chk:4][payload], and the file itself is prefixed
// by a 4-byte rolling checksum accumulated over every record's
// checksum (spec §4.2, §6).
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	xCheck int32 // running file-prefix checksum
	cursor int64 // Next()/Rewind() iteration position
}

// OpenLogger opens the log file at path, creating it with a zero
// prefix if it is missing or empty. An existing log has its file
// prefix verified against the accumulated per-record checksums, and
// any trailing partial ("bad tail") record is discarded. A verified prefix mismatch
// is a fatal, unrecoverable corruption.
func OpenLogger(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("storage: stat log: %w", err)
	}

	l := &Logger{file: file}
	if info.Size() == 0 {
		if err := l.writePrefix(0); err != nil {
			file.Close()
			return nil, err
		}
		return l, nil
	}

	if err := l.checkAndRemoveTail(); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// checkAndRemoveTail replays every well-formed record, accumulating
// the file checksum per spec §9's canonical (accumulation) reading of
// the original ambiguous routine. The loop can stop two different
// ways, and they must be told apart: landing exactly on EOF with every
// byte accounted for (a clean file) versus stopping early because the
// next record was short or checksum-mismatched (a bad tail — spec §8
// scenario S5, e.g. a crash mid-append). Only the clean case compares
// the accumulated checksum against the stored prefix and panics on
// disagreement, since every prior reopen would have observed the same
// accumulation there. A bad tail is expected and recoverable: the
// trailing partial record is discarded and the prefix is rewritten to
// match the checksum of what's left, not compared against the stale
// value written before the crash.
func (l *Logger) checkAndRemoveTail() error {
	prefix, err := l.readPrefix()
	if err != nil {
		return err
	}
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat log: %w", err)
	}
	size := info.Size()

	pos := int64(logPrefixSize)
	acc := int32(0)
	badTail := false
	for pos < size {
		rec, recLen, err := l.readRecordAt(pos)
		if err != nil {
			badTail = true
			break
		}
		acc = acc*logChecksumSeed + hashBytes(rec)
		pos += recLen
	}

	if !badTail {
		if acc != prefix {
			panic(fmt.Sprintf("storage: log file checksum mismatch: stored=%d computed=%d", prefix, acc))
		}
		l.xCheck = acc
		return nil
	}

	if err := l.file.Truncate(pos); err != nil {
		return fmt.Errorf("storage: truncate bad tail: %w", err)
	}
	l.xCheck = acc
	return l.writePrefix(acc)
}

// readRecordAt reads one [len][chk][payload] frame starting at pos.
// Returns the payload, the total bytes consumed (header+payload), and
// an error if the frame is incomplete or its checksum doesn't match —
// both are treated identically as "no more good records here".
func (l *Logger) readRecordAt(pos int64) ([]byte, int64, error) {
	header := make([]byte, 8)
	n, err := l.file.ReadAt(header, pos)
	if n < 8 || err != nil {
		return nil, 0, fmt.Errorf("storage: short record header")
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	chk := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	n, err = l.file.ReadAt(payload, pos+8)
	if uint32(n) < length || err != nil {
		return nil, 0, fmt.Errorf("storage: short record payload")
	}
	if uint32(hashBytes(payload)) != chk {
		return nil, 0, fmt.Errorf("storage: record checksum mismatch")
	}
	return payload, 8 + int64(length), nil
}

// hashBytes computes the per-record rolling hash: h=0; for each byte
// (as a signed int8) h = h*SEED + b, with 32-bit signed overflow wrap.
// The file checksum accumulates these per-record values with the same
// seed, inline in Append and checkAndRemoveTail. Exposed as a package function (rather than a method)
// since it's pure and used by both the writer and the verifier.
func hashBytes(b []byte) int32 {
	var h int32
	for _, c := range b {
		h = h*logChecksumSeed + int32(int8(c))
	}
	return h
}

func (l *Logger) readPrefix() (int32, error) {
	buf := make([]byte, logPrefixSize)
	if _, err := l.file.ReadAt(buf, 0); err != nil {
		return 0, fmt.Errorf("storage: read log prefix: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func (l *Logger) writePrefix(v int32) error {
	buf := make([]byte, logPrefixSize)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	if _, err := l.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("storage: write log prefix: %w", err)
	}
	return l.file.Sync()
}

// Append writes [len][chk][bytes] at end-of-file, updates the rolling
// file-prefix checksum, and forces the write to disk before returning
// (spec §4.2, §5 — every append is synchronous).
func (l *Logger) Append(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat log: %w", err)
	}

	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	chk := hashBytes(payload)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(chk))
	copy(frame[8:], payload)

	if _, err := l.file.WriteAt(frame, info.Size()); err != nil {
		return fmt.Errorf("storage: append log record: %w", err)
	}

	l.xCheck = l.xCheck*logChecksumSeed + chk
	if err := l.writePrefix(l.xCheck); err != nil {
		return err
	}
	return l.file.Sync()
}

// Rewind resets the iteration cursor to the first record.
func (l *Logger) Rewind() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursor = logPrefixSize
}

// Next returns the next record's payload, advancing the cursor. It
// returns (nil, false) at EOF or on a per-record checksum failure —
// both are treated as "no more records" rather than an error, since
// checkAndRemoveTail has already validated everything up to EOF.
func (l *Logger) Next() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, recLen, err := l.readRecordAt(l.cursor)
	if err != nil {
		return nil, false
	}
	l.cursor += recLen
	return rec, true
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}
