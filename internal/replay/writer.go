// Package replay implements the per-user-per-chart replay file: an
// append-only binary log of raw Touches/Judges command payloads behind a
// small patchable header, plus a daily retention sweep.
//
// The append/patch/restore discipline is the same one the teacher's
// recording.go uses for its OGG page writer (recording.go's ChannelRecorder:
// a mutex-guarded *os.File, a fixed small header written once, streamed
// appends after it); the header layout and retention policy are this
// domain's own, not audio.
package replay

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// headerMagic identifies a .phirarec file: ASCII "PM" read little-endian.
const headerMagic uint16 = 0x504D

// headerSize is the fixed 14-byte header: u16 magic, u32 chartId, u32
// userId, u32 recordId.
const headerSize = 14

const recordIDOffset = 10

// Writer appends raw Touches/Judges payloads to one player's replay file
// and can patch in the server-assigned record id once play completes.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	closed bool
}

// Open creates (with parent directories) and initializes a new replay file
// at <base>/record/<userId>/<chartId>/<timestampMs>.phirarec, writing the
// 14-byte header with recordId initialized to 0.
func Open(base string, userID, chartID int32, timestampMs int64) (*Writer, error) {
	dir := filepath.Join(base, "record", fmt.Sprint(userID), fmt.Sprint(chartID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("replay: mkdir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.phirarec", timestampMs))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("replay: create: %w", err)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint16(header[0:2], headerMagic)
	binary.LittleEndian.PutUint32(header[2:6], uint32(chartID))
	binary.LittleEndian.PutUint32(header[6:10], uint32(userID))
	binary.LittleEndian.PutUint32(header[10:14], 0)
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("replay: write header: %w", err)
	}
	return &Writer{file: f, path: path}, nil
}

// Append writes one raw command payload (tag byte followed by its already
// serialized body) in arrival order. Writes after Close are no-ops.
func (w *Writer) Append(tag byte, body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if _, err := w.file.Write([]byte{tag}); err != nil {
		return fmt.Errorf("replay: append tag: %w", err)
	}
	if _, err := w.file.Write(body); err != nil {
		return fmt.Errorf("replay: append body: %w", err)
	}
	return nil
}

// UpdateRecordID seeks to the record-id field, overwrites it, and restores
// the append position, so it is safe to call between Append calls from the
// same (single) writer goroutine.
func (w *Writer) UpdateRecordID(newID int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	cur, err := w.file.Seek(0, os.SEEK_CUR)
	if err != nil {
		return fmt.Errorf("replay: tell: %w", err)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(newID))
	if _, err := w.file.WriteAt(buf[:], recordIDOffset); err != nil {
		return fmt.Errorf("replay: patch record id: %w", err)
	}
	if _, err := w.file.Seek(cur, os.SEEK_SET); err != nil {
		return fmt.Errorf("replay: restore position: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Idempotent; safe to call more than
// once (e.g. once from Played-completion and once from room teardown).
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
