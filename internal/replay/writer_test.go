package replay

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterHeaderAndAppend(t *testing.T) {
	base := t.TempDir()
	w, err := Open(base, 42, 100, 1700000000000)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Append(3, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := w.UpdateRecordID(7); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(4, []byte{9}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	// double close is a no-op
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(base, "record", "42", "100", "1700000000000.phirarec")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != headerSize+1+3+1+1 {
		t.Fatalf("unexpected file length %d", len(data))
	}
	if magic := binary.LittleEndian.Uint16(data[0:2]); magic != headerMagic {
		t.Fatalf("bad magic %x", magic)
	}
	if chartID := binary.LittleEndian.Uint32(data[2:6]); chartID != 100 {
		t.Fatalf("chartID = %d", chartID)
	}
	if userID := binary.LittleEndian.Uint32(data[6:10]); userID != 42 {
		t.Fatalf("userID = %d", userID)
	}
	if recordID := binary.LittleEndian.Uint32(data[10:14]); recordID != 7 {
		t.Fatalf("recordID = %d, want 7", recordID)
	}
	// appended payload follows the header untouched by the patch.
	if data[14] != 3 || data[15] != 1 || data[16] != 2 || data[17] != 3 {
		t.Fatalf("first append corrupted: %v", data[14:18])
	}
	if data[18] != 4 || data[19] != 9 {
		t.Fatalf("second append corrupted: %v", data[18:20])
	}

	// writes after close are no-ops.
	if err := w.Append(1, []byte{0}); err != nil {
		t.Fatal(err)
	}
	data2, _ := os.ReadFile(path)
	if len(data2) != len(data) {
		t.Fatalf("append after close modified file")
	}
}

func TestRetentionSweepDeletesOldFiles(t *testing.T) {
	base := t.TempDir()
	now := time.Now()

	oldW, err := Open(base, 1, 10, now.Add(-5*24*time.Hour).UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	oldW.Close()
	freshW, err := Open(base, 1, 10, now.Add(-1*time.Hour).UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	freshW.Close()

	if err := Sweep(base, now); err != nil {
		t.Fatal(err)
	}

	files, err := List(base, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 surviving file, got %d", len(files))
	}
}
