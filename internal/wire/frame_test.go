package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 255, 300, 16384, 1 << 31, 1<<32 - 1, 1 << 40, 1<<64 - 1}
	for _, n := range cases {
		buf := AppendUvarint(nil, n)
		got, consumed, err := ReadUvarint64(buf)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if got != n {
			t.Fatalf("n=%d: got %d", n, got)
		}
		if consumed != len(buf) {
			t.Fatalf("n=%d: consumed %d, want %d", n, consumed, len(buf))
		}
	}
}

func TestUvarint32RejectsWide(t *testing.T) {
	// ten bytes, all continuation, describing a value far past 2^32.
	buf := bytes.Repeat([]byte{0xff}, 10)
	buf = append(buf, 0x01)
	_, err := ReadUvarint32(bytes.NewReader(buf))
	if !errors.Is(err, ErrVarintTooWide) {
		t.Fatalf("got %v, want ErrVarintTooWide", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	payload := []byte("hello room")
	if err := WriteFrame(w, payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&buf)
	got, err := ReadFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := PutUvarint32(w, MaxFrameLen+1); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(&buf)
	_, err := ReadFrame(r)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestFrameTruncatedMidPayload(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := PutUvarint32(w, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(&buf)
	_, err := ReadFrame(r)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("got %v, want ErrUnexpectedEOF", err)
	}
}
