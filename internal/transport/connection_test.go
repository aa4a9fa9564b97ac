package transport

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
	"github.com/BennettNotFound/dotphira-mp/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendOrderPreserved(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := New(server, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx, func(tag byte, r *wire.Reader) error { return nil })

	const n = 50
	for i := 0; i < n; i++ {
		conn.Send(protocol.SPong{})
	}

	cr := newClientReader(t, client)
	for i := 0; i < n; i++ {
		tag := cr.readTag(t)
		if tag != protocol.STagPong {
			t.Fatalf("frame %d: tag = %d, want Pong", i, tag)
		}
	}
}

func TestCloseIsIdempotentAndDropsQueue(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := New(server, discardLogger())

	conn.Send(protocol.SPong{})
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// a send after close must not panic or block
	conn.Send(protocol.SPong{})
}

type clientReader struct {
	conn net.Conn
	br   *bufio.Reader
}

func newClientReader(t *testing.T, conn net.Conn) *clientReader {
	t.Helper()
	return &clientReader{conn: conn, br: bufio.NewReader(conn)}
}

func (cr *clientReader) readTag(t *testing.T) byte {
	t.Helper()
	cr.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := wire.ReadFrame(cr.br)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) == 0 {
		t.Fatal("empty payload")
	}
	return payload[0]
}
