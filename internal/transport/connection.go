// Package transport implements the per-connection pipeline shared by every
// accepted game TCP socket: an unbounded FIFO send queue drained by a
// dedicated sender goroutine, a receive loop that decodes frames and hands
// them to a dispatch callback, and a last-activity timestamp used by the
// session heartbeat.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/BennettNotFound/dotphira-mp/internal/protocol"
	"github.com/BennettNotFound/dotphira-mp/internal/wire"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Dispatch is invoked by the receive loop for every successfully decoded
// frame, after version negotiation. Returning an error is treated as a
// protocol error and closes the connection.
type Dispatch func(tag byte, r *wire.Reader) error

// Connection owns one accepted TCP socket: framing, the outgoing queue, and
// liveness tracking. It has no notion of rooms or users; Session composes a
// Connection with protocol dispatch.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	log    *slog.Logger

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []protocol.ServerCommand
	closed    bool

	lastActivity atomic64

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New wraps conn in a Connection. It does not start any goroutines; call
// Run to begin the receive loop and sender loop.
func New(conn net.Conn, log *slog.Logger) *Connection {
	c := &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		log:    log,
		done:   make(chan struct{}),
	}
	c.queueCond = sync.NewCond(&c.queueMu)
	c.lastActivity.store(time.Now())
	return c
}

// ReadVersion reads the single protocol-version byte that must be the first
// byte on a new connection.
func (c *Connection) ReadVersion() (byte, error) {
	b, err := c.reader.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("transport: read version: %w", err)
	}
	return b, nil
}

// RemoteAddr returns the underlying socket's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LastActivity returns the timestamp of the most recent successfully
// received frame.
func (c *Connection) LastActivity() time.Time { return c.lastActivity.load() }

// Send enqueues a command for delivery. It never blocks on I/O; the
// sender goroutine performs the actual write. A send on a closed
// connection is silently dropped, matching close semantics.
func (c *Connection) Send(cmd protocol.ServerCommand) {
	c.queueMu.Lock()
	if c.closed {
		c.queueMu.Unlock()
		return
	}
	c.queue = append(c.queue, cmd)
	c.queueMu.Unlock()
	c.queueCond.Signal()
}

// Run starts the sender goroutine and runs the receive loop on the calling
// goroutine until the connection is closed or a protocol error occurs.
// ctx cancellation triggers a clean close.
func (c *Connection) Run(ctx context.Context, dispatch Dispatch) error {
	go c.senderLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return c.receiveLoop(dispatch)
}

func (c *Connection) senderLoop() {
	for {
		c.queueMu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.queueCond.Wait()
		}
		if c.closed && len(c.queue) == 0 {
			c.queueMu.Unlock()
			return
		}
		batch := c.queue
		c.queue = nil
		c.queueMu.Unlock()

		for _, cmd := range batch {
			payload := protocol.EncodeServerCommand(cmd)
			if err := wire.WriteFrame(c.writer, payload); err != nil {
				c.log.Debug("send failed", "err", err)
				c.Close()
				return
			}
		}
		if err := c.writer.Flush(); err != nil {
			c.log.Debug("flush failed", "err", err)
			c.Close()
			return
		}
	}
}

func (c *Connection) receiveLoop(dispatch Dispatch) error {
	for {
		payload, err := wire.ReadFrame(c.reader)
		if err != nil {
			c.Close()
			return err
		}
		c.lastActivity.store(time.Now())
		if len(payload) == 0 {
			c.Close()
			return fmt.Errorf("transport: empty frame")
		}
		r := wire.NewReader(payload[1:])
		if err := dispatch(payload[0], r); err != nil {
			c.Close()
			return err
		}
	}
}

// Close cancels the sender and receiver, drops any unsent queued commands,
// and closes the socket. It is idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.queueMu.Lock()
		c.closed = true
		c.queue = nil
		c.queueMu.Unlock()
		c.queueCond.Broadcast()
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
