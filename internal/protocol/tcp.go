package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// TCPConn is a Conn backed by a TCP stream. It is connected once by Open and
// must be released with Close; the timeout bounds the connect and every
// subsequent read and write.
type TCPConn struct {
	conn        net.Conn
	addr        string
	timeout     time.Duration
	mu          sync.Mutex // guards conn against Interrupt
	interrupted atomic.Bool
}

// NewTCPConn returns an unconnected TCPConn for addr (host:port).
func NewTCPConn(addr string, timeout time.Duration) *TCPConn {
	return &TCPConn{addr: addr, timeout: timeout}
}

// DialTCP returns a TCPConn connected to addr.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (*TCPConn, error) {
	c := NewTCPConn(addr, timeout)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Open connects to the peer. It is a no-op when already connected.
func (c *TCPConn) Open(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return wrapNetErr("connect to "+c.addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	log.Trace().Str("address", c.addr).Msg("TCP connection established")
	return nil
}

// Interrupt makes pending and later reads and writes fail with ErrInterrupted.
// It is safe to call from another goroutine.
func (c *TCPConn) Interrupt() {
	c.interrupted.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.SetDeadline(aLongTimeAgo)
	}
}

// Close closes the underlying stream. Closing an unopened connection is a no-op.
func (c *TCPConn) Close() error {
	if c.conn == nil {
		return nil
	}

	c.mu.Lock()
	err := c.conn.Close()
	c.conn = nil
	c.mu.Unlock()
	log.Trace().Str("address", c.addr).Msg("TCP connection closed")

	return err
}

// Read blocks until exactly n bytes were received. A stream that ends first
// fails with ErrPeerClosed.
func (c *TCPConn) Read(n int) ([]byte, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("read from %s: %w", c.addr, ErrNotConnected)
	}
	if n < 0 {
		return nil, fmt.Errorf("read negative length %d from %s", n, c.addr)
	}
	c.deadline(c.conn.SetReadDeadline)

	result := make([]byte, n)
	if _, err := io.ReadFull(c.conn, result); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read %d bytes from %s: %w", n, c.addr, ErrPeerClosed)
		}
		return nil, c.wrap("read from "+c.addr, err)
	}

	return result, nil
}

// Write sends all of p.
func (c *TCPConn) Write(p []byte) error {
	if c.conn == nil {
		return fmt.Errorf("write to %s: %w", c.addr, ErrNotConnected)
	}
	c.deadline(c.conn.SetWriteDeadline)

	// net.Conn.Write returns an error on short writes
	if _, err := c.conn.Write(p); err != nil {
		return c.wrap("write to "+c.addr, err)
	}

	return nil
}

// Flush is not supported by TCPConn.
func (c *TCPConn) Flush() ([]byte, error) {
	return nil, fmt.Errorf("tcp connection flush: %w", ErrUnsupported)
}

// Receive is not supported by TCPConn.
func (c *TCPConn) Receive([]byte) error {
	return fmt.Errorf("tcp connection receive: %w", ErrUnsupported)
}

// Remaining is not supported by TCPConn.
func (c *TCPConn) Remaining() (int, error) {
	return 0, fmt.Errorf("tcp connection remaining: %w", ErrUnsupported)
}

// deadline arms the per-call timeout. The flag is checked after arming so a
// concurrent Interrupt is never overwritten.
func (c *TCPConn) deadline(set func(time.Time) error) {
	if c.timeout > 0 {
		_ = set(time.Now().Add(c.timeout))
	}
	if c.interrupted.Load() {
		_ = set(aLongTimeAgo)
	}
}

func (c *TCPConn) wrap(op string, err error) error {
	if c.interrupted.Load() {
		return fmt.Errorf("%s: %w: %w", op, ErrInterrupted, err)
	}

	return wrapNetErr(op, err)
}
