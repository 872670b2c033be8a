package protocol

import (
	"bytes"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxDatagramSize is the largest UDP payload read at once.
const MaxDatagramSize = 65535

// UDPConn is a Conn that exchanges whole datagrams with one fixed peer from an
// unbound local socket.
type UDPConn struct {
	conn        *net.UDPConn
	peer        *net.UDPAddr
	timeout     time.Duration
	interrupted atomic.Bool
}

// DialUDP resolves addr (host:port) and opens a socket for talking to it.
// The timeout bounds every Read.
func DialUDP(addr string, timeout time.Duration) (*UDPConn, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}

	log.Trace().Str("address", peer.String()).Msg("UDP socket opened")
	return &UDPConn{conn: conn, peer: peer, timeout: timeout}, nil
}

// Interrupt makes pending and later reads and writes fail with ErrInterrupted.
// It is safe to call from another goroutine.
func (c *UDPConn) Interrupt() {
	c.interrupted.Store(true)
	_ = c.conn.SetDeadline(aLongTimeAgo)
}

// Close closes the socket.
func (c *UDPConn) Close() error {
	return c.conn.Close()
}

// Read returns the payload of the next non-empty datagram; n is ignored.
// Empty datagrams are skipped until the timeout elapses.
func (c *UDPConn) Read(int) ([]byte, error) {
	if c.timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	if c.interrupted.Load() {
		_ = c.conn.SetReadDeadline(aLongTimeAgo)
	}

	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			return nil, c.wrap("receive from "+c.peer.String(), err)
		}
		if n > 0 {
			return bytes.Clone(buf[:n]), nil
		}
		log.Trace().Str("address", c.peer.String()).Msg("Skipping empty datagram")
	}
}

// Write sends p as one datagram to the peer.
func (c *UDPConn) Write(p []byte) error {
	if c.interrupted.Load() {
		return fmt.Errorf("send to %s: %w", c.peer, ErrInterrupted)
	}
	if _, err := c.conn.WriteTo(p, c.peer); err != nil {
		return c.wrap("send to "+c.peer.String(), err)
	}

	return nil
}

// Flush is not supported by UDPConn.
func (c *UDPConn) Flush() ([]byte, error) {
	return nil, fmt.Errorf("udp connection flush: %w", ErrUnsupported)
}

// Receive is not supported by UDPConn.
func (c *UDPConn) Receive([]byte) error {
	return fmt.Errorf("udp connection receive: %w", ErrUnsupported)
}

// Remaining reports MaxDatagramSize; datagram sockets do not expose their backlog.
func (c *UDPConn) Remaining() (int, error) {
	return MaxDatagramSize, nil
}

func (c *UDPConn) wrap(op string, err error) error {
	if c.interrupted.Load() {
		return fmt.Errorf("%s: %w: %w", op, ErrInterrupted, err)
	}

	return wrapNetErr(op, err)
}

// LocalAddr returns the local address of the socket.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
