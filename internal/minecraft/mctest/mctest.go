// Package mctest provides a loopback Minecraft server answering server list
// ping exchanges, for use in tests.
package mctest

import (
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/mcstatus/internal/protocol"
)

// StatusDoc is the status document served by default.
const StatusDoc = `{"version":{"name":"1.20.4","protocol":765},"players":{"online":3,"max":20},"description":{"text":"Hello"}}`

// Server is a loopback TCP listener that answers a handshake followed by any
// number of status and ping requests on every connection.
type Server struct {
	ln    net.Listener
	doc   string
	conns atomic.Int32

	// Addr is the listen address, host:port.
	Addr string

	// Host and Port split Addr.
	Host string
	Port int
}

// NewServer starts a Server serving doc (StatusDoc when empty). It is closed on test cleanup.
func NewServer(tb testing.TB, doc string) *Server {
	tb.Helper()

	if doc == "" {
		doc = StatusDoc
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	tb.Cleanup(func() { _ = ln.Close() })

	s := &Server{ln: ln, doc: doc, Addr: ln.Addr().String()}
	host, port, _ := net.SplitHostPort(s.Addr)
	s.Host = host
	s.Port, _ = strconv.Atoi(port)

	go s.serve()

	return s
}

// Connections returns the number of accepted connections.
func (s *Server) Connections() int {
	return int(s.conns.Load())
}

// ClosedAddr returns a loopback address nothing listens on.
func ClosedAddr(tb testing.TB) string {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	return addr
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.conns.Add(1)
		go s.answer(conn)
	}
}

func (s *Server) answer(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	c := peer{conn: conn}

	if _, err := protocol.ReadBuffer(c); err != nil { // handshake
		return
	}

	for {
		packet, err := protocol.ReadBuffer(c)
		if err != nil {
			return
		}
		id, err := protocol.ReadVarInt(packet)
		if err != nil {
			return
		}

		resp := protocol.NewBuffer()
		switch id {
		case 0:
			_ = protocol.WriteVarInt(resp, 0)
			_ = protocol.WriteUTF(resp, s.doc)
		case 1:
			token, err := protocol.ReadLong(packet)
			if err != nil {
				return
			}
			_ = protocol.WriteVarInt(resp, 1)
			_ = protocol.WriteLong(resp, token)
		default:
			return
		}

		if err := protocol.WriteBuffer(c, resp); err != nil {
			return
		}
	}
}

// peer is the server side of the stream exchange.
type peer struct {
	conn net.Conn
}

func (p peer) Read(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := io.ReadFull(p.conn, b)
	return b, err
}

func (p peer) Write(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

func (p peer) Flush() ([]byte, error) { return nil, protocol.ErrUnsupported }

func (p peer) Receive([]byte) error { return protocol.ErrUnsupported }

func (p peer) Remaining() (int, error) { return 0, protocol.ErrUnsupported }
