package minecraft

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/woozymasta/mcstatus/internal/protocol"
)

type fakeResolver struct {
	srvErr   error
	ipErr    error
	srv      []*net.SRV
	ips      []net.IP
	srvCalls int
}

func (r *fakeResolver) LookupSRV(_ context.Context, service, proto, name string) (string, []*net.SRV, error) {
	r.srvCalls++
	return "_" + service + "._" + proto + "." + name, r.srv, r.srvErr
}

func (r *fakeResolver) LookupIP(_ context.Context, _, host string) ([]net.IP, error) {
	if r.ips == nil && r.ipErr == nil {
		return []net.IP{net.ParseIP(host)}, nil
	}
	return r.ips, r.ipErr
}

// streamConn is the server side of a test TCP exchange.
type streamConn struct {
	conn net.Conn
}

func (c streamConn) Read(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := io.ReadFull(c.conn, b)
	return b, err
}

func (c streamConn) Write(p []byte) error {
	_, err := c.conn.Write(p)
	return err
}

func (c streamConn) Flush() ([]byte, error) { return nil, protocol.ErrUnsupported }

func (c streamConn) Receive([]byte) error { return protocol.ErrUnsupported }

func (c streamConn) Remaining() (int, error) { return 0, protocol.ErrUnsupported }

// serveStream accepts one connection and runs handle on it; it returns the
// Server pointing at the listener.
func serveStream(t *testing.T, handle func(c protocol.Conn)) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		handle(streamConn{conn: conn})
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	return NewServer("127.0.0.1", uint16(port))
}

const statusDoc = `{"version":{"name":"1.8.9","protocol":47},"players":{"online":1,"max":10},"description":"test"}`

func readPacketID(c protocol.Conn) (*protocol.Buffer, int64, error) {
	packet, err := protocol.ReadBuffer(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := protocol.ReadVarInt(packet)
	return packet, id, err
}

func answerStatus(c protocol.Conn, statusID int64) error {
	if _, _, err := readPacketID(c); err != nil { // handshake
		return err
	}
	if _, _, err := readPacketID(c); err != nil { // status request
		return err
	}

	resp := protocol.NewBuffer()
	_ = protocol.WriteVarInt(resp, statusID)
	_ = protocol.WriteUTF(resp, statusDoc)
	if err := protocol.WriteBuffer(c, resp); err != nil {
		return err
	}
	if statusID != 0 {
		return nil
	}

	return answerPing(c)
}

func answerPing(c protocol.Conn) error {
	ping, _, err := readPacketID(c)
	if err != nil {
		return err
	}
	token, err := protocol.ReadLong(ping)
	if err != nil {
		return err
	}

	pong := protocol.NewBuffer()
	_ = protocol.WriteVarInt(pong, 1)
	_ = protocol.WriteLong(pong, token)
	return protocol.WriteBuffer(c, pong)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	r := &fakeResolver{srv: []*net.SRV{{Target: "mc.example.org.", Port: 25570}}}
	s, err := Lookup(ctx, "example.org", r)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if s.Host != "mc.example.org" || s.Port != 25570 {
		t.Errorf("Lookup = %s, want mc.example.org:25570", s.Address())
	}

	r = &fakeResolver{srv: []*net.SRV{{Target: "mc.example.org.", Port: 25570}}}
	s, err = Lookup(ctx, "example.org:1234", r)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if s.Host != "example.org" || s.Port != 1234 || r.srvCalls != 0 {
		t.Errorf("Lookup = %s with %d SRV calls, want example.org:1234 without SRV", s.Address(), r.srvCalls)
	}

	r = &fakeResolver{srvErr: errors.New("no such host")}
	s, err = Lookup(ctx, "example.org", r)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if s.Host != "example.org" || s.Port != DefaultPort {
		t.Errorf("Lookup = %s, want example.org:%d", s.Address(), DefaultPort)
	}

	if _, err := Lookup(ctx, "example.org:abc", r); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Lookup error = %v, want ErrInvalidAddress", err)
	}
}

func TestServerAddress(t *testing.T) {
	if got := NewServer("::1", 0).Address(); got != "[::1]:25565" {
		t.Errorf("Address = %q", got)
	}
}

func TestServerStatus(t *testing.T) {
	s := serveStream(t, func(c protocol.Conn) { _ = answerStatus(c, 0) })

	status, err := s.Status(context.Background(), Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Version.Protocol != 47 || status.Players.Online != 1 || status.Description.Text != "test" {
		t.Errorf("status = %+v", status)
	}
	if status.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", status.Latency)
	}
}

func TestServerPing(t *testing.T) {
	s := serveStream(t, func(c protocol.Conn) {
		if _, _, err := readPacketID(c); err != nil {
			return
		}
		_ = answerPing(c)
	})

	if _, err := s.Ping(context.Background(), Options{Timeout: time.Second}); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

// The listener accepts a single connection, so a successful retry proves the
// second attempt re-handshakes on the connection of the first one.
func TestServerStatusRetriesProtocolFailure(t *testing.T) {
	s := serveStream(t, func(c protocol.Conn) {
		if err := answerStatus(c, 7); err != nil {
			return
		}
		_ = answerStatus(c, 0)
	})

	status, err := s.Status(context.Background(), Options{Timeout: time.Second, Tries: 3})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Players.Max != 10 {
		t.Errorf("status = %+v", status)
	}
}

func TestServerStatusStreamFailureIsNotRecovered(t *testing.T) {
	s := serveStream(t, func(c protocol.Conn) {
		_, _, _ = readPacketID(c)
		_, _, _ = readPacketID(c)
	})

	_, err := s.Status(context.Background(), Options{Timeout: time.Second, Tries: 3})
	if err == nil {
		t.Fatal("Status succeeded against a closed stream")
	}
	if errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Status error = %v, want a transport error", err)
	}
}

func TestServerStatusAllAttemptsFail(t *testing.T) {
	s := serveStream(t, func(c protocol.Conn) {
		for i := 0; i < 3; i++ {
			if err := answerStatus(c, 9); err != nil {
				return
			}
		}
	})

	_, err := s.Status(context.Background(), Options{Timeout: time.Second, Tries: 3})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Status error = %v, want ErrInvalidResponse", err)
	}
}

func TestServerPingConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	if _, err := NewServer("127.0.0.1", uint16(port)).Ping(context.Background(), Options{Timeout: time.Second}); err == nil {
		t.Error("Ping to closed port succeeded")
	}
}

func serveQuery(t *testing.T, players []string) *Server {
	t.Helper()

	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if n < 3 {
				continue
			}
			switch buf[2] {
			case 9:
				_, _ = pc.WriteTo(challengeReply("424242"), from)
			case 0:
				_, _ = pc.WriteTo(statReply(vanillaStat, players), from)
			}
		}
	}()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	return NewServer("127.0.0.1", uint16(port))
}

func TestServerQuery(t *testing.T) {
	s := serveQuery(t, []string{"Notch"})

	resp, err := s.Query(context.Background(), Options{Timeout: time.Second, Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.MOTD != "A Minecraft Server" || len(resp.Players.Names) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestServerQueryResolveFailureUsesHost(t *testing.T) {
	s := serveQuery(t, nil)
	r := &fakeResolver{ipErr: errors.New("no such host")}

	if _, err := s.Query(context.Background(), Options{Timeout: time.Second, Resolver: r}); err != nil {
		t.Fatalf("Query: %v", err)
	}
}

func TestServerQueryTimeout(t *testing.T) {
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = pc.Close() }()

	s := NewServer("127.0.0.1", uint16(pc.LocalAddr().(*net.UDPAddr).Port))
	opts := Options{Timeout: 50 * time.Millisecond, Tries: 2, Resolver: &fakeResolver{}}

	if _, err := s.Query(context.Background(), opts); !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("Query error = %v, want ErrTimeout", err)
	}
}

func TestServerStatusCancelInterruptsRead(t *testing.T) {
	// the peer reads the handshake and never answers
	s := serveStream(t, func(c protocol.Conn) {
		_, _ = c.Read(1 << 16)
	})
	opts := Options{Timeout: 10 * time.Second, Tries: 3}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := s.Status(ctx, opts)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, protocol.ErrInterrupted) {
		t.Errorf("Status error = %v, want context.Canceled and ErrInterrupted", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Status returned after %v", elapsed)
	}
}

func TestServerQueryCancelInterruptsRead(t *testing.T) {
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = pc.Close() }()

	s := NewServer("127.0.0.1", uint16(pc.LocalAddr().(*net.UDPAddr).Port))
	opts := Options{Timeout: 10 * time.Second, Tries: 3, Resolver: &fakeResolver{}}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	if _, err := s.Query(ctx, opts); !errors.Is(err, context.Canceled) {
		t.Errorf("Query error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Query returned after %v", elapsed)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.normalize()
	if opts.Timeout != DefaultTimeout || opts.Tries != 3 || opts.ProtocolVersion != DefaultProtocolVersion || opts.Resolver == nil {
		t.Errorf("normalize = %+v", opts)
	}
}
