// Package minecraft queries Minecraft servers: server list ping and status over
// TCP, full stat query over UDP, and address/SRV resolution.
package minecraft

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcstatus/internal/protocol"
	"github.com/woozymasta/mcstatus/internal/retry"
)

const (
	// DefaultPort is used when neither the address nor an SRV record names a port.
	DefaultPort = 25565

	// DefaultTimeout bounds connect and every read of one probe.
	DefaultTimeout = 3 * time.Second

	// DefaultProtocolVersion is announced in the handshake.
	DefaultProtocolVersion = 47
)

// Resolver is the subset of *net.Resolver used for SRV and A lookups.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Options tune a single probe. Zero values select the defaults.
type Options struct {
	Resolver        Resolver
	Timeout         time.Duration
	Tries           int
	ProtocolVersion int32
}

func (o Options) normalize() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Tries <= 0 {
		o.Tries = retry.DefaultAttempts
	}
	if o.ProtocolVersion == 0 {
		o.ProtocolVersion = DefaultProtocolVersion
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}

	return o
}

// Server is a Minecraft server endpoint.
type Server struct {
	Host string
	Port uint16
}

// NewServer returns a Server for host and port; port 0 selects DefaultPort.
func NewServer(host string, port uint16) *Server {
	if port == 0 {
		port = DefaultPort
	}

	return &Server{Host: host, Port: port}
}

// Lookup parses address and, when it has no explicit port, follows the
// _minecraft._tcp SRV record of the host. Failed SRV lookups fall back to
// the host on DefaultPort.
func Lookup(ctx context.Context, address string, resolver Resolver) (*Server, error) {
	host, port, hasPort, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if hasPort {
		return NewServer(host, port), nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}

	_, records, err := resolver.LookupSRV(ctx, "minecraft", "tcp", host)
	if err != nil || len(records) == 0 {
		log.Trace().Err(err).Str("host", host).Msg("No SRV record, using default port")
		return NewServer(host, DefaultPort), nil
	}

	target := strings.TrimSuffix(records[0].Target, ".")
	log.Trace().
		Str("host", host).
		Str("target", target).
		Uint16("port", records[0].Port).
		Msg("SRV record found")

	return NewServer(target, records[0].Port), nil
}

// Address returns host:port.
func (s *Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

// Ping performs a handshake and a ping exchange and returns the round-trip latency.
func (s *Server) Ping(ctx context.Context, opts Options) (time.Duration, error) {
	opts = opts.normalize()

	return withConn(ctx,
		func() (*protocol.TCPConn, error) { return protocol.DialTCP(ctx, s.Address(), opts.Timeout) },
		func(conn *protocol.TCPConn) (time.Duration, error) {
			return retry.Do(ctx, opts.Tries, func(context.Context, int) (time.Duration, error) {
				pinger := NewPinger(conn, s.Host, s.Port, opts.ProtocolVersion)
				if err := pinger.Handshake(); err != nil {
					return 0, err
				}

				return pinger.Ping()
			})
		},
	)
}

// Status performs a handshake, reads the status document and measures latency.
func (s *Server) Status(ctx context.Context, opts Options) (*StatusResponse, error) {
	opts = opts.normalize()

	return withConn(ctx,
		func() (*protocol.TCPConn, error) { return protocol.DialTCP(ctx, s.Address(), opts.Timeout) },
		func(conn *protocol.TCPConn) (*StatusResponse, error) {
			return retry.Do(ctx, opts.Tries, func(context.Context, int) (*StatusResponse, error) {
				pinger := NewPinger(conn, s.Host, s.Port, opts.ProtocolVersion)
				if err := pinger.Handshake(); err != nil {
					return nil, err
				}

				status, err := pinger.ReadStatus()
				if err != nil {
					return nil, err
				}

				status.Latency, err = pinger.Ping()
				if err != nil {
					return nil, err
				}

				return status, nil
			})
		},
	)
}

// Query performs the UDP query handshake and a full stat request. The host is
// resolved to an IPv4 address first; on resolution failure it is used as given.
func (s *Server) Query(ctx context.Context, opts Options) (*QueryResponse, error) {
	opts = opts.normalize()

	host := s.Host
	ips, err := opts.Resolver.LookupIP(ctx, "ip4", s.Host)
	if err == nil && len(ips) > 0 {
		host = ips[0].String()
	} else {
		log.Trace().Err(err).Str("host", s.Host).Msg("No A record, querying host as given")
	}
	addr := net.JoinHostPort(host, strconv.Itoa(int(s.Port)))

	return withConn(ctx,
		func() (*protocol.UDPConn, error) { return protocol.DialUDP(addr, opts.Timeout) },
		func(conn *protocol.UDPConn) (*QueryResponse, error) {
			return retry.Do(ctx, opts.Tries, func(context.Context, int) (*QueryResponse, error) {
				querier := NewQuerier(conn)
				if err := querier.Handshake(); err != nil {
					return nil, err
				}

				return querier.ReadQuery()
			})
		},
	)
}

// withConn opens a connection, runs fn against it and closes it on every return path.
// All attempts of one probe share the connection. Cancelling ctx interrupts
// pending I/O; the error then wraps ctx.Err().
func withConn[C interface {
	protocol.Conn
	io.Closer
	Interrupt()
}, T any](ctx context.Context, open func() (C, error), fn func(C) (T, error)) (T, error) {
	conn, err := open()
	if err != nil {
		var zero T
		return zero, err
	}

	stop := context.AfterFunc(ctx, conn.Interrupt)
	defer func() {
		stop()
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close connection")
		}
	}()

	result, err := fn(conn)
	if err != nil && ctx.Err() != nil {
		return result, fmt.Errorf("%w: %w", ctx.Err(), err)
	}

	return result, err
}
