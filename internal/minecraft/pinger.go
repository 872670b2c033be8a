package minecraft

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/woozymasta/mcstatus/internal/protocol"
)

const (
	packetHandshake = 0x00
	packetStatus    = 0x00
	packetPing      = 0x01
	nextStateStatus = 1
)

// Pinger runs the server list ping exchange over a stream connection.
type Pinger struct {
	conn    protocol.Conn
	host    string
	token   int64
	version int32
	port    uint16
}

// NewPinger returns a Pinger that announces host, port and protocol version
// in its handshake.
func NewPinger(conn protocol.Conn, host string, port uint16, version int32) *Pinger {
	return &Pinger{
		conn:    conn,
		host:    host,
		port:    port,
		version: version,
		token:   rand.Int64(),
	}
}

// Handshake sends the handshake packet switching the connection to the status state.
func (p *Pinger) Handshake() error {
	packet := protocol.NewBuffer()
	if err := protocol.WriteVarInt(packet, packetHandshake); err != nil {
		return err
	}
	if err := protocol.WriteVarInt(packet, int64(p.version)); err != nil {
		return err
	}
	if err := protocol.WriteUTF(packet, p.host); err != nil {
		return err
	}
	if err := protocol.WriteUShort(packet, p.port); err != nil {
		return err
	}
	if err := protocol.WriteVarInt(packet, nextStateStatus); err != nil {
		return err
	}

	return protocol.WriteBuffer(p.conn, packet)
}

// ReadStatus requests and decodes the status document.
func (p *Pinger) ReadStatus() (*StatusResponse, error) {
	request := protocol.NewBuffer()
	if err := protocol.WriteVarInt(request, packetStatus); err != nil {
		return nil, err
	}
	if err := protocol.WriteBuffer(p.conn, request); err != nil {
		return nil, err
	}

	response, err := protocol.ReadBuffer(p.conn)
	if err != nil {
		return nil, err
	}

	id, err := protocol.ReadVarInt(response)
	if err != nil {
		return nil, err
	}
	if id != packetStatus {
		return nil, fmt.Errorf("%w: status packet id %d", ErrInvalidResponse, id)
	}

	raw, err := protocol.ReadUTF(response)
	if err != nil {
		return nil, err
	}

	return ParseStatus([]byte(raw))
}

// Ping sends a ping carrying a random token and returns the time until the
// server echoed it back.
func (p *Pinger) Ping() (time.Duration, error) {
	request := protocol.NewBuffer()
	if err := protocol.WriteVarInt(request, packetPing); err != nil {
		return 0, err
	}
	if err := protocol.WriteLong(request, p.token); err != nil {
		return 0, err
	}

	start := time.Now()
	if err := protocol.WriteBuffer(p.conn, request); err != nil {
		return 0, err
	}

	response, err := protocol.ReadBuffer(p.conn)
	if err != nil {
		return 0, err
	}
	latency := time.Since(start)

	id, err := protocol.ReadVarInt(response)
	if err != nil {
		return 0, err
	}
	if id != packetPing {
		return 0, fmt.Errorf("%w: ping packet id %d", ErrInvalidResponse, id)
	}

	token, err := protocol.ReadLong(response)
	if err != nil {
		return 0, err
	}
	if token != p.token {
		return 0, fmt.Errorf("%w: mangled ping response (expected token %d, received %d)", ErrInvalidResponse, p.token, token)
	}

	return latency, nil
}
