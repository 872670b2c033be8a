package minecraft

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/woozymasta/mcstatus/internal/protocol"
)

const (
	queryTypeChallenge byte = 9
	queryTypeStat      byte = 0

	// type byte + session id
	queryHeaderLen = 1 + 4
)

var (
	queryMagic = []byte{0xFE, 0xFD}

	// "splitnum\x00" followed by two bytes of padding before the key/value section
	statPadding = len("splitnum") + 1 + 1 + 1

	// "player_\x00\x00" before the player list
	playerPadding = len("player_") + 1 + 1
)

// Querier runs the UDP query exchange. Every packet it sends and receives is
// a single datagram.
type Querier struct {
	conn      protocol.Conn
	challenge int32
}

// NewQuerier returns a Querier over conn.
func NewQuerier(conn protocol.Conn) *Querier {
	return &Querier{conn: conn}
}

// Handshake obtains the challenge token required by the stat request.
func (q *Querier) Handshake() error {
	request, err := q.createPacket(queryTypeChallenge)
	if err != nil {
		return err
	}
	if err := protocol.WriteConn(q.conn, request); err != nil {
		return err
	}

	response, err := q.readPacket()
	if err != nil {
		return err
	}

	token, err := protocol.ReadASCII(response)
	if err != nil {
		return err
	}

	challenge, err := strconv.ParseInt(strings.TrimSpace(token), 10, 32)
	if err != nil {
		return fmt.Errorf("%w: challenge token %q", ErrInvalidResponse, token)
	}
	q.challenge = int32(challenge)

	return nil
}

// ReadQuery sends a full stat request and decodes the reply.
func (q *Querier) ReadQuery() (*QueryResponse, error) {
	request, err := q.createPacket(queryTypeStat)
	if err != nil {
		return nil, err
	}
	// padding that selects the full stat
	if err := protocol.WriteUInt(request, 0); err != nil {
		return nil, err
	}
	if err := protocol.WriteConn(q.conn, request); err != nil {
		return nil, err
	}

	response, err := q.readPacket()
	if err != nil {
		return nil, err
	}
	if _, err := response.Read(statPadding); err != nil {
		return nil, err
	}

	data := make(map[string]string)
	for {
		key, err := protocol.ReadASCII(response)
		if err != nil {
			return nil, err
		}
		if key == "" {
			if _, err := response.Read(1); err != nil {
				return nil, err
			}
			break
		}

		value, err := protocol.ReadASCII(response)
		if err != nil {
			return nil, err
		}
		data[key] = value
	}

	if _, err := response.Read(playerPadding); err != nil {
		return nil, err
	}

	var players []string
	for {
		name, err := protocol.ReadASCII(response)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		players = append(players, name)
	}

	return newQueryResponse(data, players)
}

func (q *Querier) createPacket(kind byte) (*protocol.Buffer, error) {
	packet := protocol.NewBuffer()
	if err := packet.Write(queryMagic); err != nil {
		return nil, err
	}
	if err := packet.Write([]byte{kind}); err != nil {
		return nil, err
	}
	// session id
	if err := protocol.WriteUInt(packet, 0); err != nil {
		return nil, err
	}
	if err := protocol.WriteInt(packet, q.challenge); err != nil {
		return nil, err
	}

	return packet, nil
}

// readPacket receives one datagram and strips the type and session id.
func (q *Querier) readPacket() (*protocol.Buffer, error) {
	size, err := q.conn.Remaining()
	if err != nil {
		return nil, err
	}

	data, err := q.conn.Read(size)
	if err != nil {
		return nil, err
	}

	packet := protocol.NewBufferFrom(data)
	if _, err := packet.Read(queryHeaderLen); err != nil {
		return nil, err
	}

	return packet, nil
}
