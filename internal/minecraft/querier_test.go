package minecraft

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/woozymasta/mcstatus/internal/protocol"
)

// datagramConn replays queued datagrams and records sent ones.
type datagramConn struct {
	incoming [][]byte
	sent     [][]byte
}

func (c *datagramConn) Read(int) ([]byte, error) {
	if len(c.incoming) == 0 {
		return nil, protocol.ErrTimeout
	}
	d := c.incoming[0]
	c.incoming = c.incoming[1:]
	return d, nil
}

func (c *datagramConn) Write(p []byte) error {
	c.sent = append(c.sent, bytes.Clone(p))
	return nil
}

func (c *datagramConn) Flush() ([]byte, error) { return nil, protocol.ErrUnsupported }

func (c *datagramConn) Receive([]byte) error { return protocol.ErrUnsupported }

func (c *datagramConn) Remaining() (int, error) { return protocol.MaxDatagramSize, nil }

func challengeReply(token string) []byte {
	return append([]byte{0x09, 0, 0, 0, 0}, append([]byte(token), 0)...)
}

func statReply(kv [][2]string, players []string) []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0, 0, 0, 0})
	b.WriteString("splitnum\x00\x80\x00")
	for _, pair := range kv {
		b.WriteString(pair[0] + "\x00" + pair[1] + "\x00")
	}
	b.WriteString("\x00\x01player_\x00\x00")
	for _, name := range players {
		b.WriteString(name + "\x00")
	}
	b.WriteByte(0)

	return b.Bytes()
}

var vanillaStat = [][2]string{
	{"hostname", "A Minecraft Server"},
	{"gametype", "SMP"},
	{"game_id", "MINECRAFT"},
	{"version", "1.8"},
	{"plugins", ""},
	{"map", "world"},
	{"numplayers", "2"},
	{"maxplayers", "20"},
	{"hostport", "25565"},
	{"hostip", "127.0.0.1"},
}

func TestQuerierHandshake(t *testing.T) {
	conn := &datagramConn{incoming: [][]byte{challengeReply("9513307")}}
	q := NewQuerier(conn)

	if err := q.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if q.challenge != 9513307 {
		t.Errorf("challenge = %d, want 9513307", q.challenge)
	}

	want := []byte{0xFE, 0xFD, 0x09, 0, 0, 0, 0, 0, 0, 0, 0}
	if len(conn.sent) != 1 || !bytes.Equal(conn.sent[0], want) {
		t.Errorf("sent = % x, want % x", conn.sent, want)
	}
}

func TestQuerierHandshakeBadToken(t *testing.T) {
	conn := &datagramConn{incoming: [][]byte{challengeReply("abc")}}
	if err := NewQuerier(conn).Handshake(); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Handshake error = %v, want ErrInvalidResponse", err)
	}
}

func TestQuerierReadQuery(t *testing.T) {
	conn := &datagramConn{incoming: [][]byte{
		challengeReply("-2"),
		statReply(vanillaStat, []string{"Dinnerbone", "Djinnibone"}),
	}}
	q := NewQuerier(conn)
	if err := q.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	resp, err := q.ReadQuery()
	if err != nil {
		t.Fatalf("ReadQuery: %v", err)
	}

	wantRequest := []byte{0xFE, 0xFD, 0x00, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xfe, 0, 0, 0, 0}
	if !bytes.Equal(conn.sent[1], wantRequest) {
		t.Errorf("stat request = % x, want % x", conn.sent[1], wantRequest)
	}

	if resp.MOTD != "A Minecraft Server" || resp.Map != "world" || resp.GameID != "MINECRAFT" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Players.Online != 2 || resp.Players.Max != 20 {
		t.Errorf("players = %+v", resp.Players)
	}
	if !reflect.DeepEqual(resp.Players.Names, []string{"Dinnerbone", "Djinnibone"}) {
		t.Errorf("names = %v", resp.Players.Names)
	}
	if resp.Software.Brand != "vanilla" || resp.Software.Version != "1.8" || len(resp.Software.Plugins) != 0 {
		t.Errorf("software = %+v", resp.Software)
	}
	if resp.HostPort != 25565 || resp.HostIP != "127.0.0.1" {
		t.Errorf("host = %s:%d", resp.HostIP, resp.HostPort)
	}
}

func TestQuerierReadQueryBadNumbers(t *testing.T) {
	stat := [][2]string{{"numplayers", "many"}, {"maxplayers", "20"}}
	conn := &datagramConn{incoming: [][]byte{statReply(stat, nil)}}

	if _, err := NewQuerier(conn).ReadQuery(); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("ReadQuery error = %v, want ErrInvalidResponse", err)
	}
}

func TestQuerierReadQueryTruncated(t *testing.T) {
	reply := statReply(vanillaStat, nil)
	conn := &datagramConn{incoming: [][]byte{reply[:40]}}

	if _, err := NewQuerier(conn).ReadQuery(); !errors.Is(err, protocol.ErrInsufficientData) {
		t.Errorf("ReadQuery error = %v, want ErrInsufficientData", err)
	}
}

func TestParseSoftware(t *testing.T) {
	tests := []struct {
		plugins string
		want    QuerySoftware
	}{
		{"", QuerySoftware{Version: "1.8", Brand: "vanilla", Plugins: []string{}}},
		{"CraftBukkit on Bukkit 1.8-R0.1", QuerySoftware{Version: "1.8", Brand: "CraftBukkit on Bukkit 1.8-R0.1", Plugins: []string{}}},
		{"CraftBukkit on Bukkit 1.8: WorldEdit 5.3; Essentials 2.9", QuerySoftware{
			Version: "1.8",
			Brand:   "CraftBukkit on Bukkit 1.8",
			Plugins: []string{"WorldEdit 5.3", "Essentials 2.9"},
		}},
	}

	for _, tt := range tests {
		if got := parseSoftware("1.8", tt.plugins); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseSoftware(%q) = %+v, want %+v", tt.plugins, got, tt.want)
		}
	}
}
