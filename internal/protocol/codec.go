package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	// MaxVarIntLen is the maximum encoded size of a varint (35 payload bits).
	MaxVarIntLen = 5

	// MaxPacketLength bounds the length prefix of UTF strings and sub-packets.
	MaxPacketLength = 1<<21 - 1

	// MaxASCIILength bounds a null-terminated string, terminator excluded.
	MaxASCIILength = 1 << 16
)

// AppendVarInt appends the varint encoding of value to dst.
// Negative values are encoded as their unsigned 32-bit two's-complement pattern,
// so -1 becomes ff ff ff ff 0f and decodes back as 4294967295. Values below
// math.MinInt32 or at and above 1<<35 do not fit and fail with ErrVarIntTooBig.
func AppendVarInt(dst []byte, value int64) ([]byte, error) {
	if value < math.MinInt32 {
		return dst, fmt.Errorf("%w: %d is out of range", ErrVarIntTooBig, value)
	}

	remaining := uint64(value)
	if value < 0 {
		remaining = uint64(uint32(value))
	}

	var buf [MaxVarIntLen]byte
	for i := range buf {
		if remaining&^0x7F == 0 {
			buf[i] = byte(remaining)
			return append(dst, buf[:i+1]...), nil
		}
		buf[i] = byte(remaining&0x7F | 0x80)
		remaining >>= 7
	}

	return dst, fmt.Errorf("%w: %d needs more than %d bytes", ErrVarIntTooBig, value, MaxVarIntLen)
}

// WriteVarInt writes value as a varint.
func WriteVarInt(c Conn, value int64) error {
	data, err := AppendVarInt(nil, value)
	if err != nil {
		return err
	}

	return c.Write(data)
}

// ReadVarInt reads a varint one byte at a time. The result is the unsigned
// payload, at most 35 bits wide.
func ReadVarInt(c Conn) (int64, error) {
	var result int64
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := readExact(c, 1)
		if err != nil {
			return 0, err
		}

		part := b[0]
		result |= int64(part&0x7F) << (7 * i)
		if part&0x80 == 0 {
			return result, nil
		}
	}

	return 0, fmt.Errorf("%w: server sent more than %d bytes", ErrVarIntTooBig, MaxVarIntLen)
}

// WriteUTF writes the varint byte length of value followed by its UTF-8 bytes.
func WriteUTF(c Conn, value string) error {
	if err := checkLength(int64(len(value))); err != nil {
		return err
	}

	data, err := AppendVarInt(nil, int64(len(value)))
	if err != nil {
		return err
	}

	return c.Write(append(data, value...))
}

// ReadUTF reads a varint length-prefixed UTF-8 string.
func ReadUTF(c Conn) (string, error) {
	data, err := readPrefixed(c)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrDecode)
	}

	return string(data), nil
}

// WriteASCII writes value in ISO-8859-1 followed by a zero byte.
func WriteASCII(c Conn, value string) error {
	encoded, err := charmap.ISO8859_1.NewEncoder().String(value)
	if err != nil {
		return fmt.Errorf("%w: %q is not ISO-8859-1: %w", ErrEncode, value, err)
	}

	return c.Write(append([]byte(encoded), 0))
}

// ReadASCII reads bytes up to a zero byte and decodes them as ISO-8859-1.
// Strings longer than MaxASCIILength fail with ErrStringTooLong.
func ReadASCII(c Conn) (string, error) {
	var result []byte
	for {
		b, err := readExact(c, 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		if len(result) >= MaxASCIILength {
			return "", fmt.Errorf("%w: no terminator within %d bytes", ErrStringTooLong, MaxASCIILength)
		}
		result = append(result, b[0])
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(result)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return string(decoded), nil
}

// ReadShort reads a big-endian int16.
func ReadShort(c Conn) (int16, error) {
	v, err := ReadUShort(c)
	return int16(v), err
}

// WriteShort writes a big-endian int16.
func WriteShort(c Conn, value int16) error {
	return WriteUShort(c, uint16(value))
}

// ReadUShort reads a big-endian uint16.
func ReadUShort(c Conn) (uint16, error) {
	b, err := readExact(c, 2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

// WriteUShort writes a big-endian uint16.
func WriteUShort(c Conn, value uint16) error {
	return c.Write(binary.BigEndian.AppendUint16(nil, value))
}

// ReadInt reads a big-endian int32.
func ReadInt(c Conn) (int32, error) {
	v, err := ReadUInt(c)
	return int32(v), err
}

// WriteInt writes a big-endian int32.
func WriteInt(c Conn, value int32) error {
	return WriteUInt(c, uint32(value))
}

// ReadUInt reads a big-endian uint32.
func ReadUInt(c Conn) (uint32, error) {
	b, err := readExact(c, 4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

// WriteUInt writes a big-endian uint32.
func WriteUInt(c Conn, value uint32) error {
	return c.Write(binary.BigEndian.AppendUint32(nil, value))
}

// ReadLong reads a big-endian int64.
func ReadLong(c Conn) (int64, error) {
	v, err := ReadULong(c)
	return int64(v), err
}

// WriteLong writes a big-endian int64.
func WriteLong(c Conn, value int64) error {
	return WriteULong(c, uint64(value))
}

// ReadULong reads a big-endian uint64.
func ReadULong(c Conn) (uint64, error) {
	b, err := readExact(c, 8)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(b), nil
}

// WriteULong writes a big-endian uint64.
func WriteULong(c Conn, value uint64) error {
	return c.Write(binary.BigEndian.AppendUint64(nil, value))
}

// ReadBuffer reads a varint length-prefixed sub-packet and returns it as a
// Buffer ready for structured decoding.
func ReadBuffer(c Conn) (*Buffer, error) {
	data, err := readPrefixed(c)
	if err != nil {
		return nil, err
	}

	return &Buffer{received: data}, nil
}

// WriteBuffer flushes packet and writes its bytes prefixed by their varint length.
// Prefix and payload go out in a single Write.
func WriteBuffer(c Conn, packet Conn) error {
	data, err := packet.Flush()
	if err != nil {
		return err
	}
	if err := checkLength(int64(len(data))); err != nil {
		return err
	}

	framed, err := AppendVarInt(make([]byte, 0, len(data)+MaxVarIntLen), int64(len(data)))
	if err != nil {
		return err
	}

	return c.Write(append(framed, data...))
}

func readPrefixed(c Conn) ([]byte, error) {
	length, err := ReadVarInt(c)
	if err != nil {
		return nil, err
	}
	if err := checkLength(length); err != nil {
		return nil, err
	}

	return readExact(c, int(length))
}

// checkLength rejects length prefixes above MaxPacketLength on both sides of the wire.
func checkLength(length int64) error {
	if length > MaxPacketLength {
		return fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, length, MaxPacketLength)
	}

	return nil
}

// readExact guards the fixed-width decoders against implementations that
// return fewer bytes than requested.
func readExact(c Conn, n int) ([]byte, error) {
	b, err := c.Read(n)
	if err != nil {
		return nil, err
	}
	if len(b) < n {
		return nil, fmt.Errorf("read %d bytes, got %d: %w", n, len(b), ErrInsufficientData)
	}

	return b, nil
}
