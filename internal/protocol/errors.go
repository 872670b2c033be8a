package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrVarIntTooBig is returned when a varint needs more than MaxVarIntLen bytes,
	// either on the wire or when encoding a value.
	ErrVarIntTooBig = errors.New("varint is too big")

	// ErrDecode is returned when a received string is not valid in its text encoding.
	ErrDecode = errors.New("invalid text encoding")

	// ErrEncode is returned when a string cannot be represented in the wire charset.
	ErrEncode = errors.New("string cannot be encoded")

	// ErrPeerClosed is returned when the stream ends before the requested length was read.
	ErrPeerClosed = errors.New("server did not respond with any information")

	// ErrTimeout is returned when connect, send or receive exceeds the configured timeout.
	ErrTimeout = errors.New("timed out")

	// ErrUnsupported is returned by Flush, Receive and Remaining on transport connections.
	ErrUnsupported = errors.New("operation not supported")

	// ErrInsufficientData is returned when reading past the data held by a Buffer.
	ErrInsufficientData = errors.New("insufficient data in buffer")

	// ErrStringTooLong is returned when a null-terminated string exceeds MaxASCIILength.
	ErrStringTooLong = errors.New("string exceeds maximum length")

	// ErrPacketTooLarge is returned when a length prefix exceeds MaxPacketLength.
	ErrPacketTooLarge = errors.New("length prefix exceeds maximum packet length")

	// ErrInterrupted is returned by reads and writes after Interrupt.
	ErrInterrupted = errors.New("connection interrupted")

	// ErrNotConnected is returned when a TCP connection is used before Open or after Close.
	ErrNotConnected = errors.New("connection is not open")
)

// aLongTimeAgo is a deadline in the past; setting it fails pending I/O at once.
var aLongTimeAgo = time.Unix(1, 0)

// wrapNetErr annotates a network error with op and marks timeouts with ErrTimeout.
func wrapNetErr(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
