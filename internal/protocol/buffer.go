package protocol

import (
	"bytes"
	"fmt"
)

// Buffer is an in-memory Conn. Writes accumulate in an outgoing buffer that is
// drained by Flush, reads consume from an incoming queue filled by Receive.
// It is used to assemble packets before sending and to parse received ones.
type Buffer struct {
	sent     []byte
	received []byte
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferFrom returns a Buffer whose incoming queue holds a copy of data.
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{received: bytes.Clone(data)}
}

// Read consumes exactly n bytes from the incoming queue.
func (b *Buffer) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read negative length %d: %w", n, ErrInsufficientData)
	}
	if n > len(b.received) {
		return nil, fmt.Errorf("read %d bytes, %d available: %w", n, len(b.received), ErrInsufficientData)
	}

	result := bytes.Clone(b.received[:n])
	b.received = b.received[n:]

	return result, nil
}

// Write appends p to the outgoing buffer.
func (b *Buffer) Write(p []byte) error {
	b.sent = append(b.sent, p...)
	return nil
}

// Flush returns the outgoing bytes and clears the outgoing buffer.
func (b *Buffer) Flush() ([]byte, error) {
	result := b.sent
	b.sent = nil
	if result == nil {
		result = []byte{}
	}

	return result, nil
}

// Receive appends p to the incoming queue.
func (b *Buffer) Receive(p []byte) error {
	b.received = append(b.received, p...)
	return nil
}

// Remaining returns the number of unread incoming bytes.
func (b *Buffer) Remaining() (int, error) {
	return len(b.received), nil
}
