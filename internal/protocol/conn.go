// Package protocol implements the framing layer of the Minecraft server list ping
// and query protocols: wire primitives (varints, big-endian integers, strings,
// length-prefixed sub-packets) over a common Conn abstraction with buffered,
// TCP and UDP implementations.
package protocol

// Conn is a bidirectional byte channel used by the codec primitives.
//
// Read returns exactly n bytes or fails; UDPConn is the exception and returns
// one whole datagram regardless of n. Flush and Receive are supported only by
// Buffer, other implementations return ErrUnsupported. Remaining reports the
// queued bytes of a Buffer and the maximum datagram size of a UDPConn.
type Conn interface {
	Read(n int) ([]byte, error)
	Write(p []byte) error
	Flush() ([]byte, error)
	Receive(p []byte) error
	Remaining() (int, error)
}

// WriteConn flushes src and writes the flushed bytes to dst unframed.
// For a UDPConn this sends the whole content of src as one datagram.
func WriteConn(dst, src Conn) error {
	data, err := src.Flush()
	if err != nil {
		return err
	}

	return dst.Write(data)
}
