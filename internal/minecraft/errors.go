package minecraft

import "errors"

var (
	// ErrInvalidAddress is returned when a server address cannot be parsed.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidResponse is returned when a server reply is well framed but does
	// not carry what the exchange expects.
	ErrInvalidResponse = errors.New("invalid server response")
)
