package z21

import "errors"

// Domain errors for the z21 package.
var (
	// ErrNotConnected is returned when an operation requires an open
	// transport but the client is disconnected.
	ErrNotConnected = errors.New("z21: not connected")

	// ErrConnectionFailed is returned when the UDP socket cannot be opened.
	ErrConnectionFailed = errors.New("z21: connection failed")

	// ErrSendFailed is returned when a datagram could not be written.
	ErrSendFailed = errors.New("z21: send failed")

	// ErrInvalidArgument is returned by the encoder when a parameter is out
	// of range. Values are never truncated silently.
	ErrInvalidArgument = errors.New("z21: invalid argument")

	// ErrClosed is returned by Connect after the client has been closed.
	ErrClosed = errors.New("z21: transport closed")
)
