package relay

import "errors"

// Sentinel errors for relay operations.
var (
	// ErrUnknownCommand is returned for an unrecognised command topic.
	ErrUnknownCommand = errors.New("relay: unknown command")

	// ErrInvalidPayload is returned when a command payload cannot be decoded.
	ErrInvalidPayload = errors.New("relay: invalid command payload")

	// ErrNoController is returned when a command arrives without a controller.
	ErrNoController = errors.New("relay: no controller")
)
