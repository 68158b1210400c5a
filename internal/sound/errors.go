package sound

import "errors"

// Sentinel errors for sound operations.
var (
	// ErrNotConfigured is returned when no command is configured.
	ErrNotConfigured = errors.New("sound: no command configured")

	// ErrCommandNotFound is returned when the configured program is not on PATH.
	ErrCommandNotFound = errors.New("sound: command not found")

	// ErrCommandFailed is returned when the program exits non-zero.
	ErrCommandFailed = errors.New("sound: command failed")

	// ErrTimeout is returned when playback exceeds the configured timeout.
	ErrTimeout = errors.New("sound: timed out")

	// ErrInvalidArgument is returned for an empty file path or text.
	ErrInvalidArgument = errors.New("sound: invalid argument")
)
