package transport

import "errors"

// Domain errors for the hardware transport package.
var (
	// ErrNotConnected is returned when a command is sent while the
	// client has no live connection to the hardware controller.
	ErrNotConnected = errors.New("transport: not connected to hardware")

	// ErrConnectionFailed is returned when the initial connection to the
	// hardware controller cannot be established.
	ErrConnectionFailed = errors.New("transport: connection to hardware failed")

	// ErrCommandFailed is returned when writing a command line fails.
	ErrCommandFailed = errors.New("transport: command send failed")

	// ErrLineTooLong is returned when an inbound line exceeds the read
	// buffer. The stream framing cannot be trusted after this, so the
	// connection is closed and re-established.
	ErrLineTooLong = errors.New("transport: inbound line too long")
)
