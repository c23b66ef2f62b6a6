package controller

import "errors"

// Domain errors for the session controller.
var (
	// ErrUnknownCode is reported when a scan string matches no channel's
	// code shape. The scan is discarded with no state change.
	ErrUnknownCode = errors.New("controller: unrecognised code shape")

	// ErrDuplicateScan is reported when the debouncer suppresses a
	// repeated read inside the cooldown window.
	ErrDuplicateScan = errors.New("controller: duplicate scan suppressed")

	// ErrChannelFilled is reported when a scan targets a channel that
	// already holds a value for the current item.
	ErrChannelFilled = errors.New("controller: channel already filled for current item")

	// ErrNotRunning is returned when an operation requires an active
	// session and none is open.
	ErrNotRunning = errors.New("controller: system not running")

	// ErrAlreadyRunning is returned when session start is requested while
	// a session is already active.
	ErrAlreadyRunning = errors.New("controller: system already running")

	// ErrItemInFlight is returned when a settings update arrives while an
	// item is open. Settings never change mid-item.
	ErrItemInFlight = errors.New("controller: item in flight, settings locked")
)
