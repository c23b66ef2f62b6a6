package batch

import "errors"

// Sentinel errors for batch API operations.
var (
	// ErrDisabled indicates the batch API is disabled in configuration.
	ErrDisabled = errors.New("batch API is disabled")

	// ErrStartFailed indicates the batch could not be started upstream.
	// Session activation must be refused when this is returned.
	ErrStartFailed = errors.New("batch start failed")

	// ErrFinishFailed indicates the item report was rejected or unreachable.
	// Local session persistence must still proceed.
	ErrFinishFailed = errors.New("batch finish failed")
)
