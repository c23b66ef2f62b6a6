// Package transport provides the connection to the sorting hardware
// controller.
//
// The hardware speaks a newline-terminated ASCII protocol over a TCP or
// Unix socket serial bridge. Outbound commands are single lines (start,
// stop, reset, status, test_pass, test_fail, SCAN{n}:{id}:{code});
// inbound lines are parsed into typed Line values and delivered to a
// registered callback.
//
// Connection handling:
//   - A reader goroutine owns the socket and parses incoming lines.
//   - Parsed lines are queued on a bounded channel; a single worker
//     invokes the callback so lines arrive in the order they were read.
//     When the queue is full the line is dropped and counted.
//   - On connection loss the client reconnects automatically with
//     exponential backoff. Reconnection stops only when Close is called.
//
// When the hardware link is disabled in configuration, Noop() provides a
// stand-in whose commands return ErrNotConnected; callers treat that as
// a logged no-op rather than a failure.
package transport
