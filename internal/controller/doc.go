// Package controller implements the scan aggregation and validation
// state machine at the heart of the sorting kiosk.
//
// The SessionController owns all mutable state: the keystroke buffer,
// the open item, per-channel debounce state, validation settings and the
// session log. Input reaches it only as tagged events (key characters,
// enter presses, hardware lines, timer callbacks) drained from a bounded
// queue by a single dispatcher loop, so state is never mutated from two
// goroutines at once. Producers (API handlers, the hardware transport's
// reader) only enqueue.
//
// Item lifecycle: Idle → Open → Completed → Idle. A scan is classified
// into a channel, checked against the debounce window, then written into
// the current item; channel values are write-once per item. The item
// completes when every enabled channel holds a value. When channels 2
// and 3 are filled but channel 1 never reported, the no-scan sentinel is
// substituted for channel 1 immediately; a timer performs the identical
// substitution after the fallback window as a safety net. A single flag
// guarantees at most one substitution per item.
//
// On completion the item is validated against the reference dataset and
// exactly one result is emitted: a command to the sorter hardware, an
// MQTT result event, a WebSocket broadcast, a session log append and an
// audit record. The controller then resets to Idle for the next item.
package controller
