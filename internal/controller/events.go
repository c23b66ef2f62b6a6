package controller

import "github.com/envsort/envsort-core/internal/transport"

// EventKind identifies the type of a dispatcher event.
type EventKind int

// The event vocabulary consumed by the dispatcher loop.
const (
	EventKeyChar EventKind = iota + 1
	EventEnterPressed
	EventLineReceived
	EventTimerFired
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventKeyChar:
		return "key_char"
	case EventEnterPressed:
		return "enter_pressed"
	case EventLineReceived:
		return "line_received"
	case EventTimerFired:
		return "timer_fired"
	default:
		return "unknown"
	}
}

// Event is one unit of input for the dispatcher loop.
//
// Exactly one payload field is meaningful, selected by Kind: Char for
// EventKeyChar, Line for EventLineReceived, Fn for EventTimerFired.
// EventEnterPressed carries no payload.
type Event struct {
	Kind EventKind
	Char rune
	Line transport.Line
	Fn   func()
}
