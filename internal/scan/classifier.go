package scan

import (
	"fmt"
	"time"
)

// Channel identifies one of the three logical scanning inputs.
type Channel int

// The fixed channel set. Never extended at runtime.
const (
	ChannelUnknown Channel = 0
	Channel1       Channel = 1
	Channel2       Channel = 2
	Channel3       Channel = 3
)

// Channel2Prefix is the required prefix for Channel2 codes.
const Channel2Prefix = "BCA"

// String returns a human-readable channel name for logging.
func (c Channel) String() string {
	switch c {
	case Channel1:
		return "channel1"
	case Channel2:
		return "channel2"
	case Channel3:
		return "channel3"
	default:
		return "unknown"
	}
}

// Number returns the channel as its wire protocol number (1-3), or 0 for unknown.
func (c Channel) Number() int {
	return int(c)
}

// ChannelFromNumber converts a wire protocol number to a Channel.
func ChannelFromNumber(n int) (Channel, error) {
	switch n {
	case 1:
		return Channel1, nil
	case 2:
		return Channel2, nil
	case 3:
		return Channel3, nil
	default:
		return ChannelUnknown, fmt.Errorf("invalid channel number %d", n)
	}
}

// Event is a single accepted scan observation. Immutable once created.
type Event struct {
	Channel   Channel
	RawValue  string
	Timestamp time.Time
}

// Classify maps a trimmed, non-empty scan string to a channel.
//
// Rules are evaluated in this fixed order, first match wins:
//  1. length == 16 -> Channel1 (no content check beyond length)
//  2. length > 16 and starts with "BCA" -> Channel2
//  3. length == 10 and all decimal digits -> Channel3
//  4. otherwise -> ChannelUnknown
func Classify(raw string) Channel {
	switch {
	case len(raw) == 16:
		return Channel1
	case len(raw) > 16 && hasChannel2Prefix(raw):
		return Channel2
	case len(raw) == 10 && allDigits(raw):
		return Channel3
	default:
		return ChannelUnknown
	}
}

func hasChannel2Prefix(s string) bool {
	return len(s) >= len(Channel2Prefix) && s[:len(Channel2Prefix)] == Channel2Prefix
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
