package scan

import "time"

// lastScan holds the most recent accepted value for a channel.
type lastScan struct {
	value string
	at    time.Time
}

// Debouncer suppresses rapid re-reads of the same value on a channel.
//
// State is keyed per channel and survives across items; it is not reset
// when an item completes.
//
// Not safe for concurrent use: the dispatcher loop owns all calls.
type Debouncer struct {
	cooldown time.Duration
	last     map[Channel]lastScan
}

// NewDebouncer creates a debouncer with the given cooldown window.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	return &Debouncer{
		cooldown: cooldown,
		last:     make(map[Channel]lastScan),
	}
}

// Accept reports whether a scan should be processed.
//
// It returns false iff value equals the stored value for the channel and
// now is within the cooldown window of the previous acceptance. On true,
// the stored (value, timestamp) pair is updated, including for a repeat
// accepted after the cooldown expired.
func (d *Debouncer) Accept(ch Channel, value string, now time.Time) bool {
	prev, seen := d.last[ch]
	if seen && prev.value == value && now.Sub(prev.at) < d.cooldown {
		return false
	}

	d.last[ch] = lastScan{value: value, at: now}
	return true
}
