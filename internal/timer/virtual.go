package timer

import (
	"sort"
	"time"
)

// virtualEntry is one armed callback on the virtual clock.
type virtualEntry struct {
	handle Handle
	due    time.Time
	seq    int64
	fn     func()
}

// VirtualScheduler is a Service backed by a manually advanced clock.
//
// Nothing fires until Advance moves the clock past a callback's due
// time. Callbacks run synchronously inside Advance, in due order, with
// schedule order breaking ties. This makes the 120 ms / 2000 ms /
// 5000 ms windows deterministic in tests.
//
// Not safe for concurrent use: tests drive it from one goroutine.
type VirtualScheduler struct {
	now     time.Time
	next    Handle
	seq     int64
	pending []*virtualEntry
}

// NewVirtualScheduler creates a virtual scheduler starting at the given time.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{now: start}
}

// Now returns the current virtual time.
func (v *VirtualScheduler) Now() time.Time {
	return v.now
}

// Schedule arms a callback to fire delay after the current virtual time.
func (v *VirtualScheduler) Schedule(delay time.Duration, fn func()) Handle {
	v.next++
	v.seq++
	v.pending = append(v.pending, &virtualEntry{
		handle: v.next,
		due:    v.now.Add(delay),
		seq:    v.seq,
		fn:     fn,
	})
	return v.next
}

// Cancel removes a pending callback.
func (v *VirtualScheduler) Cancel(handle Handle) bool {
	for i, e := range v.pending {
		if e.handle == handle {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves the clock forward and fires every callback whose due
// time is reached, in due order. Callbacks may schedule further
// callbacks; those fire too if they fall within the advanced window.
func (v *VirtualScheduler) Advance(d time.Duration) {
	target := v.now.Add(d)

	for {
		e := v.popDue(target)
		if e == nil {
			break
		}
		// Clock reaches the callback's due time before it runs.
		if e.due.After(v.now) {
			v.now = e.due
		}
		e.fn()
	}

	v.now = target
}

// popDue removes and returns the earliest pending entry due at or before
// target, or nil if none qualify.
func (v *VirtualScheduler) popDue(target time.Time) *virtualEntry {
	if len(v.pending) == 0 {
		return nil
	}

	sort.SliceStable(v.pending, func(i, j int) bool {
		if v.pending[i].due.Equal(v.pending[j].due) {
			return v.pending[i].seq < v.pending[j].seq
		}
		return v.pending[i].due.Before(v.pending[j].due)
	})

	if v.pending[0].due.After(target) {
		return nil
	}

	e := v.pending[0]
	v.pending = v.pending[1:]
	return e
}

// PendingCount returns the number of armed callbacks.
func (v *VirtualScheduler) PendingCount() int {
	return len(v.pending)
}
