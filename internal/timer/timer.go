package timer

import (
	"sync"
	"time"
)

// Handle identifies a scheduled callback for cancellation.
type Handle int64

// Service schedules delayed callbacks and cancels pending ones.
//
// Schedule returns a handle usable for cancellation. Cancel reports
// whether a pending callback was actually removed: cancelling an
// already-fired or unknown handle returns false and is harmless.
type Service interface {
	Schedule(delay time.Duration, fn func()) Handle
	Cancel(handle Handle) bool
}

// Scheduler is the wall-clock Service implementation.
//
// Callbacks are passed to the dispatch function supplied at construction
// rather than run on the timer goroutine. The dispatcher marshals them
// onto the loop that owns all controller state.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	dispatch func(fn func())

	mu      sync.Mutex
	next    Handle
	pending map[Handle]*time.Timer
	stopped bool
}

// NewScheduler creates a wall-clock scheduler.
//
// dispatch receives every fired callback; it must hand the callback to
// the dispatcher loop. A nil dispatch runs callbacks inline on the timer
// goroutine, which is only appropriate in tests.
func NewScheduler(dispatch func(fn func())) *Scheduler {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Scheduler{
		dispatch: dispatch,
		pending:  make(map[Handle]*time.Timer),
	}
}

// Schedule arms a callback to fire after delay.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}

	s.next++
	handle := s.next

	s.pending[handle] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.pending[handle]
		delete(s.pending, handle)
		s.mu.Unlock()

		// A concurrent Cancel may have removed the handle between the
		// timer firing and this check.
		if live {
			s.dispatch(fn)
		}
	})

	return handle
}

// Cancel removes a pending callback. Returns false if the handle already
// fired or was never scheduled.
func (s *Scheduler) Cancel(handle Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.pending[handle]
	if !ok {
		return false
	}

	delete(s.pending, handle)
	t.Stop()
	return true
}

// Stop cancels all pending callbacks and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for h, t := range s.pending {
		t.Stop()
		delete(s.pending, h)
	}
}

// PendingCount returns the number of armed callbacks. Used in tests and
// the status endpoint.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
