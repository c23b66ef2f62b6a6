// Package timer provides schedulable, cancelable delayed callbacks.
//
// The controller uses three windows: input-buffer flush after keystroke
// inactivity, the scanner-1 fallback timeout, and the display highlight
// reset. All fire through the dispatcher loop so callbacks never touch
// shared state from a timer goroutine.
//
// Two implementations are provided:
//   - Scheduler: wall-clock backed, used in production
//   - VirtualScheduler: manually advanced clock for deterministic tests
package timer
