// Package session accumulates finished items between start and stop and
// persists the session summary.
//
// Two stores are written on stop:
//   - a JSON session file (session_YYYYMMDD_HHMMSS.json) in the session
//     directory, the canonical durable record
//   - SQLite rows via Repository, used for the history API
//
// Stop is idempotent: a second call never errors and never writes a
// second file.
package session
