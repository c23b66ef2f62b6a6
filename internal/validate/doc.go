// Package validate checks assembled items against the reference dataset.
//
// Each enabled channel that holds a value is independently tested for
// membership in the reference dataset. This is a per-channel test, not a
// requirement that all three values come from the same reference row.
//
// The reference dataset is a JSON file loaded at startup and created
// with demo defaults when absent.
package validate
