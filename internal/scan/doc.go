// Package scan classifies raw barcode reads into channels and suppresses
// duplicate re-reads.
//
// This package manages:
//   - Mapping a raw scan string to one of three channels by code shape
//   - Per-channel debounce with a configurable cooldown window
//
// # Classification
//
// Rules are evaluated in fixed order, first match wins:
//  1. length == 16 -> Channel1
//  2. length > 16 and "BCA" prefix -> Channel2
//  3. length == 10, all decimal digits -> Channel3
//  4. otherwise -> Unknown
//
// Classification is a pure function with no side effects. Debounce state
// persists across items: it guards against rapid re-reads of the same
// physical label across item boundaries too.
package scan
