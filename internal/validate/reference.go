package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/envsort/envsort-core/internal/scan"
)

// File permission modes for the reference dataset.
const (
	refDirPermissions  = 0750
	refFilePermissions = 0600
)

// ReferenceEntry is one row of the reference dataset: the expected value
// for each channel. Rows are independent, not paired per item.
type ReferenceEntry struct {
	Scanner1 string `json:"scanner1"`
	Scanner2 string `json:"scanner2"`
	Scanner3 string `json:"scanner3"`
}

// value returns the entry's value for a channel.
func (e ReferenceEntry) value(ch scan.Channel) string {
	switch ch {
	case scan.Channel1:
		return e.Scanner1
	case scan.Channel2:
		return e.Scanner2
	case scan.Channel3:
		return e.Scanner3
	default:
		return ""
	}
}

// Reference holds the loaded reference dataset.
//
// Entries are immutable after load; Reload replaces the whole set under
// the lock, so lookups from the controller and reloads from the API can
// run concurrently.
type Reference struct {
	path    string
	mu      sync.RWMutex
	entries []ReferenceEntry
}

// defaultEntries seeds a newly created reference file so a fresh kiosk
// can run the demo flow immediately.
func defaultEntries() []ReferenceEntry {
	return []ReferenceEntry{
		{
			Scanner1: "BCA0AAAAAAAAAAA1",
			Scanner2: "BCA00000000000000000001",
			Scanner3: "1234567890",
		},
		{
			Scanner1: "BCA0AAAAAAAAAAA2",
			Scanner2: "BCA00000000000000000002",
			Scanner3: "2345678901",
		},
		{
			Scanner1: "BCA0AAAAAAAAAAA3",
			Scanner2: "BCA00000000000000000003",
			Scanner3: "3456789012",
		},
	}
}

// LoadReference reads the reference dataset from a JSON file.
//
// If the file does not exist it is created with demo defaults, so first
// run on a clean kiosk succeeds.
//
// Parameters:
//   - path: JSON file holding an array of ReferenceEntry objects
//
// Returns:
//   - *Reference: Loaded dataset
//   - error: If the file cannot be read, created, or parsed
func LoadReference(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		entries := defaultEntries()
		if err := writeEntries(path, entries); err != nil {
			return nil, fmt.Errorf("creating default reference file: %w", err)
		}
		return &Reference{path: path, entries: entries}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reference file: %w", err)
	}

	var entries []ReferenceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing reference file: %w", err)
	}

	return &Reference{path: path, entries: entries}, nil
}

// writeEntries persists a reference dataset to disk.
func writeEntries(path string, entries []ReferenceEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), refDirPermissions); err != nil {
		return fmt.Errorf("creating reference directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding reference entries: %w", err)
	}

	if err := os.WriteFile(path, data, refFilePermissions); err != nil {
		return fmt.Errorf("writing reference file: %w", err)
	}

	return nil
}

// Contains reports whether any reference row has the given value for the
// channel.
func (r *Reference) Contains(ch scan.Channel, value string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.value(ch) == value {
			return true
		}
	}
	return false
}

// Entries returns a copy of the dataset rows.
func (r *Reference) Entries() []ReferenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ReferenceEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of reference rows.
func (r *Reference) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reload re-reads the dataset from disk, replacing the in-memory rows.
func (r *Reference) Reload() error {
	fresh, err := LoadReference(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = fresh.entries
	r.mu.Unlock()
	return nil
}
