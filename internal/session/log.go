package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// File permission modes for session output.
const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// timestampLayout is the wall-clock format used inside session files.
const timestampLayout = "2006-01-02 15:04:05"

// filenameLayout names session files, e.g. session_20260829_143005.json.
const filenameLayout = "20060102_150405"

// ChannelValue is one channel's contribution to a logged item.
// Valid is nil when the channel was not checked by the validator.
type ChannelValue struct {
	Value string `json:"value"`
	Valid *bool  `json:"valid"`
}

// Item is one completed item as serialized into the session file.
type Item struct {
	ItemID           int64        `json:"item_id"`
	Timestamp        string       `json:"timestamp"`
	Scanner1         ChannelValue `json:"scanner_1"`
	Scanner2         ChannelValue `json:"scanner_2"`
	Scanner3         ChannelValue `json:"scanner_3"`
	ValidationResult string       `json:"validation_result"`
	Fallback         bool         `json:"fallback"`
}

// Record is the serialized session summary.
type Record struct {
	SessionStart string `json:"session_start"`
	SessionEnd   string `json:"session_end"`
	TotalItems   int    `json:"total_items"`
	Data         []Item `json:"data"`
}

// Logger is the minimal logging interface the session log needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is set.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Log accumulates items for the active session.
//
// Not safe for concurrent use: the dispatcher loop owns all calls.
type Log struct {
	dir    string
	logger Logger

	id        string
	started   time.Time
	items     []Item
	active    bool
	savedPath string
}

// NewLog creates a session log writing files into dir.
func NewLog(dir string) *Log {
	return &Log{
		dir:    dir,
		logger: noopLogger{},
	}
}

// SetLogger attaches a logger for session lifecycle messages.
func (l *Log) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Start begins a new session, clearing any accumulated items.
// Returns the generated session ID.
func (l *Log) Start(now time.Time) string {
	l.id = "ses-" + uuid.NewString()[:8]
	l.started = now
	l.items = nil
	l.active = true
	l.savedPath = ""

	l.logger.Info("session started", "session_id", l.id)
	return l.id
}

// ID returns the active session's ID, or "" when idle.
func (l *Log) ID() string {
	if !l.active {
		return ""
	}
	return l.id
}

// Active reports whether a session is open.
func (l *Log) Active() bool {
	return l.active
}

// StartedAt returns the active session's start time.
func (l *Log) StartedAt() time.Time {
	return l.started
}

// Count returns the number of items logged so far.
func (l *Log) Count() int {
	return len(l.items)
}

// Items returns a copy of the accumulated items.
func (l *Log) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Append adds a completed item to the session. Ignored when no session
// is active.
func (l *Log) Append(item Item) {
	if !l.active {
		l.logger.Warn("item dropped, no active session", "item_id", item.ItemID)
		return
	}
	l.items = append(l.items, item)
}

// Stop seals the session and writes the JSON session file.
//
// Calling Stop twice, or with zero items, never errors and never writes
// a second file. With zero items the file write is skipped and an empty
// path is returned.
//
// Returns:
//   - string: Path of the written session file, "" if nothing was written
//   - error: If serialization or the file write fails
func (l *Log) Stop(now time.Time) (string, error) {
	if !l.active {
		return l.savedPath, nil
	}
	l.active = false

	if len(l.items) == 0 {
		l.logger.Warn("session ended with no items, skipping file write", "session_id", l.id)
		return "", nil
	}

	record := Record{
		SessionStart: l.started.Format(timestampLayout),
		SessionEnd:   now.Format(timestampLayout),
		TotalItems:   len(l.items),
		Data:         l.items,
	}

	if err := os.MkdirAll(l.dir, dirPermissions); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}

	path := filepath.Join(l.dir, fmt.Sprintf("session_%s.json", now.Format(filenameLayout)))

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding session record: %w", err)
	}

	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return "", fmt.Errorf("writing session file: %w", err)
	}

	l.savedPath = path
	l.logger.Info("session file written",
		"session_id", l.id,
		"path", path,
		"total_items", record.TotalItems,
	)

	return path, nil
}

// Load reads a session file back into a Record.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("reading session file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing session file: %w", err)
	}

	return record, nil
}
