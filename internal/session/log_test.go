package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func testItem(id int64) Item {
	return Item{
		ItemID:    id,
		Timestamp: "2026-08-01 10:00:01",
		Scanner1:  ChannelValue{Value: "BCA0AAAAAAAAAAA1", Valid: boolPtr(true)},
		Scanner2:  ChannelValue{Value: "BCA00000000000000000001", Valid: boolPtr(true)},
		Scanner3:  ChannelValue{Value: "1234567890", Valid: boolPtr(true)},

		ValidationResult: "PASS",
	}
}

func TestLog_StartStop(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	id := l.Start(start)
	if id == "" {
		t.Fatal("Start() returned empty session ID")
	}
	if !l.Active() {
		t.Fatal("Active() = false after Start()")
	}

	l.Append(testItem(1001))
	l.Append(testItem(1002))

	path, err := l.Stop(start.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if path == "" {
		t.Fatal("Stop() returned empty path for non-empty session")
	}
	if l.Active() {
		t.Error("Active() = true after Stop()")
	}

	want := filepath.Join(dir, "session_20260801_100500.json")
	if path != want {
		t.Errorf("session file = %q, want %q", path, want)
	}
}

func TestLog_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	l.Start(start)
	l.Append(testItem(1001))
	item := testItem(1002)
	item.Fallback = true
	item.Scanner1.Value = "NO_SCAN"
	item.Scanner1.Valid = boolPtr(false)
	item.ValidationResult = "FAIL"
	l.Append(item)

	path, err := l.Stop(start.Add(time.Minute))
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	record, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if record.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", record.TotalItems)
	}
	if len(record.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2", len(record.Data))
	}
	if record.SessionStart != "2026-08-01 10:00:00" {
		t.Errorf("SessionStart = %q", record.SessionStart)
	}
	if record.Data[0].Scanner1.Value != "BCA0AAAAAAAAAAA1" {
		t.Errorf("Data[0].Scanner1.Value = %q", record.Data[0].Scanner1.Value)
	}
	if !record.Data[1].Fallback {
		t.Error("Data[1].Fallback = false, want true")
	}
	if record.Data[1].Scanner1.Value != "NO_SCAN" {
		t.Errorf("Data[1].Scanner1.Value = %q, want NO_SCAN", record.Data[1].Scanner1.Value)
	}
}

func TestLog_StopIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	l.Start(start)
	l.Append(testItem(1001))

	first, err := l.Stop(start.Add(time.Minute))
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	second, err := l.Stop(start.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if second != first {
		t.Errorf("second Stop() = %q, want same path %q", second, first)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("session dir has %d files, want 1", len(entries))
	}
}

func TestLog_StopEmptySession(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	l.Start(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))

	path, err := l.Stop(time.Date(2026, 8, 1, 10, 1, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Stop() error = %v for empty session", err)
	}
	if path != "" {
		t.Errorf("Stop() = %q for empty session, want no file", path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("session dir has %d files for empty session, want 0", len(entries))
	}
}

func TestLog_AppendWithoutSession(t *testing.T) {
	l := NewLog(t.TempDir())

	// Dropped silently; must not panic or accumulate.
	l.Append(testItem(1))

	if l.Count() != 0 {
		t.Errorf("Count() = %d after append without session, want 0", l.Count())
	}
}

func TestLog_StartResetsItems(t *testing.T) {
	l := NewLog(t.TempDir())
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	l.Start(start)
	l.Append(testItem(1))
	l.Stop(start.Add(time.Minute)) //nolint:errcheck // outcome checked via next session

	id2 := l.Start(start.Add(2 * time.Minute))
	if l.Count() != 0 {
		t.Errorf("Count() = %d after restart, want 0", l.Count())
	}
	if id2 == "" {
		t.Error("second Start() returned empty ID")
	}
}
