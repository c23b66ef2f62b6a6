package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE sessions (
			id          TEXT PRIMARY KEY,
			started_at  TEXT NOT NULL,
			ended_at    TEXT,
			total_items INTEGER NOT NULL DEFAULT 0,
			file_path   TEXT
		);
		CREATE TABLE session_items (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			item_id    INTEGER NOT NULL,
			scanner1   TEXT NOT NULL,
			scanner2   TEXT NOT NULL,
			scanner3   TEXT NOT NULL,
			result1    TEXT NOT NULL,
			result2    TEXT NOT NULL,
			result3    TEXT NOT NULL,
			overall    TEXT NOT NULL,
			fallback   INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func TestRepository_SessionLifecycle(t *testing.T) {
	repo := NewRepository(setupDB(t))
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.CreateSession(ctx, "ses-aaaa1111", started); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	item := testItem(1001)
	if err := repo.AddItem(ctx, "ses-aaaa1111", item, started.Add(time.Minute)); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	fb := testItem(1002)
	fb.Scanner1.Value = "NO_SCAN"
	fb.Scanner1.Valid = boolPtr(false)
	fb.ValidationResult = "FAIL"
	fb.Fallback = true
	if err := repo.AddItem(ctx, "ses-aaaa1111", fb, started.Add(2*time.Minute)); err != nil {
		t.Fatalf("AddItem() fallback error = %v", err)
	}

	ended := started.Add(10 * time.Minute)
	if err := repo.FinishSession(ctx, "ses-aaaa1111", ended, 2, "/data/sessions/session_x.json"); err != nil {
		t.Fatalf("FinishSession() error = %v", err)
	}

	sessions, err := repo.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	s := sessions[0]
	if s.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", s.TotalItems)
	}
	if s.EndedAt == nil || !s.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", s.EndedAt, ended)
	}
	if s.FilePath != "/data/sessions/session_x.json" {
		t.Errorf("FilePath = %q", s.FilePath)
	}

	items, err := repo.ListItems(ctx, "ses-aaaa1111")
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].ItemID != 1001 {
		t.Errorf("items[0].ItemID = %d, want 1001", items[0].ItemID)
	}
	// Rows carry the completion time handed in by the caller.
	if items[0].Timestamp != "2026-08-01T10:01:00Z" {
		t.Errorf("items[0].Timestamp = %q, want 2026-08-01T10:01:00Z", items[0].Timestamp)
	}
	if items[1].Fallback != true {
		t.Error("items[1].Fallback = false, want true")
	}
	if items[1].Scanner1.Valid == nil || *items[1].Scanner1.Valid {
		t.Error("items[1].Scanner1.Valid should be false")
	}
}

func TestRepository_UnfinishedSession(t *testing.T) {
	repo := NewRepository(setupDB(t))
	ctx := context.Background()

	if err := repo.CreateSession(ctx, "ses-open0001", time.Now().UTC()); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	sessions, err := repo.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].EndedAt != nil {
		t.Error("EndedAt should be nil for open session")
	}
	if sessions[0].FilePath != "" {
		t.Error("FilePath should be empty for open session")
	}
}

func TestRepository_ListItemsEmpty(t *testing.T) {
	repo := NewRepository(setupDB(t))

	items, err := repo.ListItems(context.Background(), "ses-none")
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if items == nil {
		t.Error("ListItems() = nil, want empty slice")
	}
	if len(items) != 0 {
		t.Errorf("len(items) = %d, want 0", len(items))
	}
}

func TestRepository_UncheckedChannelRoundTrip(t *testing.T) {
	repo := NewRepository(setupDB(t))
	ctx := context.Background()

	if err := repo.CreateSession(ctx, "ses-null0001", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	item := testItem(500)
	item.Scanner2.Valid = nil
	if err := repo.AddItem(ctx, "ses-null0001", item, time.Now().UTC()); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	items, err := repo.ListItems(ctx, "ses-null0001")
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if items[0].Scanner2.Valid != nil {
		t.Error("unchecked channel should round-trip as nil")
	}
	if items[0].Scanner1.Valid == nil || !*items[0].Scanner1.Valid {
		t.Error("checked channel should round-trip as true")
	}
}
