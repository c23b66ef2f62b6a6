package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Summary is one row of the sessions table.
type Summary struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	TotalItems int        `json:"total_items"`
	FilePath   string     `json:"file_path,omitempty"`
}

// Repository persists session history to SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a session history repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession records a newly started session.
func (r *Repository) CreateSession(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, total_items) VALUES (?, ?, 0)`,
		id, startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// FinishSession seals a session row with its end time and totals.
func (r *Repository) FinishSession(ctx context.Context, id string, endedAt time.Time, totalItems int, filePath string) error {
	var path any
	if filePath != "" {
		path = filePath
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, total_items = ?, file_path = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339), totalItems, path, id,
	)
	if err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	return nil
}

// AddItem records one completed item against a session. The caller
// supplies the completion time so rows carry the controller's clock,
// not the database's.
func (r *Repository) AddItem(ctx context.Context, sessionID string, item Item, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_items
		 (session_id, item_id, scanner1, scanner2, scanner3, result1, result2, result3, overall, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, item.ItemID,
		item.Scanner1.Value, item.Scanner2.Value, item.Scanner3.Value,
		validText(item.Scanner1.Valid), validText(item.Scanner2.Valid), validText(item.Scanner3.Valid),
		item.ValidationResult,
		boolInt(item.Fallback),
		completedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session item: %w", err)
	}
	return nil
}

// validText encodes a nullable check outcome as a fixed TEXT value.
func validText(v *bool) string {
	switch {
	case v == nil:
		return "unchecked"
	case *v:
		return "valid"
	default:
		return "invalid"
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListSessions returns the most recent sessions, newest first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 { //nolint:mnd // max page size for history queries
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, total_items, file_path
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Summary
	for rows.Next() {
		var s Summary
		var startedAt string
		var endedAt, filePath sql.NullString

		if err := rows.Scan(&s.ID, &startedAt, &endedAt, &s.TotalItems, &filePath); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}

		t, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing session start %q: %w", startedAt, err)
		}
		s.StartedAt = t

		if endedAt.Valid {
			e, err := time.Parse(time.RFC3339, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing session end %q: %w", endedAt.String, err)
			}
			s.EndedAt = &e
		}
		if filePath.Valid {
			s.FilePath = filePath.String
		}

		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Summary{}
	}
	return sessions, nil
}

// ListItems returns the items recorded for a session, oldest first.
func (r *Repository) ListItems(ctx context.Context, sessionID string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id, scanner1, scanner2, scanner3, result1, result2, result3, overall, fallback, created_at
		 FROM session_items WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var r1, r2, r3 string
		var fallback int
		var createdAt string

		if err := rows.Scan(&it.ItemID,
			&it.Scanner1.Value, &it.Scanner2.Value, &it.Scanner3.Value,
			&r1, &r2, &r3,
			&it.ValidationResult, &fallback, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session item: %w", err)
		}

		it.Scanner1.Valid = parseValid(r1)
		it.Scanner2.Valid = parseValid(r2)
		it.Scanner3.Valid = parseValid(r3)
		it.Fallback = fallback != 0
		it.Timestamp = createdAt

		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session items: %w", err)
	}

	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// parseValid decodes the TEXT check outcome back to a nullable bool.
func parseValid(s string) *bool {
	switch s {
	case "valid":
		v := true
		return &v
	case "invalid":
		v := false
		return &v
	default:
		return nil
	}
}
