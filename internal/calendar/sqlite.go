package calendar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	start_ms    INTEGER NOT NULL,
	end_ms      INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	attendees   TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_ms);
`

// SQLiteStore persists events in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, query Query) ([]Event, error) {
	var (
		clauses []string
		args    []any
	)
	if !query.From.IsZero() {
		clauses = append(clauses, "end_ms >= ?")
		args = append(args, query.From.UnixMilli())
	}
	if !query.To.IsZero() {
		clauses = append(clauses, "start_ms < ?")
		args = append(args, query.To.UnixMilli())
	}
	if term := strings.TrimSpace(query.Search); term != "" {
		clauses = append(clauses, "(instr(lower(title), ?) > 0 OR instr(lower(description), ?) > 0)")
		lowered := strings.ToLower(term)
		args = append(args, lowered, lowered)
	}

	stmt := "SELECT id, title, start_ms, end_ms, description, location, attendees FROM events"
	if len(clauses) > 0 {
		stmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	stmt += " ORDER BY start_ms, id"
	if query.MaxResults > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.MaxResults)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, event NewEvent) (string, error) {
	if err := validateNewEvent(event); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	attendees, err := encodeAttendees(event.Attendees)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, start_ms, end_ms, description, location, attendees, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, event.Title, event.Start.UnixMilli(), event.End.UnixMilli(),
		event.Description, event.Location, attendees, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, start_ms, end_ms, description, location, attendees FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("get event %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (s *SQLiteStore) UpdateEvent(ctx context.Context, id string, patch Patch) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("update event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, title, start_ms, end_ms, description, location, attendees FROM events WHERE id = ?`, id)
	current, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("update event %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	next := patch.Apply(current)
	attendees, err := encodeAttendees(next.Attendees)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE events SET title = ?, start_ms = ?, end_ms = ?, description = ?, location = ?, attendees = ? WHERE id = ?`,
		next.Title, next.Start.UnixMilli(), next.End.UnixMilli(), next.Description, next.Location, attendees, id,
	)
	if err != nil {
		return "", fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("update event: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		ev             Event
		startMS, endMS int64
		attendees      string
	)
	if err := row.Scan(&ev.ID, &ev.Title, &startMS, &endMS, &ev.Description, &ev.Location, &attendees); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Start = time.UnixMilli(startMS).UTC()
	ev.End = time.UnixMilli(endMS).UTC()
	if attendees != "" {
		if err := json.Unmarshal([]byte(attendees), &ev.Attendees); err != nil {
			return Event{}, fmt.Errorf("decode attendees for %s: %w", ev.ID, err)
		}
	}
	if len(ev.Attendees) == 0 {
		ev.Attendees = nil
	}
	return ev, nil
}

func encodeAttendees(attendees []string) (string, error) {
	if len(attendees) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(attendees)
	if err != nil {
		return "", fmt.Errorf("encode attendees: %w", err)
	}
	return string(raw), nil
}
