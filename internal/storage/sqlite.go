package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteJournal keeps the history in a single table. The plugin writes a
// handful of rows per minute at most, so one connection in WAL mode is plenty.
//
// Uses modernc.org/sqlite driver, pure Go, so no CGO in the build.
type sqliteJournal struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at the given path and ensures the
// schema exists. Caller is responsible for calling Close() when done.
func NewSQLite(path string) (Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteJournal{db: db}, nil
}

func migrate(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL DEFAULT 0,
		ok INTEGER NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
	`
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// Record inserts one entry.
func (s *sqliteJournal) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(kind, user_id, group_id, ok, detail, created_at) VALUES(?, ?, ?, ?, ?, ?);`,
		e.Kind, e.UserID, e.GroupID, e.OK, e.Detail, e.CreatedAt.UTC())
	return err
}

// Recent returns the newest entries first.
func (s *sqliteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, user_id, group_id, ok, detail, created_at
		 FROM history ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.UserID, &e.GroupID, &e.OK, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying *sql.DB.
func (s *sqliteJournal) Close() error {
	return s.db.Close()
}
