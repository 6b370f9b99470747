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

// timeLayout is fixed-width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. ":memory:" opens a private in-memory DB.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		if err := checkLocalFilesystem(path, detectFilesystemType); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS handler_registration (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  entity      TEXT NOT NULL,
  context     TEXT NOT NULL,
  exec_order  REAL NOT NULL,
  handler_id  TEXT NOT NULL,
  active      INTEGER NOT NULL DEFAULT 1,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS dispatch_log (
  id            TEXT PRIMARY KEY,
  unit_of_work  TEXT NOT NULL,
  entity        TEXT NOT NULL,
  context       TEXT NOT NULL,
  handler_id    TEXT NOT NULL,
  position      INTEGER NOT NULL,
  status        TEXT NOT NULL,
  error         TEXT,
  started_at    TEXT NOT NULL,
  completed_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS handler_registration_entity_active_idx ON handler_registration(entity, active);`,
		`CREATE INDEX IF NOT EXISTS dispatch_log_unit_of_work_idx ON dispatch_log(unit_of_work);`,
		`CREATE INDEX IF NOT EXISTS dispatch_log_completed_at_idx ON dispatch_log(completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
