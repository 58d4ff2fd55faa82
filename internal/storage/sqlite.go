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

// OpenSQLite opens (and creates if needed) the catalog database at path and
// ensures required tables exist. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates catalog tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalog_sources (
  name        TEXT PRIMARY KEY,
  origin      TEXT NOT NULL DEFAULT '',
  entries     INTEGER NOT NULL DEFAULT 0,
  imported_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS catalog_entries (
  id          TEXT PRIMARY KEY,
  source      TEXT NOT NULL REFERENCES catalog_sources(name) ON DELETE CASCADE,
  table_name  TEXT NOT NULL,
  column_name TEXT NOT NULL DEFAULT '',
  keywords    TEXT NOT NULL DEFAULT '[]',
  fingerprint TEXT NOT NULL,
  indexed_at  TEXT NOT NULL,
  UNIQUE(source, table_name, column_name)
);`,
		`CREATE INDEX IF NOT EXISTS catalog_entries_table_idx ON catalog_entries(table_name);`,
		`CREATE INDEX IF NOT EXISTS catalog_entries_column_idx ON catalog_entries(column_name);`,
		`CREATE TABLE IF NOT EXISTS profile_tasks (
  id           TEXT PRIMARY KEY,
  run_id       TEXT NOT NULL,
  kind         TEXT NOT NULL,
  target       TEXT NOT NULL,
  object       TEXT NOT NULL DEFAULT '',
  separator    TEXT NOT NULL DEFAULT ',',
  status       TEXT NOT NULL,
  result       TEXT,
  last_error   TEXT,
  created_at   TEXT NOT NULL,
  started_at   TEXT,
  completed_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS profile_tasks_run_idx ON profile_tasks(run_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
