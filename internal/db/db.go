package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/venvkeep/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// ExportsDir is the subdirectory of the base dir that receives exported reports.
const ExportsDir = "exports"

// Init initializes the SQLite database at baseDir/venvkeep.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.venvkeep.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, ExportsDir)
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection
	dbPath := filepath.Join(baseDir, "venvkeep.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: scan cache and interpreter history
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS scan_cache (
		  root         TEXT NOT NULL,
		  interpreter  TEXT NOT NULL,
		  path         TEXT NOT NULL,
		  verified_at  INTEGER NOT NULL,
		  PRIMARY KEY (root, interpreter, path)
		);

		CREATE TABLE IF NOT EXISTS interpreters (
		  path          TEXT PRIMARY KEY,
		  pip_version   TEXT,
		  use_count     INTEGER NOT NULL DEFAULT 0,
		  last_used_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_interpreters_last_used
		ON interpreters(last_used_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: run history with failed items
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id                TEXT PRIMARY KEY,
		  kind              TEXT NOT NULL,
		  interpreter       TEXT NOT NULL,
		  mirror            TEXT,
		  succeeded_count   INTEGER NOT NULL,
		  failed_count      INTEGER NOT NULL,
		  uninstalled_count INTEGER NOT NULL,
		  skipped_count     INTEGER NOT NULL,
		  cancelled         INTEGER NOT NULL,
		  started_at        INTEGER NOT NULL,
		  finished_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS run_failures (
		  run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		  seq     INTEGER NOT NULL,
		  spec    TEXT NOT NULL,
		  reason  TEXT NOT NULL,
		  PRIMARY KEY (run_id, seq)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
