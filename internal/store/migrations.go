package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with runs and run offsets",
		Up:          migrationV1Up,
	},
	{
		Version:     2,
		Description: "Add lookup index for result reuse",
		Up:          migrationV2Up,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    created_ns      INTEGER NOT NULL,
    file_path       TEXT NOT NULL,
    digest          BLOB NOT NULL,
    text_length     INTEGER NOT NULL,
    key_length      INTEGER NOT NULL CHECK (key_length > 0),
    mode            TEXT NOT NULL,
    unit            TEXT NOT NULL,
    letters_only    INTEGER NOT NULL DEFAULT 0,
    average_ioc     REAL NOT NULL,
    record_hash     BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_file ON runs(file_path, created_ns);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_ns);

CREATE TABLE IF NOT EXISTS run_offsets (
    run_id          INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    residue         INTEGER NOT NULL,
    length          INTEGER NOT NULL,
    coincidences    INTEGER NOT NULL,
    ioc             REAL NOT NULL,
    PRIMARY KEY (run_id, residue)
);
`

const migrationV2Up = `
CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(digest, key_length, mode, unit, letters_only);
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// MigrationStatus describes which migrations have been applied.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// migrationStatus reads schema_migrations against the known migrations.
func migrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{
		LatestVersion: len(migrations),
	}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		// Table might not exist yet
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		applied[am.Version] = true

		if am.Version > status.CurrentVersion {
			status.CurrentVersion = am.Version
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !applied[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}

	return status, nil
}

// validateSchema checks that all expected tables exist.
func validateSchema(db *sql.DB) error {
	for _, table := range []string{"runs", "run_offsets", "schema_migrations"} {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}

	return nil
}

// SchemaStatus validates the schema tables and reports the applied
// migrations. A database written by a newer build reports a CurrentVersion
// above LatestVersion.
func (s *Store) SchemaStatus() (*MigrationStatus, error) {
	if err := validateSchema(s.db); err != nil {
		return nil, err
	}
	return migrationStatus(s.db)
}
