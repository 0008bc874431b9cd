package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "profile: explicit user settings",
		SQL: `
CREATE TABLE profile (
    user_id  TEXT NOT NULL,
    key      TEXT NOT NULL,
    value    TEXT NOT NULL,
    PRIMARY KEY (user_id, key)
);
`,
	},
	{
		Version:     2,
		Description: "events: append-only user action log",
		SQL: `
CREATE TABLE events (
    id        INTEGER PRIMARY KEY,
    user_id   TEXT NOT NULL,
    type      TEXT NOT NULL,
    topic     TEXT,
    meta_json TEXT,
    weight    REAL NOT NULL DEFAULT 1.0,
    at_utc    INTEGER NOT NULL
);

CREATE INDEX idx_events_user_at ON events(user_id, at_utc DESC);
CREATE INDEX idx_events_type    ON events(type);
`,
	},
	{
		Version:     3,
		Description: "facts: scored assertions about the user",
		SQL: `
CREATE TABLE facts (
    id          INTEGER PRIMARY KEY,
    user_id     TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       TEXT NOT NULL,
    score       REAL NOT NULL DEFAULT 0.0,
    updated_utc INTEGER NOT NULL
);

CREATE UNIQUE INDEX idx_facts_user_key ON facts(user_id, key);
`,
	},
	{
		Version:     4,
		Description: "snapshots: cached personalization context per user",
		SQL: `
CREATE TABLE snapshots (
    user_id    TEXT PRIMARY KEY,
    version    INTEGER NOT NULL,
    built_utc  INTEGER NOT NULL,
    lines_json TEXT NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
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

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
