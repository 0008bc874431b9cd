package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Snapshot is the cached personalization context for a user: a bounded,
// ordered list of text lines plus a version that increments by one on
// every rebuild.
type Snapshot struct {
	UserID   string
	Version  int64
	BuiltUTC int64
	Lines    []string
}

// AsText returns the lines joined by newline, in build order. This is the
// exact string downstream consumers prepend to prompts; they treat it as
// opaque and never parse individual lines.
func (s *Snapshot) AsText() string {
	return strings.Join(s.Lines, "\n")
}

// Age returns how long ago the snapshot was built.
func (s *Snapshot) Age() time.Duration {
	return time.Since(time.UnixMilli(s.BuiltUTC))
}

// GetSnapshot returns the snapshot row for a user, or nil if none exists.
// Corrupt lines_json degrades to an empty line list rather than an error.
func (db *DB) GetSnapshot(userID string) (*Snapshot, error) {
	var s Snapshot
	var linesJSON string
	err := db.QueryRow(`
		SELECT user_id, version, built_utc, lines_json
		FROM snapshots WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.Version, &s.BuiltUTC, &linesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(linesJSON), &s.Lines); err != nil {
		log.Printf("snapshot user=%s v%d: corrupt lines_json, treating as empty: %v", userID, s.Version, err)
		s.Lines = nil
	}
	return &s, nil
}

// ReplaceSnapshot atomically replaces the snapshot row for a user, assigning
// version = previous+1 (1 when no row exists). The read and the write share
// one transaction so concurrent rebuilds each still produce a strictly newer
// version and never interleave partial rows.
func (db *DB) ReplaceSnapshot(userID string, lines []string) (*Snapshot, error) {
	if lines == nil {
		lines = []string{}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot lines: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin snapshot replace: %w", err)
	}

	var prev int64
	err = tx.QueryRow(`
		SELECT version FROM snapshots WHERE user_id = ?
	`, userID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		tx.Rollback()
		return nil, fmt.Errorf("read snapshot version: %w", err)
	}

	now := time.Now().UnixMilli()
	next := prev + 1

	if _, err := tx.Exec(`
		INSERT INTO snapshots (user_id, version, built_utc, lines_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			version = excluded.version,
			built_utc = excluded.built_utc,
			lines_json = excluded.lines_json
	`, userID, next, now, string(linesJSON)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("replace snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot replace: %w", err)
	}

	return &Snapshot{
		UserID:   userID,
		Version:  next,
		BuiltUTC: now,
		Lines:    lines,
	}, nil
}

// DeleteSnapshot removes the snapshot row for a user.
func (db *DB) DeleteSnapshot(userID string) error {
	_, err := db.Exec("DELETE FROM snapshots WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Forget removes all events, all facts, and the snapshot for a user in one
// transaction. Profile entries are explicit settings and deliberately
// survive. A failure rolls everything back — partial silent deletion would
// betray the user's erasure request.
func (db *DB) Forget(userID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin forget: %w", err)
	}

	for _, stmt := range []string{
		"DELETE FROM events WHERE user_id = ?",
		"DELETE FROM facts WHERE user_id = ?",
		"DELETE FROM snapshots WHERE user_id = ?",
	} {
		if _, err := tx.Exec(stmt, userID); err != nil {
			tx.Rollback()
			return fmt.Errorf("forget user %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit forget: %w", err)
	}
	return nil
}
