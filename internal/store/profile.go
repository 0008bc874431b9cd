package store

import (
	"database/sql"
	"fmt"
)

// ProfileEntry is an explicit user setting. Profile entries are never
// derived, never pruned, and survive a forget.
type ProfileEntry struct {
	UserID string
	Key    string
	Value  string
}

// SetProfile writes a profile entry, replacing any previous value.
func (db *DB) SetProfile(userID, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO profile (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("set profile %s: %w", key, err)
	}
	return nil
}

// GetProfileValue returns the value for a profile key, or "" if absent.
func (db *DB) GetProfileValue(userID, key string) (string, error) {
	var value string
	err := db.QueryRow(`
		SELECT value FROM profile WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile %s: %w", key, err)
	}
	return value, nil
}

// DeleteProfile removes a profile entry.
func (db *DB) DeleteProfile(userID, key string) error {
	_, err := db.Exec("DELETE FROM profile WHERE user_id = ? AND key = ?", userID, key)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", key, err)
	}
	return nil
}

// ListProfile returns all profile entries for a user ordered by key.
func (db *DB) ListProfile(userID string) ([]ProfileEntry, error) {
	rows, err := db.Query(`
		SELECT user_id, key, value FROM profile WHERE user_id = ? ORDER BY key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list profile: %w", err)
	}
	defer rows.Close()

	var entries []ProfileEntry
	for rows.Next() {
		var p ProfileEntry
		if err := rows.Scan(&p.UserID, &p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("scan profile entry: %w", err)
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}
