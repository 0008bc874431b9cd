package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemo-dev/mnemo/internal/config"
)

// Fact is a durable scored assertion about the user, unique per
// (user_id, key). Keys are namespaced with dots, e.g.
// "prefers.morning_exercise".
type Fact struct {
	ID         int64
	UserID     string
	Key        string
	Value      string
	Score      float64
	UpdatedUTC int64
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > config.MaxFactScore {
		return config.MaxFactScore
	}
	return s
}

// UpsertFact creates or updates the fact for (userID, key) in a single
// transaction. The value is replaced unconditionally; the score becomes
// clamp(previous+delta) with previous = 0 for a fresh row.
func (db *DB) UpsertFact(userID, key, value string, scoreDelta float64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert fact: %w", err)
	}

	var prev float64
	err = tx.QueryRow(`
		SELECT score FROM facts WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		tx.Rollback()
		return fmt.Errorf("read fact score: %w", err)
	}

	now := time.Now().UnixMilli()
	score := clampScore(prev + scoreDelta)

	_, err = tx.Exec(`
		INSERT INTO facts (user_id, key, value, score, updated_utc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			score = excluded.score,
			updated_utc = excluded.updated_utc
	`, userID, key, value, score, now)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert fact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert fact: %w", err)
	}
	return nil
}

// GetFact returns the fact for (userID, key), or nil if not found.
func (db *DB) GetFact(userID, key string) (*Fact, error) {
	var f Fact
	err := db.QueryRow(`
		SELECT id, user_id, key, value, score, updated_utc
		FROM facts WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&f.ID, &f.UserID, &f.Key, &f.Value, &f.Score, &f.UpdatedUTC)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return &f, nil
}

// ListFacts returns all facts for a user, strongest and freshest first.
func (db *DB) ListFacts(userID string) ([]Fact, error) {
	rows, err := db.Query(`
		SELECT id, user_id, key, value, score, updated_utc
		FROM facts WHERE user_id = ?
		ORDER BY score DESC, updated_utc DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ListHighConfidenceFacts returns facts at or above minScore, strongest
// and freshest first.
func (db *DB) ListHighConfidenceFacts(userID string, minScore float64) ([]Fact, error) {
	rows, err := db.Query(`
		SELECT id, user_id, key, value, score, updated_utc
		FROM facts WHERE user_id = ? AND score >= ?
		ORDER BY score DESC, updated_utc DESC
	`, userID, minScore)
	if err != nil {
		return nil, fmt.Errorf("list high confidence facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// CountFacts returns the number of facts stored for a user.
func (db *DB) CountFacts(userID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM facts WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return count, nil
}

// PruneFacts removes weak inactive facts (score below MinFactScore and
// untouched for FactInactivityDays), then caps the table at MaxFactsPerUser
// by dropping the lowest-score, oldest excess. Returns total rows removed.
func (db *DB) PruneFacts(userID string) (int, error) {
	weak, err := db.pruneWeakFacts(userID, config.MinFactScore, config.FactInactivityDays)
	if err != nil {
		return 0, err
	}
	excess, err := db.pruneFactsCap(userID, config.MaxFactsPerUser)
	if err != nil {
		return weak, err
	}
	return weak + excess, nil
}

func (db *DB) pruneWeakFacts(userID string, minScore float64, inactivityDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -inactivityDays).UnixMilli()

	result, err := db.Exec(`
		DELETE FROM facts WHERE user_id = ? AND score < ? AND updated_utc < ?
	`, userID, minScore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune weak facts: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// pruneFactsCap keeps the max strongest (freshest on ties) facts and drops
// the rest.
func (db *DB) pruneFactsCap(userID string, max int) (int, error) {
	result, err := db.Exec(`
		DELETE FROM facts WHERE user_id = ? AND id NOT IN (
			SELECT id FROM facts WHERE user_id = ?
			ORDER BY score DESC, updated_utc DESC LIMIT ?
		)
	`, userID, userID, max)
	if err != nil {
		return 0, fmt.Errorf("prune excess facts: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.UserID, &f.Key, &f.Value, &f.Score, &f.UpdatedUTC); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
