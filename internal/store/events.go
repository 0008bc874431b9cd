package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mnemo-dev/mnemo/internal/config"
)

// Event is an immutable record of a single user action. Topic is the subject
// used for recency aggregation; MetaJSON is an opaque pre-serialized map the
// store never interprets.
type Event struct {
	ID       int64
	UserID   string
	Type     string
	Topic    string
	MetaJSON string
	Weight   float64
	AtUTC    int64
}

// NewEvent builds an event stamped with the current time and default user id.
// Weight <= 0 falls back to 1.0.
func NewEvent(eventType, topic, metaJSON string, weight float64) *Event {
	if weight <= 0 {
		weight = 1.0
	}
	return &Event{
		UserID:   config.DefaultUserID,
		Type:     eventType,
		Topic:    topic,
		MetaJSON: metaJSON,
		Weight:   weight,
		AtUTC:    time.Now().UnixMilli(),
	}
}

// InsertEvent persists an event. The row is never mutated afterwards.
func (db *DB) InsertEvent(e *Event) error {
	if e.AtUTC == 0 {
		e.AtUTC = time.Now().UnixMilli()
	}
	result, err := db.Exec(`
		INSERT INTO events (user_id, type, topic, meta_json, weight, at_utc)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
	`, e.UserID, e.Type, e.Topic, e.MetaJSON, e.Weight, e.AtUTC)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, _ := result.LastInsertId()
	e.ID = id
	return nil
}

// RecentEvents returns the most recent events for a user, newest first.
func (db *DB) RecentEvents(userID string, limit int) ([]Event, error) {
	rows, err := db.Query(`
		SELECT id, user_id, type, topic, meta_json, weight, at_utc
		FROM events WHERE user_id = ?
		ORDER BY at_utc DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentTopicEvents returns the most recent events that carry a topic,
// newest first. Used by snapshot topic aggregation.
func (db *DB) RecentTopicEvents(userID string, limit int) ([]Event, error) {
	rows, err := db.Query(`
		SELECT id, user_id, type, topic, meta_json, weight, at_utc
		FROM events WHERE user_id = ? AND topic IS NOT NULL AND topic != ''
		ORDER BY at_utc DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent topic events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountEvents returns the number of events stored for a user.
func (db *DB) CountEvents(userID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM events WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// PruneEvents removes events older than EventRetentionDays, then — if the
// log is still over MaxEventsPerUser — removes the oldest excess rows. The
// age pass runs first because it usually clears enough that the cap pass
// scans nothing. Returns total rows removed.
func (db *DB) PruneEvents(userID string) (int, error) {
	byAge, err := db.pruneEventsByAge(userID, config.EventRetentionDays)
	if err != nil {
		return 0, err
	}
	byCount, err := db.pruneEventsCap(userID, config.MaxEventsPerUser)
	if err != nil {
		return byAge, err
	}
	return byAge + byCount, nil
}

func (db *DB) pruneEventsByAge(userID string, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()

	result, err := db.Exec(`
		DELETE FROM events WHERE user_id = ? AND at_utc < ?
	`, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events by age: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// pruneEventsCap keeps the max most recent events and drops the rest.
func (db *DB) pruneEventsCap(userID string, max int) (int, error) {
	result, err := db.Exec(`
		DELETE FROM events WHERE user_id = ? AND id NOT IN (
			SELECT id FROM events WHERE user_id = ?
			ORDER BY at_utc DESC, id DESC LIMIT ?
		)
	`, userID, userID, max)
	if err != nil {
		return 0, fmt.Errorf("prune events by count: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var topic, metaJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &topic, &metaJSON, &e.Weight, &e.AtUTC); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Topic = topic.String
		e.MetaJSON = metaJSON.String
		events = append(events, e)
	}
	return events, rows.Err()
}
