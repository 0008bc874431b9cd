package config

import "fmt"

// Config holds all mnemo configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Maintenance MaintenanceConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type DatabaseConfig struct {
	Path string
}

type MaintenanceConfig struct {
	// Cron is a cron expression for scheduled maintenance runs inside the
	// serve process. Empty disables scheduling — the memory core never
	// schedules itself, this is purely a host convenience.
	Cron string
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37779,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultUserID is the single local user every call defaults to. Store
// operations stay keyed by user id so multi-profile hosts can pass their own.
const DefaultUserID = "local"

// Tunables for retention, scoring, and snapshot construction. Centralized so
// tests and callers agree on the numbers.
const (
	// RebuildEventThreshold is the number of appended events that triggers
	// an asynchronous snapshot rebuild.
	RebuildEventThreshold = 15

	// EventRetentionDays is the age cutoff for event pruning.
	EventRetentionDays = 30

	// MaxEventsPerUser caps the event log after the age pass.
	MaxEventsPerUser = 50000

	// MinFactScore is the score below which an inactive fact is prunable.
	MinFactScore = 0.2

	// FactInactivityDays is how long a weak fact must sit untouched before
	// pruning removes it.
	FactInactivityDays = 30

	// MaxFactsPerUser caps the fact table.
	MaxFactsPerUser = 600

	// MaxFactScore is the upper clamp for fact scores. Lower clamp is 0.
	MaxFactScore = 10.0

	// ConfidenceThreshold is the minimum score for a fact to appear in a
	// snapshot on its own merit.
	ConfidenceThreshold = 0.8

	// SnapshotMinLines and SnapshotMaxLines bound snapshot size. Below the
	// minimum the builder backfills from lower-ranked facts; it never
	// fabricates lines.
	SnapshotMinLines = 8
	SnapshotMaxLines = 16

	// MaxProfileLines is how many profile entries lead the snapshot.
	MaxProfileLines = 3

	// MaxFactsPerPrefix caps how many facts from one key-prefix group may
	// appear in a snapshot (diversity constraint).
	MaxFactsPerPrefix = 2

	// DecayFactorDays controls exponential down-weighting of events in
	// topic aggregation: weight * exp(-ageDays/DecayFactorDays).
	DecayFactorDays = 7.0

	// TopicEventSample is how many recent events feed topic aggregation.
	TopicEventSample = 100

	// TopTopics is how many decayed topics make the recent.topics line.
	TopTopics = 3
)
