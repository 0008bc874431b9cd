// Package memory is the behavioral memory core: it records user-action
// events, maintains scored facts, and distills both into a bounded context
// snapshot that the prompting layer prepends to outbound prompts.
package memory

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/store"
)

// Memory owns the store handle, the rebuild-trigger counter, and the
// per-user snapshot build locks. All operations run on the caller's
// goroutine except the threshold-triggered rebuild, which is detached.
type Memory struct {
	DB *store.DB

	// pending counts events appended since the last threshold-triggered
	// rebuild. Reset happens in the same compare-and-swap as the threshold
	// check so concurrent appends cannot double-trigger.
	pending atomic.Int64

	mu         sync.Mutex
	buildLocks map[string]*sync.Mutex
}

// New creates a Memory service over an open store.
func New(db *store.DB) *Memory {
	return &Memory{
		DB:         db,
		buildLocks: make(map[string]*sync.Mutex),
	}
}

func (m *Memory) buildLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.buildLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.buildLocks[userID] = l
	}
	return l
}

// Append records a user-action event. It is fire-and-forget: persistence
// failures are logged and swallowed so memory tracking can never break a
// feature flow. Crossing the rebuild threshold kicks off a detached
// snapshot rebuild; the caller holds no handle to it.
func (m *Memory) Append(e *store.Event) {
	if e.UserID == "" {
		e.UserID = config.DefaultUserID
	}
	if err := m.DB.InsertEvent(e); err != nil {
		log.Printf("append event user=%s type=%s: %v", e.UserID, e.Type, err)
		return
	}

	if n := m.pending.Add(1); n >= config.RebuildEventThreshold {
		if m.pending.CompareAndSwap(n, 0) {
			userID := e.UserID
			go func() {
				if _, err := m.Rebuild(userID); err != nil {
					log.Printf("background rebuild user=%s: %v", userID, err)
				}
			}()
		}
	}
}

// UpsertFact records an explicitly detected pattern: the value replaces the
// previous one, the score moves by scoreDelta and stays clamped to
// [0, MaxFactScore]. Like Append, failures are logged and swallowed.
func (m *Memory) UpsertFact(userID, key, value string, scoreDelta float64) {
	if err := m.DB.UpsertFact(userID, key, value, scoreDelta); err != nil {
		log.Printf("upsert fact user=%s key=%s: %v", userID, key, err)
	}
}

// RecentEvents returns the newest events for a user. A storage failure
// degrades to an empty list.
func (m *Memory) RecentEvents(userID string, limit int) []store.Event {
	events, err := m.DB.RecentEvents(userID, limit)
	if err != nil {
		log.Printf("recent events user=%s: %v", userID, err)
		return nil
	}
	return events
}

// Facts returns all facts for a user, strongest first. A storage failure
// degrades to an empty list.
func (m *Memory) Facts(userID string) []store.Fact {
	facts, err := m.DB.ListFacts(userID)
	if err != nil {
		log.Printf("list facts user=%s: %v", userID, err)
		return nil
	}
	return facts
}

// GetOrBuild returns the cached snapshot when it is younger than maxAge,
// otherwise rebuilds synchronously. This is the one read path whose failure
// propagates: the consumer explicitly needs to know a rebuild failed.
func (m *Memory) GetOrBuild(userID string, maxAge time.Duration) (*store.Snapshot, error) {
	snap, err := m.DB.GetSnapshot(userID)
	if err != nil {
		log.Printf("get snapshot user=%s: %v", userID, err)
	} else if snap != nil && snap.Age() < maxAge {
		return snap, nil
	}
	return m.Rebuild(userID)
}

// Rebuild unconditionally reconstructs the snapshot for a user and persists
// it as a full replacement at version previous+1. Builds for the same user
// are serialized; concurrent callers each still observe a strictly newer
// version.
func (m *Memory) Rebuild(userID string) (*store.Snapshot, error) {
	l := m.buildLock(userID)
	l.Lock()
	defer l.Unlock()

	lines := m.buildLines(userID)
	snap, err := m.DB.ReplaceSnapshot(userID, lines)
	if err != nil {
		return nil, fmt.Errorf("rebuild snapshot: %w", err)
	}
	return snap, nil
}

// RunMaintenance prunes the event log then the fact table and logs a
// summary. It is invoked by the host on its own schedule (startup,
// foreground, or a configured cron entry); the core never schedules itself.
func (m *Memory) RunMaintenance(userID string) error {
	events, eventsErr := m.DB.PruneEvents(userID)
	if eventsErr != nil {
		log.Printf("maintenance user=%s: prune events: %v", userID, eventsErr)
	}
	facts, factsErr := m.DB.PruneFacts(userID)
	if factsErr != nil {
		log.Printf("maintenance user=%s: prune facts: %v", userID, factsErr)
	}
	log.Printf("maintenance user=%s: removed %d events, %d facts", userID, events, facts)

	if eventsErr != nil {
		return fmt.Errorf("prune events: %w", eventsErr)
	}
	if factsErr != nil {
		return fmt.Errorf("prune facts: %w", factsErr)
	}
	return nil
}

// Forget erases all behavioral data for a user: every event, every fact,
// and the snapshot, in one transaction. Profile entries survive by
// contract. Unlike the rest of the write surface this error propagates —
// silent partial deletion would violate the erasure request.
func (m *Memory) Forget(userID string) error {
	if err := m.DB.Forget(userID); err != nil {
		log.Printf("forget user=%s: %v", userID, err)
		return err
	}
	m.pending.Store(0)
	return nil
}
