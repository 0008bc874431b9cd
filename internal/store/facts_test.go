package store

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/config"
)

func TestUpsertFactCreates(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.UpsertFact("u1", "prefers.morning_exercise", "yes", 0.5); err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}

	f, err := db.GetFact("u1", "prefers.morning_exercise")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if f == nil {
		t.Fatal("fact not found")
	}
	if f.Value != "yes" {
		t.Errorf("Value = %q, want yes", f.Value)
	}
	if f.Score != 0.5 {
		t.Errorf("Score = %v, want 0.5", f.Score)
	}
}

func TestUpsertFactKeyIdentity(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	// Scenario: frequently at +0.9, then rarely at -0.5. The second write
	// overwrites value and nets the score to 0.4 — never a second row.
	db.UpsertFact("u1", "habit.uses_voice", "frequently", 0.9)
	db.UpsertFact("u1", "habit.uses_voice", "rarely", -0.5)

	count, err := db.CountFacts("u1")
	if err != nil {
		t.Fatalf("CountFacts: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	f, _ := db.GetFact("u1", "habit.uses_voice")
	if f.Value != "rarely" {
		t.Errorf("Value = %q, want rarely", f.Value)
	}
	if math.Abs(f.Score-0.4) > 1e-9 {
		t.Errorf("Score = %v, want 0.4", f.Score)
	}
}

func TestUpsertFactScoreClamping(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	deltas := []float64{5, 8, -30, 2.5, 100, -1}
	for _, d := range deltas {
		if err := db.UpsertFact("u1", "k", "v", d); err != nil {
			t.Fatalf("UpsertFact delta=%v: %v", d, err)
		}
		f, _ := db.GetFact("u1", "k")
		if f.Score < 0 || f.Score > config.MaxFactScore {
			t.Fatalf("after delta %v: score %v out of [0,%v]", d, f.Score, config.MaxFactScore)
		}
	}

	// 5+8 clamps at 10, -30 floors at 0, +2.5 → 2.5, +100 clamps at 10, -1 → 9
	f, _ := db.GetFact("u1", "k")
	if f.Score != 9 {
		t.Errorf("final score = %v, want 9", f.Score)
	}
}

func TestUpsertFactNegativeFirstWrite(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	// A fresh fact starts from 0, so a negative initial delta floors at 0.
	db.UpsertFact("u1", "k", "v", -0.7)
	f, _ := db.GetFact("u1", "k")
	if f.Score != 0 {
		t.Errorf("score = %v, want 0", f.Score)
	}
}

func TestListFactsOrder(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	db.UpsertFact("u1", "low", "v", 0.2)
	db.UpsertFact("u1", "high", "v", 0.9)
	db.UpsertFact("u1", "mid", "v", 0.5)

	facts, err := db.ListFacts("u1")
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("got %d facts, want 3", len(facts))
	}
	if facts[0].Key != "high" || facts[1].Key != "mid" || facts[2].Key != "low" {
		t.Errorf("order = %s,%s,%s, want high,mid,low", facts[0].Key, facts[1].Key, facts[2].Key)
	}
}

func TestListHighConfidenceFacts(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	db.UpsertFact("u1", "strong", "v", 0.9)
	db.UpsertFact("u1", "weak", "v", 0.3)
	db.UpsertFact("u1", "borderline", "v", 0.8)

	facts, err := db.ListHighConfidenceFacts("u1", config.ConfidenceThreshold)
	if err != nil {
		t.Fatalf("ListHighConfidenceFacts: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2", len(facts))
	}
	for _, f := range facts {
		if f.Score < config.ConfidenceThreshold {
			t.Errorf("fact %s score %v below threshold", f.Key, f.Score)
		}
	}
}

func TestPruneFacts(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	db.UpsertFact("u1", "weak.stale", "v", 0.1)
	db.UpsertFact("u1", "weak.fresh", "v", 0.1)
	db.UpsertFact("u1", "strong.stale", "v", 5)

	// Age two of them past the inactivity window.
	stale := time.Now().AddDate(0, 0, -(config.FactInactivityDays + 5)).UnixMilli()
	for _, key := range []string{"weak.stale", "strong.stale"} {
		if _, err := db.Exec(
			"UPDATE facts SET updated_utc = ? WHERE user_id = ? AND key = ?",
			stale, "u1", key,
		); err != nil {
			t.Fatalf("age fact %s: %v", key, err)
		}
	}

	removed, err := db.PruneFacts("u1")
	if err != nil {
		t.Fatalf("PruneFacts: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	// Only weak+stale goes: weak.fresh is inside the window, strong.stale
	// is above the score floor.
	if f, _ := db.GetFact("u1", "weak.stale"); f != nil {
		t.Error("weak.stale survived prune")
	}
	if f, _ := db.GetFact("u1", "weak.fresh"); f == nil {
		t.Error("weak.fresh was pruned")
	}
	if f, _ := db.GetFact("u1", "strong.stale"); f == nil {
		t.Error("strong.stale was pruned")
	}
}

func TestPruneFactsCap(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	// Scores 0.1..0.6: the cap keeps the strongest and evicts from the
	// bottom of the score order.
	for i := 1; i <= 6; i++ {
		key := fmt.Sprintf("fact.f%d", i)
		if err := db.UpsertFact("u1", key, "v", float64(i)/10); err != nil {
			t.Fatalf("UpsertFact %s: %v", key, err)
		}
	}

	removed, err := db.pruneFactsCap("u1", 4)
	if err != nil {
		t.Fatalf("pruneFactsCap: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	facts, _ := db.ListFacts("u1")
	if len(facts) != 4 {
		t.Fatalf("got %d facts after cap, want 4", len(facts))
	}
	for _, f := range facts {
		if f.Key == "fact.f1" || f.Key == "fact.f2" {
			t.Errorf("lowest-score fact %s survived the cap", f.Key)
		}
	}
}

func TestPruneFactsCapTieBreaksOnRecency(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	// Equal scores: the oldest row is the victim.
	for i, key := range []string{"a.k", "b.k", "c.k"} {
		if err := db.UpsertFact("u1", key, "v", 0.5); err != nil {
			t.Fatalf("UpsertFact %s: %v", key, err)
		}
		if _, err := db.Exec(
			"UPDATE facts SET updated_utc = ? WHERE user_id = ? AND key = ?",
			int64(1000+i), "u1", key,
		); err != nil {
			t.Fatalf("age fact %s: %v", key, err)
		}
	}

	if _, err := db.pruneFactsCap("u1", 2); err != nil {
		t.Fatalf("pruneFactsCap: %v", err)
	}

	if f, _ := db.GetFact("u1", "a.k"); f != nil {
		t.Error("oldest fact a.k survived the cap")
	}
	if f, _ := db.GetFact("u1", "c.k"); f == nil {
		t.Error("newest fact c.k was evicted")
	}
}

func TestGetFactMissing(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	f, err := db.GetFact("u1", "nope")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if f != nil {
		t.Errorf("got %+v, want nil", f)
	}
}
