package store

import (
	"testing"
)

func TestReplaceSnapshotVersioning(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	first, err := db.ReplaceSnapshot("u1", []string{"a"})
	if err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}
	if first.Version != 1 {
		t.Errorf("first version = %d, want 1", first.Version)
	}

	second, err := db.ReplaceSnapshot("u1", []string{"b", "c"})
	if err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("second version = %d, want 2", second.Version)
	}

	// Row is fully replaced, not appended.
	snap, err := db.GetSnapshot("u1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.Lines) != 2 || snap.Lines[0] != "b" {
		t.Errorf("lines = %v, want [b c]", snap.Lines)
	}
}

func TestGetSnapshotMissing(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	snap, err := db.GetSnapshot("nobody")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap != nil {
		t.Errorf("got %+v, want nil", snap)
	}
}

func TestGetSnapshotCorruptLines(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`
		INSERT INTO snapshots (user_id, version, built_utc, lines_json)
		VALUES ('u1', 3, 0, 'not json')
	`); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	snap, err := db.GetSnapshot("u1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("snapshot missing")
	}
	if len(snap.Lines) != 0 {
		t.Errorf("lines = %v, want empty", snap.Lines)
	}
	if snap.Version != 3 {
		t.Errorf("version = %d, want 3", snap.Version)
	}
}

func TestSnapshotAsText(t *testing.T) {
	s := &Snapshot{Lines: []string{"tone: casual", "recent.topics=exercise"}}
	want := "tone: casual\nrecent.topics=exercise"
	if got := s.AsText(); got != want {
		t.Errorf("AsText = %q, want %q", got, want)
	}

	empty := &Snapshot{}
	if got := empty.AsText(); got != "" {
		t.Errorf("empty AsText = %q, want empty string", got)
	}
}

func TestForget(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	db.InsertEvent(&Event{UserID: "u1", Type: "a", Weight: 1, AtUTC: 1})
	db.UpsertFact("u1", "k", "v", 1)
	db.ReplaceSnapshot("u1", []string{"line"})
	db.SetProfile("u1", "tone", "casual")

	if err := db.Forget("u1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	if count, _ := db.CountEvents("u1"); count != 0 {
		t.Errorf("events remain: %d", count)
	}
	if count, _ := db.CountFacts("u1"); count != 0 {
		t.Errorf("facts remain: %d", count)
	}
	if snap, _ := db.GetSnapshot("u1"); snap != nil {
		t.Error("snapshot remains")
	}

	// Profile is an explicit setting and survives by contract.
	value, err := db.GetProfileValue("u1", "tone")
	if err != nil {
		t.Fatalf("GetProfileValue: %v", err)
	}
	if value != "casual" {
		t.Errorf("profile value = %q, want casual", value)
	}
}

func TestForgetScopedToUser(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	db.InsertEvent(&Event{UserID: "u1", Type: "a", Weight: 1, AtUTC: 1})
	db.InsertEvent(&Event{UserID: "u2", Type: "b", Weight: 1, AtUTC: 2})

	if err := db.Forget("u1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	if count, _ := db.CountEvents("u2"); count != 1 {
		t.Errorf("u2 events = %d, want 1", count)
	}
}
