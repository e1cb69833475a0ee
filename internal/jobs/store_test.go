package jobs

import (
	"testing"
	"time"

	"mapsmith/internal/progress"
)

func newRunningJob(id string) *Job {
	return &Job{
		ID:     id,
		Status: StatusRunning,
		Metadata: Metadata{
			AudioPath: "/audio/" + id + ".mp3",
			OutputDir: "/outputs/" + id,
			CreatedAt: time.Now().UTC(),
		},
		Progress: progress.State{Stage: "initializing"},
	}
}

func TestStoreAddAndSnapshot(t *testing.T) {
	store := NewStore()
	job := newRunningJob("a")
	if hub := store.Add(job); hub == nil {
		t.Fatal("Add must create an output hub")
	}

	snap, ok := store.Snapshot("a")
	if !ok {
		t.Fatal("expected snapshot for stored job")
	}
	if snap.Status != StatusRunning {
		t.Fatalf("expected running, got %q", snap.Status)
	}
	if snap.Stage != "initializing" {
		t.Fatalf("expected initializing stage, got %q", snap.Stage)
	}

	if _, ok := store.Snapshot("missing"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestStoreFinalizeCompletedForcesFullProgress(t *testing.T) {
	store := NewStore()
	store.Add(newRunningJob("a"))

	now := time.Now().UTC()
	snap, applied := store.Finalize("a", StatusCompleted, "", now)
	if !applied {
		t.Fatal("expected finalize to apply")
	}
	if snap.Status != StatusCompleted || snap.Percent != 100 {
		t.Fatalf("expected completed at 100%%, got %q %v", snap.Status, snap.Percent)
	}
	if snap.CompletedAt != now {
		t.Fatalf("expected CompletedAt %v, got %v", now, snap.CompletedAt)
	}

	// Repeated status reads observe the same terminal state.
	for i := 0; i < 3; i++ {
		again, ok := store.Snapshot("a")
		if !ok || again.Status != StatusCompleted || again.Percent != 100 {
			t.Fatalf("terminal state not stable on read %d: %+v", i, again)
		}
	}
}

func TestStoreFinalizeRaceLoserReportsFalse(t *testing.T) {
	store := NewStore()
	store.Add(newRunningJob("a"))

	now := time.Now().UTC()
	if _, applied := store.Finalize("a", StatusCompleted, "", now); !applied {
		t.Fatal("first finalize must win")
	}
	snap, applied := store.Finalize("a", StatusCancelled, "", now.Add(time.Second))
	if applied {
		t.Fatal("second finalize must lose the race")
	}
	if snap.Status != StatusCompleted {
		t.Fatalf("losing finalize must not alter status, got %q", snap.Status)
	}
	if snap.CompletedAt != now {
		t.Fatal("CompletedAt must be stamped exactly once")
	}
}

func TestStoreFinalizeRejectsNonTerminal(t *testing.T) {
	store := NewStore()
	store.Add(newRunningJob("a"))
	if _, applied := store.Finalize("a", StatusRunning, "", time.Now()); applied {
		t.Fatal("finalize must reject non-terminal targets")
	}
}

func TestStoreSetProgressIgnoredAfterTerminal(t *testing.T) {
	store := NewStore()
	store.Add(newRunningJob("a"))
	store.Finalize("a", StatusFailed, "exit code 1", time.Now().UTC())

	if store.SetProgress("a", progress.State{Percent: 10}) {
		t.Fatal("progress writes must be rejected after a terminal transition")
	}
	snap, _ := store.Snapshot("a")
	if snap.ErrorMessage != "exit code 1" {
		t.Fatalf("expected preserved error message, got %q", snap.ErrorMessage)
	}
}

func TestStoreOutputLogIsCopied(t *testing.T) {
	store := NewStore()
	store.Add(newRunningJob("a"))
	store.AppendOutput("a", "line one")
	store.AppendOutput("a", "line two")

	log, ok := store.OutputLog("a")
	if !ok || len(log) != 2 {
		t.Fatalf("expected two lines, got %v", log)
	}
	log[0] = "mutated"
	fresh, _ := store.OutputLog("a")
	if fresh[0] != "line one" {
		t.Fatal("OutputLog must return a copy")
	}
}

func TestStoreRemove(t *testing.T) {
	store := NewStore()
	store.Add(newRunningJob("a"))

	if _, ok := store.Remove("a"); !ok {
		t.Fatal("expected removal of existing job")
	}
	if _, ok := store.Snapshot("a"); ok {
		t.Fatal("job still visible after removal")
	}
	// Removing again is a no-op.
	if _, ok := store.Remove("a"); ok {
		t.Fatal("expected idempotent removal")
	}
}

func TestStoreRestoreFromSnapshot(t *testing.T) {
	store := NewStore()
	store.Restore(Snapshot{
		ID:      "ghost",
		Status:  StatusCompleted,
		Percent: 100,
		Stage:   "completed",
	})

	snap, ok := store.Snapshot("ghost")
	if !ok {
		t.Fatal("expected restored job to be queryable")
	}
	if snap.Status != StatusCompleted || snap.Percent != 100 {
		t.Fatalf("unexpected restored state: %+v", snap)
	}
	if _, ok := store.Process("ghost"); ok {
		t.Fatal("restored jobs must not carry a process handle")
	}
	if _, ok := store.Hub("ghost"); ok {
		t.Fatal("restored jobs must not carry a hub")
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store := NewStore()
	older := newRunningJob("older")
	older.Metadata.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newRunningJob("newer")
	newer.Metadata.CreatedAt = time.Now().UTC()
	store.Add(older)
	store.Add(newer)

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected two jobs, got %d", len(list))
	}
	if list[0].ID != "newer" {
		t.Fatalf("expected newest first, got %q", list[0].ID)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Fatal("running is not terminal")
	}
	for _, status := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("%q must be terminal", status)
		}
	}
}
