package supervisor

import (
	"os/exec"
	"testing"
	"time"

	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
	"mapsmith/internal/progress"
)

func addJob(t *testing.T, store *jobs.Store, id string, createdAt time.Time) {
	t.Helper()
	store.Add(&jobs.Job{
		ID:       id,
		Status:   jobs.StatusRunning,
		Metadata: jobs.Metadata{AudioFilename: id + ".mp3", CreatedAt: createdAt},
		Progress: progress.State{Stage: "initializing", LastUpdate: createdAt},
	})
}

func TestSweepEvictsExpiredTerminalJobs(t *testing.T) {
	store := jobs.NewStore()
	now := time.Now().UTC()

	addJob(t, store, "old", now.Add(-3*time.Hour))
	store.Finalize("old", jobs.StatusCompleted, "", now.Add(-2*time.Hour))

	addJob(t, store, "recent", now.Add(-10*time.Minute))
	store.Finalize("recent", jobs.StatusFailed, "process exited with code 1", now.Add(-5*time.Minute))

	janitor := NewJanitor(store, nil, logging.NewNop(), time.Minute, time.Hour)
	janitor.Sweep(now)

	if _, ok := store.Snapshot("old"); ok {
		t.Fatalf("expired job must be evicted")
	}
	if _, ok := store.Snapshot("recent"); !ok {
		t.Fatalf("job inside the retention window must survive")
	}
}

func TestSweepNeverTouchesRunningJobs(t *testing.T) {
	store := jobs.NewStore()
	// A running job without a process handle, however old, stays.
	addJob(t, store, "running", time.Now().UTC().Add(-24*time.Hour))

	janitor := NewJanitor(store, nil, logging.NewNop(), time.Minute, time.Hour)
	janitor.Sweep(time.Now().UTC())

	snap, ok := store.Snapshot("running")
	if !ok || snap.Status != jobs.StatusRunning {
		t.Fatalf("running job must survive the sweep, got %+v ok=%v", snap, ok)
	}
}

func TestSweepReapsVanishedWorker(t *testing.T) {
	store := jobs.NewStore()

	// A process that exits immediately and is reaped, leaving a stale pid on
	// a record still marked running.
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	proc := cmd.Process
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	now := time.Now().UTC()
	store.Add(&jobs.Job{
		ID:       "phantom",
		Process:  proc,
		Status:   jobs.StatusRunning,
		Metadata: jobs.Metadata{CreatedAt: now},
		Progress: progress.State{Stage: "generating", LastUpdate: now},
	})

	janitor := NewJanitor(store, nil, logging.NewNop(), time.Minute, time.Hour)
	janitor.Sweep(now)

	snap, ok := store.Snapshot("phantom")
	if !ok {
		t.Fatalf("reaped job must remain until retention expires")
	}
	if snap.Status != jobs.StatusFailed {
		t.Fatalf("expected failed after reap, got %s", snap.Status)
	}
}
