package jobs

import (
	"os"
	"sort"
	"sync"
	"time"

	"mapsmith/internal/progress"
)

// Store owns all per-job state behind a single mutex domain. Methods hold
// the lock only long enough to copy or mutate; nothing inside the critical
// section performs I/O.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
	hubs map[string]*Hub
}

// NewStore returns an empty job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		hubs: make(map[string]*Hub),
	}
}

// Add registers a new job and creates its output hub. The job must be in
// StatusRunning.
func (s *Store) Add(job *Job) *Hub {
	hub := NewHub(defaultHubCapacity)
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.hubs[job.ID] = hub
	s.mu.Unlock()
	return hub
}

// Restore inserts a job reconstructed from a cache snapshot. Restored jobs
// carry no process handle and no hub; they exist so status queries keep
// answering after an in-memory eviction.
func (s *Store) Restore(snap Snapshot) {
	job := &Job{
		ID:       snap.ID,
		Status:   snap.Status,
		Metadata: snap.Metadata,
		Progress: progress.State{
			Percent:    snap.Percent,
			Stage:      snap.Stage,
			Estimated:  snap.Estimated,
			LastUpdate: snap.LastUpdate,
		},
		ErrorMessage: snap.ErrorMessage,
		CompletedAt:  snap.CompletedAt,
	}
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.jobs[job.ID] = job
	}
	s.mu.Unlock()
}

// Snapshot returns a copy-safe view of one job.
func (s *Store) Snapshot(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(), true
}

// List returns snapshots of all jobs, newest first.
func (s *Store) List() []Snapshot {
	s.mu.Lock()
	out := make([]Snapshot, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.CreatedAt.After(out[j].Metadata.CreatedAt)
	})
	return out
}

// Len reports the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Process returns the job's process handle, if it still holds one.
func (s *Store) Process(id string) (*os.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Process == nil {
		return nil, false
	}
	return job.Process, true
}

// Hub returns the job's output hub.
func (s *Store) Hub(id string) (*Hub, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub, ok := s.hubs[id]
	return hub, ok
}

// AppendOutput records one line of worker output.
func (s *Store) AppendOutput(id, line string) {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		job.outputLog = append(job.outputLog, line)
	}
	s.mu.Unlock()
}

// OutputLog returns a copy of the job's output lines.
func (s *Store) OutputLog(id string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	out := make([]string, len(job.outputLog))
	copy(out, job.outputLog)
	return out, true
}

// ProgressState returns the job's current progress state.
func (s *Store) ProgressState(id string) (progress.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return progress.State{}, false
	}
	return job.Progress, true
}

// SetProgress replaces the job's progress state while it is running.
func (s *Store) SetProgress(id string, state progress.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	job.Progress = state
	return true
}

// Finalize moves a running job to a terminal status, releasing the process
// handle and stamping CompletedAt exactly once. The returned bool reports
// whether this call performed the transition; losers of a cancel/completion
// race see false.
func (s *Store) Finalize(id string, status Status, errorMessage string, now time.Time) (Snapshot, bool) {
	if !status.Terminal() {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		if ok {
			return job.snapshot(), false
		}
		return Snapshot{}, false
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	job.CompletedAt = now
	job.Process = nil
	if status == StatusCompleted {
		job.Progress.Percent = 100
		job.Progress.Stage = "completed"
		job.Progress.Estimated = false
		job.Progress.LastUpdate = now
	}
	return job.snapshot(), true
}

// Remove deletes a job and closes its hub. It reports whether the job
// existed and returns its last snapshot.
func (s *Store) Remove(id string) (Snapshot, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	var snap Snapshot
	if ok {
		snap = job.snapshot()
		delete(s.jobs, id)
	}
	hub := s.hubs[id]
	delete(s.hubs, id)
	s.mu.Unlock()
	if hub != nil {
		hub.Close()
	}
	return snap, ok
}
