package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"mapsmith/internal/cache"
	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
	"mapsmith/internal/progress"
)

var commandContext = exec.CommandContext

const defaultCancelGrace = 5 * time.Second

// Options configures a Supervisor.
type Options struct {
	Estimator   *progress.Estimator
	Cache       *cache.Cache
	Logger      *slog.Logger
	CancelGrace time.Duration
	ProgressTTL time.Duration
	MetadataTTL time.Duration
	FilesTTL    time.Duration
}

// Supervisor launches generation workers and tracks their lifecycle. One
// collector goroutine per job owns the only read of the worker's output
// stream; everything else observes through the store and per-job hubs.
type Supervisor struct {
	store  *jobs.Store
	est    *progress.Estimator
	cache  *cache.Cache
	logger *slog.Logger

	cancelGrace time.Duration
	progressTTL time.Duration
	metadataTTL time.Duration
	filesTTL    time.Duration
}

// New constructs a Supervisor over the given store.
func New(store *jobs.Store, opts Options) *Supervisor {
	est := opts.Estimator
	if est == nil {
		est = progress.NewEstimator(progress.DefaultTable(), progress.DefaultTuning())
	}
	grace := opts.CancelGrace
	if grace <= 0 {
		grace = defaultCancelGrace
	}
	ttl := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}
	return &Supervisor{
		store:       store,
		est:         est,
		cache:       opts.Cache,
		logger:      logging.NewComponentLogger(opts.Logger, "supervisor"),
		cancelGrace: grace,
		progressTTL: ttl(opts.ProgressTTL, 2*time.Hour),
		metadataTTL: ttl(opts.MetadataTTL, 2*time.Hour),
		filesTTL:    ttl(opts.FilesTTL, time.Hour),
	}
}

// SpawnRequest carries the fully built worker command line plus the
// metadata recorded on the job. The supervisor never interprets Command.
// ID is optional; when empty a fresh UUID is assigned.
type SpawnRequest struct {
	ID            string
	Command       []string
	WorkDir       string
	AudioPath     string
	AudioFilename string
	OutputDir     string
	Params        map[string]string
}

// Spawn starts a worker process and begins collecting its output. A process
// that cannot be started is reported synchronously as a LaunchError and no
// job is created.
func (s *Supervisor) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	if len(req.Command) == 0 {
		return "", &LaunchError{Err: fmt.Errorf("empty command")}
	}
	if strings.TrimSpace(req.WorkDir) != "" {
		info, err := os.Stat(req.WorkDir)
		if err != nil {
			return "", &LaunchError{Err: fmt.Errorf("working directory: %w", err)}
		}
		if !info.IsDir() {
			return "", &LaunchError{Err: fmt.Errorf("working directory %q is not a directory", req.WorkDir)}
		}
	}

	// The job outlives the spawning request, so the process is not bound to
	// the request context.
	cmd := commandContext(context.Background(), req.Command[0], req.Command[1:]...) //nolint:gosec
	cmd.Dir = req.WorkDir
	// Own process group so cancellation can signal the worker and any
	// children it forks in one shot.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &LaunchError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", &LaunchError{Err: err}
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	job := &jobs.Job{
		ID:      id,
		Process: cmd.Process,
		Status:  jobs.StatusRunning,
		Metadata: jobs.Metadata{
			AudioPath:     req.AudioPath,
			AudioFilename: req.AudioFilename,
			OutputDir:     req.OutputDir,
			Command:       append([]string(nil), req.Command...),
			Params:        req.Params,
			CreatedAt:     now,
		},
		Progress: progress.State{Stage: "initializing", LastUpdate: now},
	}
	hub := s.store.Add(job)
	s.mirrorProgress(job.ID)
	s.mirrorMetadata(job.ID)

	go s.collect(job.ID, cmd, stdout, hub, now)

	s.logger.Info("worker started",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("audio", req.AudioFilename))
	return job.ID, nil
}

// CancelResult describes the outcome of a cancel request.
type CancelResult string

const (
	CancelResultCancelled       CancelResult = "cancelled"
	CancelResultAlreadyFinished CancelResult = "already_finished"
)

// Cancel requests termination of a running job: SIGTERM to the worker's
// process group, a grace period, then SIGKILL. The cancelled status is
// recorded before signalling, so a simultaneous natural exit cannot
// overwrite it; signalling an already-exited process is a tolerated no-op.
func (s *Supervisor) Cancel(id string) (CancelResult, error) {
	snap, ok := s.store.Snapshot(id)
	if !ok {
		return "", jobs.ErrNotFound
	}
	if snap.Status.Terminal() {
		return CancelResultAlreadyFinished, nil
	}

	proc, hasProc := s.store.Process(id)

	if _, applied := s.store.Finalize(id, jobs.StatusCancelled, "cancelled by request", time.Now().UTC()); !applied {
		// The collector finalized first; the job is already terminal.
		return CancelResultAlreadyFinished, nil
	}
	s.mirrorProgress(id)

	if hub, ok := s.store.Hub(id); ok {
		state, _ := s.store.ProgressState(id)
		hub.Publish(jobs.Event{Type: jobs.EventError, Line: "job cancelled", Percent: state.Percent, Stage: state.Stage})
	}

	if hasProc {
		signalGroup(proc.Pid, unix.SIGTERM)
		if !waitForExit(proc.Pid, s.cancelGrace) {
			signalGroup(proc.Pid, unix.SIGKILL)
		}
	}

	s.logger.Info("job cancelled", logging.String(logging.FieldJobID, id))
	return CancelResultCancelled, nil
}

// Delete removes all trace of a job, forcefully terminating it first if it
// is still running. Artifacts and the staged audio file are removed along
// with the record. Deleting an unknown job is a no-op.
func (s *Supervisor) Delete(id string) {
	if proc, ok := s.store.Process(id); ok {
		signalGroup(proc.Pid, unix.SIGKILL)
	}
	if snap, existed := s.store.Remove(id); existed {
		if snap.Metadata.AudioPath != "" {
			_ = os.Remove(snap.Metadata.AudioPath)
		}
		if snap.Metadata.OutputDir != "" {
			_ = os.RemoveAll(snap.Metadata.OutputDir)
		}
		s.logger.Info("job deleted", logging.String(logging.FieldJobID, id))
	}
	if s.cache != nil {
		s.cache.DeleteJob(id)
	}
}

// StatusReport is the caller-facing summary of one job.
type StatusReport struct {
	ID          string       `json:"job_id"`
	Status      jobs.Status  `json:"status"`
	Message     string       `json:"message,omitempty"`
	Percent     float64      `json:"progress"`
	Stage       string       `json:"stage"`
	OutputFiles []OutputFile `json:"output_files,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Status reports a job's lifecycle state, progress, and (for completed jobs)
// its output files. Jobs absent from memory are transparently recovered from
// the cache before NotFound is reported.
func (s *Supervisor) Status(id string) (StatusReport, error) {
	snap, ok := s.lookup(id)
	if !ok {
		return StatusReport{}, jobs.ErrNotFound
	}
	report := StatusReport{
		ID:      snap.ID,
		Status:  snap.Status,
		Percent: snap.Percent,
		Stage:   snap.Stage,
		Error:   snap.ErrorMessage,
	}
	switch snap.Status {
	case jobs.StatusRunning:
		report.Message = fmt.Sprintf("processing (%s)", progress.Label(snap.Stage))
	case jobs.StatusCompleted:
		report.Message = "processing complete"
		report.OutputFiles, _ = s.OutputFiles(id)
	case jobs.StatusCancelled:
		report.Message = "cancelled"
	case jobs.StatusFailed:
		report.Message = "processing failed"
	}
	return report, nil
}

// ProgressReport is the detailed progress view of one job.
type ProgressReport struct {
	ID         string      `json:"job_id"`
	Percent    float64     `json:"progress"`
	Stage      string      `json:"stage"`
	Estimated  bool        `json:"estimated"`
	LastUpdate time.Time   `json:"last_update"`
	Status     jobs.Status `json:"status"`
}

// Progress reports a job's current progress state, with the same cache
// fallback as Status.
func (s *Supervisor) Progress(id string) (ProgressReport, error) {
	snap, ok := s.lookup(id)
	if !ok {
		return ProgressReport{}, jobs.ErrNotFound
	}
	return ProgressReport{
		ID:         snap.ID,
		Percent:    snap.Percent,
		Stage:      snap.Stage,
		Estimated:  snap.Estimated,
		LastUpdate: snap.LastUpdate,
		Status:     snap.Status,
	}, nil
}

// List returns summaries of all tracked jobs, newest first.
func (s *Supervisor) List() []jobs.Snapshot {
	return s.store.List()
}

// Events returns the job's output hub for streaming consumption.
func (s *Supervisor) Events(id string) (*jobs.Hub, error) {
	hub, ok := s.store.Hub(id)
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return hub, nil
}

// OutputLog returns the lines collected from the worker so far.
func (s *Supervisor) OutputLog(id string) ([]string, error) {
	log, ok := s.store.OutputLog(id)
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return log, nil
}

// OutputFile describes one artifact in a job's output directory.
type OutputFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// OutputFiles lists the job's output directory, falling back to the cached
// listing when the directory is gone, and refreshing the cache when it is
// not.
func (s *Supervisor) OutputFiles(id string) ([]OutputFile, error) {
	snap, ok := s.lookup(id)
	if !ok {
		return nil, jobs.ErrNotFound
	}

	var cached []OutputFile
	if s.cache != nil {
		s.cache.Get(cache.FilesKey(id), &cached)
	}

	entries, err := os.ReadDir(snap.Metadata.OutputDir)
	if err != nil {
		return cached, nil
	}
	files := make([]OutputFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, OutputFile{Name: entry.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	if len(files) > 0 && s.cache != nil {
		s.cache.Put(cache.FilesKey(id), files, s.filesTTL)
	}
	if len(files) == 0 {
		return cached, nil
	}
	return files, nil
}

// OutputDir returns the job's output directory.
func (s *Supervisor) OutputDir(id string) (string, bool) {
	snap, ok := s.lookup(id)
	if !ok || snap.Metadata.OutputDir == "" {
		return "", false
	}
	return snap.Metadata.OutputDir, true
}

// lookup finds a job in memory, recovering it from the cache mirror when
// absent.
func (s *Supervisor) lookup(id string) (jobs.Snapshot, bool) {
	if snap, ok := s.store.Snapshot(id); ok {
		return snap, true
	}
	if s.cache == nil {
		return jobs.Snapshot{}, false
	}
	var snap jobs.Snapshot
	if !s.cache.Get(cache.ProgressKey(id), &snap) || snap.ID == "" {
		return jobs.Snapshot{}, false
	}
	s.store.Restore(snap)
	return s.store.Snapshot(id)
}

func (s *Supervisor) mirrorProgress(id string) {
	if s.cache == nil {
		return
	}
	if snap, ok := s.store.Snapshot(id); ok {
		s.cache.Put(cache.ProgressKey(id), snap, s.progressTTL)
	}
}

func (s *Supervisor) mirrorMetadata(id string) {
	if s.cache == nil {
		return
	}
	if snap, ok := s.store.Snapshot(id); ok {
		s.cache.Put(cache.MetadataKey(id), snap.Metadata, s.metadataTTL)
	}
}

// signalGroup delivers sig to the worker's whole process group. ESRCH means
// the group is already gone, which callers treat as success.
func signalGroup(pid int, sig unix.Signal) {
	_ = unix.Kill(-pid, sig)
}

// waitForExit polls for process-group departure for up to grace.
func waitForExit(pid int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := unix.Kill(pid, 0); err != nil {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return unix.Kill(pid, 0) != nil
}
