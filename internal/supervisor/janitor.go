package supervisor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"mapsmith/internal/cache"
	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
)

// Janitor periodically sweeps the job store: finished jobs past the
// retention window are evicted together with their cache mirrors, and
// running records whose process has silently vanished are failed. Running
// jobs with a live process are never touched.
type Janitor struct {
	store     *jobs.Store
	cache     *cache.Cache
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
}

// NewJanitor constructs a janitor sweeping every interval and retaining
// terminal jobs for retention after completion.
func NewJanitor(store *jobs.Store, c *cache.Cache, logger *slog.Logger, interval, retention time.Duration) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Janitor{
		store:     store,
		cache:     c,
		logger:    logging.NewComponentLogger(logger, "janitor"),
		interval:  interval,
		retention: retention,
	}
}

// Run sweeps on a fixed interval until ctx ends.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(time.Now().UTC())
		}
	}
}

// Sweep performs one maintenance pass.
func (j *Janitor) Sweep(now time.Time) {
	evicted := 0
	for _, snap := range j.store.List() {
		switch {
		case snap.Status == jobs.StatusRunning:
			j.reapVanished(snap)
		case !snap.CompletedAt.IsZero() && now.Sub(snap.CompletedAt) > j.retention:
			j.store.Remove(snap.ID)
			if j.cache != nil {
				j.cache.DeleteJob(snap.ID)
			}
			evicted++
		}
	}
	if evicted > 0 {
		j.logger.Info("evicted finished jobs",
			logging.Int("count", evicted),
			logging.Duration("retention", j.retention))
	}
}

// reapVanished fails a running record whose process has exited without the
// collector ever finalizing it. This should not happen; the sweep exists so
// one missed finalization cannot leave a phantom running job forever.
func (j *Janitor) reapVanished(snap jobs.Snapshot) {
	proc, ok := j.store.Process(snap.ID)
	if !ok {
		return
	}
	if err := unix.Kill(proc.Pid, 0); err != unix.ESRCH {
		return
	}
	if _, applied := j.store.Finalize(snap.ID, jobs.StatusFailed, "worker exited without finalization", time.Now().UTC()); applied {
		j.logger.Warn("reaped vanished worker",
			logging.String(logging.FieldJobID, snap.ID),
			logging.Int("pid", proc.Pid))
	}
}
