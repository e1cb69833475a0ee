package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"mapsmith/internal/cache"
	"mapsmith/internal/config"
	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
	"mapsmith/internal/progress"
	"mapsmith/internal/supervisor"
)

// Daemon owns the long-running pieces: the job store, the supervisor, the
// cache mirror, the janitor, and the HTTP API. Exactly one daemon instance
// runs per lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store *jobs.Store
	cache *cache.Cache
	sup   *supervisor.Supervisor
	jan   *supervisor.Janitor
	api   *apiServer

	lockPath string
	lock     *flock.Flock

	mu            sync.Mutex
	started       bool
	cancelJanitor context.CancelFunc
}

// New wires a daemon from configuration. The cache probe happens here;
// an unavailable cache logs a warning and the daemon runs without it.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	var jobCache *cache.Cache
	if cfg.Cache.Enabled {
		jobCache = cache.Open(cfg.Cache.Path, logger)
	}

	store := jobs.NewStore()
	est := progress.NewEstimator(progress.DefaultTable(), progress.Tuning{
		Quiescence:   time.Duration(cfg.Progress.QuiescenceSeconds) * time.Second,
		AssumedTotal: time.Duration(cfg.Progress.AssumedTotalSeconds) * time.Second,
		MaxEstimated: cfg.Progress.MaxEstimatedPercent,
	})
	sup := supervisor.New(store, supervisor.Options{
		Estimator:   est,
		Cache:       jobCache,
		Logger:      logger,
		ProgressTTL: time.Duration(cfg.Cache.ProgressTTLSeconds) * time.Second,
		MetadataTTL: time.Duration(cfg.Cache.MetadataTTLSeconds) * time.Second,
		FilesTTL:    time.Duration(cfg.Cache.FilesTTLSeconds) * time.Second,
	})
	jan := supervisor.NewJanitor(store, jobCache, logger,
		time.Duration(cfg.Janitor.IntervalSeconds)*time.Second,
		time.Duration(cfg.Janitor.RetentionSeconds)*time.Second)

	lockPath := filepath.Join(cfg.Paths.LogDir, "mapsmithd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		cache:    jobCache,
		sup:      sup,
		jan:      jan,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the single-instance lock, starts the API server, and
// launches the janitor. It returns once the daemon is serving.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("daemon already started")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another instance holds %s", d.lockPath)
	}

	if err := d.api.start(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	janitorCtx, cancel := context.WithCancel(context.Background())
	d.cancelJanitor = cancel
	go d.jan.Run(janitorCtx)

	d.started = true
	d.logger.Info("daemon started",
		logging.Int("pid", os.Getpid()),
		logging.String("lock", d.lockPath),
		logging.Bool("cache", d.cache.Active()))
	return nil
}

// Stop shuts down the API server, stops the janitor, closes the cache, and
// releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	d.api.stop()
	if d.cancelJanitor != nil {
		d.cancelJanitor()
		d.cancelJanitor = nil
	}
	if err := d.cache.Close(); err != nil {
		d.logger.Warn("cache close failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.started = false
	d.logger.Info("daemon stopped")
}

// APIAddr returns the bound API listen address, once Start has succeeded.
// Useful when the configured bind uses port 0.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Supervisor exposes the job supervisor for the API layer.
func (d *Daemon) Supervisor() *supervisor.Supervisor {
	return d.sup
}

// JobCounts tallies tracked jobs by status.
func (d *Daemon) JobCounts() map[string]int {
	counts := make(map[string]int)
	for _, snap := range d.store.List() {
		counts[string(snap.Status)]++
	}
	return counts
}

// CacheActive reports whether the startup cache probe succeeded.
func (d *Daemon) CacheActive() bool {
	return d.cache.Active()
}

// LockFilePath returns the path of the single-instance lock file.
func (d *Daemon) LockFilePath() string {
	return d.lockPath
}
