package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mapsmith/internal/logging"
)

// Key prefixes for the mirrored job state.
const (
	progressKeyPrefix = "progress:"
	metadataKeyPrefix = "metadata:"
	filesKeyPrefix    = "files:"
)

func ProgressKey(jobID string) string { return progressKeyPrefix + jobID }

func MetadataKey(jobID string) string { return metadataKeyPrefix + jobID }

func FilesKey(jobID string) string { return filesKeyPrefix + jobID }

// Cache is a best-effort mirror of job state. A single probe at Open decides
// whether it is active for the process lifetime; every operation on an
// unavailable cache degrades to a miss or no-op, never an error. The
// in-memory job store remains authoritative throughout.
type Cache struct {
	logger *slog.Logger
	db     *sql.DB
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    expires_at INTEGER NOT NULL
)`

// Open connects to the cache database at path. An empty path, or any failure
// to open, migrate, or probe the database, yields a disabled cache; the
// daemon runs correctly either way.
func Open(path string, logger *slog.Logger) *Cache {
	logger = logging.NewComponentLogger(logger, "cache")
	c := &Cache{logger: logger, path: strings.TrimSpace(path)}
	if c.path == "" {
		logger.Info("cache disabled: no path configured")
		return c
	}

	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		logger.Warn("cache disabled: open failed", logging.Error(err), logging.String("path", c.path))
		return c
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			logger.Warn("cache disabled: pragma failed", logging.Error(execErr))
			_ = db.Close()
			return c
		}
	}
	if _, err := db.Exec(schema); err != nil {
		logger.Warn("cache disabled: schema failed", logging.Error(err))
		_ = db.Close()
		return c
	}
	if err := db.Ping(); err != nil {
		logger.Warn("cache disabled: probe failed", logging.Error(err))
		_ = db.Close()
		return c
	}

	c.db = db
	logger.Info("cache active", logging.String("path", c.path))
	return c
}

// Active reports whether the startup probe succeeded.
func (c *Cache) Active() bool {
	return c != nil && c.db != nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put stores value under key with the given TTL. Failures are logged and
// absorbed.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	if !c.Active() || ttl <= 0 {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache put: marshal failed", logging.String("key", key), logging.Error(err))
		return
	}
	expires := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(payload), expires,
	)
	if err != nil {
		c.logger.Warn("cache put failed", logging.String("key", key), logging.Error(err))
	}
}

// Get loads the value stored under key into out. It returns false for a
// miss, an expired entry, or any cache failure; callers must treat all three
// identically.
func (c *Cache) Get(key string, out any) bool {
	if !c.Active() {
		return false
	}
	var payload string
	var expires int64
	row := c.db.QueryRow(`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&payload, &expires); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("cache get failed", logging.String("key", key), logging.Error(err))
		}
		return false
	}
	if time.Now().Unix() >= expires {
		c.Delete(key)
		return false
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		c.logger.Warn("cache get: unmarshal failed", logging.String("key", key), logging.Error(err))
		return false
	}
	return true
}

// Delete removes key. Failures are logged and absorbed.
func (c *Cache) Delete(key string) {
	if !c.Active() {
		return
	}
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		c.logger.Warn("cache delete failed", logging.String("key", key), logging.Error(err))
	}
}

// DeleteJob removes every mirror held for one job.
func (c *Cache) DeleteJob(jobID string) {
	c.Delete(ProgressKey(jobID))
	c.Delete(MetadataKey(jobID))
	c.Delete(FilesKey(jobID))
}

// Exists reports whether key holds an unexpired entry.
func (c *Cache) Exists(key string) bool {
	if !c.Active() {
		return false
	}
	var expires int64
	row := c.db.QueryRow(`SELECT expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&expires); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("cache exists failed", logging.String("key", key), logging.Error(err))
		}
		return false
	}
	return time.Now().Unix() < expires
}
