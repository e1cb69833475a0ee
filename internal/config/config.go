package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	AudioDir  string `toml:"audio_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// Worker contains configuration for the generation worker command line.
type Worker struct {
	Python       string `toml:"python"`
	Script       string `toml:"script"`
	DefaultModel string `toml:"default_model"`
}

// Progress contains tuning for the heuristic progress estimator. These are
// empirical values, not correctness guarantees.
type Progress struct {
	QuiescenceSeconds   int     `toml:"quiescence_seconds"`
	AssumedTotalSeconds int     `toml:"assumed_total_seconds"`
	MaxEstimatedPercent float64 `toml:"max_estimated_percent"`
}

// Cache contains configuration for the best-effort job state mirror.
type Cache struct {
	Enabled            bool   `toml:"enabled"`
	Path               string `toml:"path"`
	ProgressTTLSeconds int    `toml:"progress_ttl_seconds"`
	MetadataTTLSeconds int    `toml:"metadata_ttl_seconds"`
	FilesTTLSeconds    int    `toml:"files_ttl_seconds"`
}

// Janitor contains configuration for periodic job cleanup.
type Janitor struct {
	IntervalSeconds  int `toml:"interval_seconds"`
	RetentionSeconds int `toml:"retention_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Worker   Worker   `toml:"worker"`
	Progress Progress `toml:"progress"`
	Cache    Cache    `toml:"cache"`
	Janitor  Janitor  `toml:"janitor"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath is the location consulted when no explicit path is given.
func DefaultConfigPath() string {
	return expandPath("~/.config/mapsmith/config.toml")
}

// Load reads configuration from path, overlaying the file on top of
// defaults. A missing file is not an error; defaults apply. The returned
// bool reports whether a file was actually read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	} else {
		resolved = expandPath(resolved)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return nil, false, err
			}
			return &cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %q: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("parse config %q: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	path = expandPath(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.AudioDir, c.Paths.OutputDir, c.Paths.LogDir}
	if c.Cache.Enabled && c.Cache.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
