package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() {
	c.Paths.AudioDir = expandPath(c.Paths.AudioDir)
	c.Paths.OutputDir = expandPath(c.Paths.OutputDir)
	c.Paths.LogDir = expandPath(c.Paths.LogDir)
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Worker.Python = strings.TrimSpace(c.Worker.Python)
	c.Worker.Script = expandPath(c.Worker.Script)
	c.Worker.DefaultModel = strings.TrimSpace(c.Worker.DefaultModel)
	c.Cache.Path = expandPath(c.Cache.Path)
	c.Logging.Format = strings.TrimSpace(c.Logging.Format)
	c.Logging.Level = strings.TrimSpace(c.Logging.Level)
}

// Validate reports configuration that cannot produce a working daemon.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.AudioDir == "" {
		problems = append(problems, "paths.audio_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		problems = append(problems, "paths.output_dir must be set")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if c.Paths.APIBind == "" {
		problems = append(problems, "paths.api_bind must be set")
	}
	if c.Worker.Python == "" {
		problems = append(problems, "worker.python must be set")
	}
	if c.Worker.Script == "" {
		problems = append(problems, "worker.script must be set")
	}
	if c.Progress.QuiescenceSeconds <= 0 {
		problems = append(problems, "progress.quiescence_seconds must be positive")
	}
	if c.Progress.AssumedTotalSeconds <= 0 {
		problems = append(problems, "progress.assumed_total_seconds must be positive")
	}
	if c.Progress.MaxEstimatedPercent <= 0 || c.Progress.MaxEstimatedPercent > 100 {
		problems = append(problems, "progress.max_estimated_percent must be in (0,100]")
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		problems = append(problems, "cache.path must be set when cache.enabled is true")
	}
	if c.Janitor.IntervalSeconds <= 0 {
		problems = append(problems, "janitor.interval_seconds must be positive")
	}
	if c.Janitor.RetentionSeconds <= 0 {
		problems = append(problems, "janitor.retention_seconds must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) == 1 {
		return errors.New(problems[0])
	}
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}
