package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mapsmith/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// The worker defaults to /bin/sh so tests can drop in shell-script stubs.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.AudioDir = filepath.Join(base, "audio")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Worker.Python = "/bin/sh"
	cfg.Cache.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkerScript points the worker at a stub script.
func WithWorkerScript(path string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Worker.Script = path
	}
}

// WithCache enables the cache mirror at path.
func WithCache(path string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.Enabled = true
		cfg.Cache.Path = path
	}
}

// WriteScript drops an executable shell script into dir and returns its
// path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
