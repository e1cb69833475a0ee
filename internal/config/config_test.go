package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, loaded, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded {
		t.Fatalf("missing file must not report loaded")
	}
	if cfg.Paths.APIBind != defaultAPIBind {
		t.Fatalf("expected default bind, got %q", cfg.Paths.APIBind)
	}
	if cfg.Worker.DefaultModel != defaultWorkerModel {
		t.Fatalf("expected default model, got %q", cfg.Worker.DefaultModel)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := strings.Join([]string{
		"[paths]",
		`api_bind = "127.0.0.1:9000"`,
		"",
		"[worker]",
		`default_model = "v31"`,
		"",
		"[cache]",
		"enabled = false",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded {
		t.Fatalf("expected loaded=true")
	}
	if cfg.Paths.APIBind != "127.0.0.1:9000" {
		t.Fatalf("bind not overlaid: %q", cfg.Paths.APIBind)
	}
	if cfg.Worker.DefaultModel != "v31" {
		t.Fatalf("model not overlaid: %q", cfg.Worker.DefaultModel)
	}
	if cfg.Cache.Enabled {
		t.Fatalf("cache.enabled not overlaid")
	}
	// Untouched sections keep their defaults.
	if cfg.Progress.AssumedTotalSeconds != defaultAssumedTotalSeconds {
		t.Fatalf("progress defaults lost: %+v", cfg.Progress)
	}
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cfg := Default()
	cfg.Paths.APIBind = ""
	cfg.Progress.MaxEstimatedPercent = 150
	cfg.normalize()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	for _, want := range []string{"paths.api_bind", "progress.max_estimated_percent"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	cfg, loaded, err := Load(path)
	if err != nil {
		t.Fatalf("sample config must load: %v", err)
	}
	if !loaded {
		t.Fatalf("expected loaded=true")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config must validate: %v", err)
	}
}
