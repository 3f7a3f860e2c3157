package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vpo/internal/config"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing file")
	}
	if path == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Processing.Workers != 2 {
		t.Errorf("workers = %d", cfg.Processing.Workers)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if !filepath.IsAbs(cfg.Paths.DatabasePath) {
		t.Errorf("database path not absolute: %q", cfg.Paths.DatabasePath)
	}
	if len(cfg.Scanner.Extensions) == 0 || cfg.Scanner.Extensions[0] != "mkv" {
		t.Errorf("extensions = %v", cfg.Scanner.Extensions)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	doc := `
[paths]
data_dir = "` + dir + `/data"

[api]
bind = "0.0.0.0:9000"
auth_token = "  secret  "

[processing]
workers = 4

[scanner]
roots = ["` + dir + `/library"]
extensions = [".MKV", "mp4", "mkv"]
prune_mode = "DELETE"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected file to exist")
	}
	if cfg.API.Bind != "0.0.0.0:9000" {
		t.Errorf("bind = %q", cfg.API.Bind)
	}
	if cfg.API.AuthToken != "secret" {
		t.Errorf("auth token should be trimmed, got %q", cfg.API.AuthToken)
	}
	if cfg.Processing.Workers != 4 {
		t.Errorf("workers = %d", cfg.Processing.Workers)
	}
	if len(cfg.Scanner.Extensions) != 2 {
		t.Errorf("extensions should be deduplicated and folded: %v", cfg.Scanner.Extensions)
	}
	if cfg.Scanner.PruneMode != "delete" {
		t.Errorf("prune mode = %q", cfg.Scanner.PruneMode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad bind", func(c *config.Config) { c.API.Bind = "nonsense" }, "api.bind"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"transcription no plugin", func(c *config.Config) { c.Transcription.Enabled = true }, "transcription.plugin"},
		{"bad prune", func(c *config.Config) { c.Scanner.PruneMode = "purge" }, "prune_mode"},
		{"threshold range", func(c *config.Config) { c.Transcription.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.API.Bind = "127.0.0.1:7491"
			cfg.Logging.Level = "info"
			cfg.Logging.Format = "console"
			cfg.Scanner.PruneMode = "mark"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := config.Default()
	cfg.API.AuthToken = "topsecret"
	red := cfg.Redacted()
	if red.API.AuthToken != "<redacted>" {
		t.Errorf("token not redacted: %q", red.API.AuthToken)
	}
	if cfg.API.AuthToken != "topsecret" {
		t.Error("original must be untouched")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config must load cleanly: %v", err)
	}
}
