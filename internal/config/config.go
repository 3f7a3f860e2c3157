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

// Paths contains directory configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
	PluginDir    string `toml:"plugin_dir"`
	LogDir       string `toml:"log_dir"`
	BackupDir    string `toml:"backup_dir"`
}

// API contains the daemon's HTTP surface configuration.
type API struct {
	Bind          string `toml:"bind"`
	AuthToken     string `toml:"auth_token"`
	SessionSecret string `toml:"session_secret"`
	StrictQuery   bool   `toml:"strict_query"`
}

// Tools contains external tool paths; empty values resolve via PATH.
type Tools struct {
	Probe             string `toml:"probe"`
	Transcode         string `toml:"transcode"`
	Mux               string `toml:"mux"`
	Propedit          string `toml:"propedit"`
	CapabilityCache   string `toml:"capability_cache"`
	ProbeTimeout      int    `toml:"probe_timeout"`
	MetadataTimeout   int    `toml:"metadata_timeout"`
	RemuxTimeout      int    `toml:"remux_timeout"`
	TranscodeTimeout  int    `toml:"transcode_timeout"`
	PluginHTTPTimeout int    `toml:"plugin_http_timeout"`
}

// Processing contains worker pool and safety guard configuration.
type Processing struct {
	Workers        int     `toml:"workers"`
	MinFreePercent float64 `toml:"min_free_percent"`
	KeepBackups    bool    `toml:"keep_backups"`
	QueuePoll      int     `toml:"queue_poll_interval"`
	ClaimTimeout   int     `toml:"claim_timeout_minutes"`
}

// Jobs contains queue retention configuration.
type Jobs struct {
	RetentionDays int `toml:"retention_days"`
}

// Logging contains log output configuration.
type Logging struct {
	Level           string `toml:"level"`
	Format          string `toml:"format"`
	CompressionDays int    `toml:"compression_days"`
	DeletionDays    int    `toml:"deletion_days"`
}

// Transcription contains language detection plugin configuration.
type Transcription struct {
	Enabled             bool    `toml:"enabled"`
	Plugin              string  `toml:"plugin"`
	MaxSamples          int     `toml:"max_samples"`
	SampleDuration      float64 `toml:"sample_duration"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	IncumbentBonus      float64 `toml:"incumbent_bonus"`
	MinTrackSeconds     float64 `toml:"min_track_seconds"`
}

// Scanner contains library scan configuration.
type Scanner struct {
	Roots       []string `toml:"roots"`
	Extensions  []string `toml:"extensions"`
	Incremental bool     `toml:"incremental"`
	PruneMode   string   `toml:"prune_mode"` // "mark" or "delete"
}

// Config encapsulates all configuration values for vpo.
//
// Sections by subsystem:
//   - Paths: data directory layout (catalog db, plugins, logs, backups)
//   - API: daemon bind address and authentication
//   - Tools: external tool paths and per-operation timeouts
//   - Processing: worker pool size and disk guard thresholds
//   - Jobs: queue retention
//   - Logging: level, format, retention schedule
//   - Transcription: multi-sample language detection settings
//   - Scanner: library roots and incremental scan behavior
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Tools         Tools         `toml:"tools"`
	Processing    Processing    `toml:"processing"`
	Jobs          Jobs          `toml:"jobs"`
	Logging       Logging       `toml:"logging"`
	Transcription Transcription `toml:"transcription"`
	Scanner       Scanner       `toml:"scanner"`
}

// DefaultConfigPath returns the absolute path to the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.vpo/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs at startup.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.PluginDir, c.Paths.LogDir, c.Paths.BackupDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dbDir := filepath.Dir(c.Paths.DatabasePath); dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("create database directory %q: %w", dbDir, err)
		}
	}
	return nil
}

// Redacted returns a copy safe for logging: secrets are replaced.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.API.AuthToken != "" {
		cp.API.AuthToken = "<redacted>"
	}
	if cp.API.SessionSecret != "" {
		cp.API.SessionSecret = "<redacted>"
	}
	return cp
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
