package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLogging()
	c.normalizeProcessing()
	c.normalizeTranscription()
	c.normalizeScanner()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(pickDefault(c.Paths.DataDir, defaultDataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.DatabasePath, err = expandPath(pickDefault(c.Paths.DatabasePath, defaultDatabasePath)); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if c.Paths.PluginDir, err = expandPath(pickDefault(c.Paths.PluginDir, defaultPluginDir)); err != nil {
		return fmt.Errorf("paths.plugin_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(pickDefault(c.Paths.LogDir, defaultLogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.BackupDir, err = expandPath(pickDefault(c.Paths.BackupDir, defaultBackupDir)); err != nil {
		return fmt.Errorf("paths.backup_dir: %w", err)
	}
	if c.Tools.CapabilityCache, err = expandPath(pickDefault(c.Tools.CapabilityCache, defaultCapabilityCache)); err != nil {
		return fmt.Errorf("tools.capability_cache: %w", err)
	}
	roots := make([]string, 0, len(c.Scanner.Roots))
	for _, root := range c.Scanner.Roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("scanner.roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	c.Scanner.Roots = roots
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.AuthToken = strings.TrimSpace(c.API.AuthToken)
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.CompressionDays < 0 {
		c.Logging.CompressionDays = 0
	}
	if c.Logging.DeletionDays < 0 {
		c.Logging.DeletionDays = 0
	}
}

func (c *Config) normalizeProcessing() {
	if c.Processing.Workers <= 0 {
		c.Processing.Workers = defaultWorkers
	}
	if c.Processing.MinFreePercent <= 0 {
		c.Processing.MinFreePercent = defaultMinFreePercent
	}
	if c.Processing.QueuePoll <= 0 {
		c.Processing.QueuePoll = defaultQueuePollInterval
	}
	if c.Processing.ClaimTimeout <= 0 {
		c.Processing.ClaimTimeout = defaultClaimTimeoutMinutes
	}
	if c.Jobs.RetentionDays < 0 {
		c.Jobs.RetentionDays = 0
	}
	for _, field := range []*int{
		&c.Tools.ProbeTimeout, &c.Tools.MetadataTimeout,
		&c.Tools.RemuxTimeout, &c.Tools.TranscodeTimeout,
		&c.Tools.PluginHTTPTimeout,
	} {
		if *field <= 0 {
			*field = 0
		}
	}
	if c.Tools.ProbeTimeout == 0 {
		c.Tools.ProbeTimeout = defaultProbeTimeout
	}
	if c.Tools.MetadataTimeout == 0 {
		c.Tools.MetadataTimeout = defaultMetadataTimeout
	}
	if c.Tools.RemuxTimeout == 0 {
		c.Tools.RemuxTimeout = defaultRemuxTimeout
	}
	if c.Tools.TranscodeTimeout == 0 {
		c.Tools.TranscodeTimeout = defaultTranscodeTimeout
	}
	if c.Tools.PluginHTTPTimeout == 0 {
		c.Tools.PluginHTTPTimeout = defaultPluginHTTPTimeout
	}
}

func (c *Config) normalizeTranscription() {
	if c.Transcription.MaxSamples <= 0 {
		c.Transcription.MaxSamples = defaultMaxSamples
	}
	if c.Transcription.SampleDuration <= 0 {
		c.Transcription.SampleDuration = defaultSampleDuration
	}
	if c.Transcription.ConfidenceThreshold <= 0 {
		c.Transcription.ConfidenceThreshold = defaultSampleConfidence
	}
	if c.Transcription.IncumbentBonus < 0 {
		c.Transcription.IncumbentBonus = 0
	}
	if c.Transcription.MinTrackSeconds <= 0 {
		c.Transcription.MinTrackSeconds = defaultMinTrackSeconds
	}
}

func (c *Config) normalizeScanner() {
	extensions := make([]string, 0, len(c.Scanner.Extensions))
	seen := map[string]struct{}{}
	for _, ext := range c.Scanner.Extensions {
		cleaned := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		extensions = append(extensions, cleaned)
	}
	if len(extensions) == 0 {
		extensions = append(extensions, defaultExtensions...)
	}
	c.Scanner.Extensions = extensions

	c.Scanner.PruneMode = strings.ToLower(strings.TrimSpace(c.Scanner.PruneMode))
	if c.Scanner.PruneMode == "" {
		c.Scanner.PruneMode = defaultPruneMode
	}
}

func pickDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
