package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if c.Processing.Workers > 64 {
		return errors.New("processing.workers must be 64 or fewer")
	}
	if c.Processing.MinFreePercent >= 100 {
		return errors.New("processing.min_free_percent must be below 100")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind %q is not host:port: %w", c.API.Bind, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not console or json", c.Logging.Format)
	}
	if c.Logging.DeletionDays > 0 && c.Logging.CompressionDays > c.Logging.DeletionDays {
		return errors.New("logging.compression_days must not exceed logging.deletion_days")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Enabled && strings.TrimSpace(c.Transcription.Plugin) == "" {
		return errors.New("transcription.plugin must be set when transcription.enabled is true")
	}
	if c.Transcription.ConfidenceThreshold > 1 {
		return errors.New("transcription.confidence_threshold must be between 0 and 1")
	}
	if c.Transcription.IncumbentBonus > 1 {
		return errors.New("transcription.incumbent_bonus must be between 0 and 1")
	}
	if c.Transcription.MaxSamples > 32 {
		return errors.New("transcription.max_samples must be 32 or fewer")
	}
	return nil
}

func (c *Config) validateScanner() error {
	switch c.Scanner.PruneMode {
	case "mark", "delete":
	default:
		return fmt.Errorf("scanner.prune_mode %q is not mark or delete", c.Scanner.PruneMode)
	}
	return nil
}
