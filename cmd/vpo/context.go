package main

import (
	"strings"
	"sync"

	"vpo/internal/analysis"
	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/executor"
	"vpo/internal/logging"
	"vpo/internal/plugins"
	"vpo/internal/transcribe"
	"vpo/internal/workflow"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withStore opens the catalog for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// buildProcessor wires the workflow processor the same way vpod does, minus
// the job queue: direct execution with an optional transcription analyzer.
func buildProcessor(cfg *config.Config, store *catalog.Store) (*workflow.Processor, error) {
	logger := logging.NewNop()
	exec := executor.New(cfg, store, logger)

	var analyzer workflow.LanguageAnalyzer
	if cfg.Transcription.Enabled {
		plugin, err := transcribe.Load(cfg.Transcription.Plugin, cfg.Transcription)
		if err != nil {
			return nil, err
		}
		detector := transcribe.NewDetector(plugin, cfg.Tools.Transcode, transcribe.OptionsFromConfig(cfg.Transcription))
		analyzer = analysis.New(store, detector, logger, cfg.Transcription)
	}

	bus := plugins.NewBus(plugins.NewRegistry(), logger)
	return workflow.New(store, exec, analyzer, bus, logger), nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
