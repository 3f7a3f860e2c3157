package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vpo/internal/analysis"
	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/daemon"
	"vpo/internal/deps"
	"vpo/internal/executor"
	"vpo/internal/logging"
	"vpo/internal/plugins"
	"vpo/internal/scanner"
	"vpo/internal/transcribe"
	"vpo/internal/worker"
	"vpo/internal/workflow"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	printVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("vpod %s\n", version)
		return
	}

	if err := run(*configFlag); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, resolvedPath, usedDefault, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "vpod.log"),
		},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if usedDefault {
		logger.Info("no config file found, using defaults", logging.String("path", resolvedPath))
	} else {
		logger.Info("configuration loaded", logging.String("path", resolvedPath))
	}

	statuses := deps.CheckBinaries(deps.Requirements(cfg.Tools.Probe, cfg.Tools.Transcode, cfg.Tools.Mux, cfg.Tools.Propedit))
	for _, status := range statuses {
		if status.Available {
			logger.Debug("external tool found", logging.String("tool", status.Name), logging.String("path", status.Path))
		} else if status.Optional {
			logger.Warn("optional tool unavailable", logging.String("tool", status.Name), logging.String("detail", status.Detail))
		}
	}
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return fmt.Errorf("required tools missing: %s", strings.Join(missing, ", "))
	}
	if cachePath := cfg.Tools.CapabilityCache; cachePath != "" {
		if _, err := deps.DiscoverCapabilities(context.Background(), cachePath, deps.Requirements(cfg.Tools.Probe, cfg.Tools.Transcode, cfg.Tools.Mux, cfg.Tools.Propedit)); err != nil {
			logger.Warn("capability discovery failed", logging.Error(err))
		}
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	bus := plugins.NewBus(plugins.NewRegistry(), logger)
	exec := executor.New(cfg, store, logger)

	var analyzer workflow.LanguageAnalyzer
	if cfg.Transcription.Enabled {
		plugin, err := transcribe.Load(cfg.Transcription.Plugin, cfg.Transcription)
		if err != nil {
			return fmt.Errorf("load transcription plugin: %w", err)
		}
		detector := transcribe.NewDetector(plugin, cfg.Tools.Transcode, transcribe.OptionsFromConfig(cfg.Transcription))
		analyzer = analysis.New(store, detector, logger, cfg.Transcription)
	}

	proc := workflow.New(store, exec, analyzer, bus, logger)
	sc := scanner.New(cfg, store, bus, logger)

	pool := worker.NewPool(cfg, store, logger)
	pool.Handle(catalog.JobTypeProcess, worker.ProcessHandler(store, proc))
	pool.Handle(catalog.JobTypeScan, scanner.Handler(sc))

	d := daemon.New(cfg, resolvedPath, store, pool, version, logger)
	if err := d.Run(context.Background()); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	logger.Info("vpod stopped")
	return nil
}
