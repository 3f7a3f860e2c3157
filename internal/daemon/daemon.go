package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/executor"
	"vpo/internal/logging"
	"vpo/internal/worker"
)

const (
	shutdownTimeout     = 30 * time.Second
	reloadTimeout       = 30 * time.Second
	maintenanceInterval = time.Hour
)

// Daemon wires the HTTP server, worker pool, and maintenance loop.
type Daemon struct {
	store  *catalog.Store
	pool   *worker.Pool
	logger *slog.Logger

	cfg        atomic.Pointer[config.Config]
	configPath string
	version    string
	startedAt  time.Time
	shutting   atomic.Bool

	server   *http.Server
	listener net.Listener
}

// New builds a daemon around an already-open store and configured pool.
// configPath is re-read on SIGHUP; version is reported by /health.
func New(cfg *config.Config, configPath string, store *catalog.Store, pool *worker.Pool, version string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		store:      store,
		pool:       pool,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		configPath: configPath,
		version:    version,
		startedAt:  time.Now().UTC(),
	}
	d.cfg.Store(cfg)
	return d
}

// Config returns the current configuration snapshot.
func (d *Daemon) Config() *config.Config { return d.cfg.Load() }

// Addr returns the bound listen address once Run has started the server.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Run serves until the context is cancelled or a termination signal
// arrives. It acquires the daemon singleton lock, starts the worker pool,
// serves HTTP, and runs maintenance on a timer.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	lock, err := executor.AcquireFileLock(filepath.Join(cfg.Paths.DataDir, "daemon"))
	if err != nil {
		return err
	}
	defer lock.Release()

	listener, err := net.Listen("tcp", cfg.API.Bind)
	if err != nil {
		return err
	}
	d.listener = listener
	d.server = &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.pool.Start(ctx)
	defer d.pool.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.server.Serve(listener)
	}()
	d.logger.InfoContext(ctx, "daemon listening",
		logging.String("addr", listener.Addr().String()),
		logging.String("version", d.version))

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.shutdown(context.Background())
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			d.pool.Maintain(ctx)
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				if err := d.Reload(ctx); err != nil {
					d.logger.ErrorContext(ctx, "reload failed", logging.Error(err))
				}
				continue
			}
			d.logger.InfoContext(ctx, "shutdown signal received",
				logging.String("signal", sig.String()))
			return d.shutdown(context.Background())
		}
	}
}

func (d *Daemon) shutdown(ctx context.Context) error {
	d.shutting.Store(true)
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := d.server.Shutdown(ctx)
	d.logger.InfoContext(ctx, "daemon stopped")
	return err
}

// Reload re-reads the config file and applies the hot-reloadable subset.
// Restart-only fields are logged and left untouched; any failure keeps the
// old configuration.
func (d *Daemon) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	type loaded struct {
		cfg *config.Config
		err error
	}
	ch := make(chan loaded, 1)
	go func() {
		next, _, _, err := config.Load(d.configPath)
		ch <- loaded{next, err}
	}()

	var next *config.Config
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-ch:
		if result.err != nil {
			return result.err
		}
		next = result.cfg
	}

	current := d.Config()
	plan := config.Diff(current, next)
	if plan.Empty() {
		d.logger.InfoContext(ctx, "reload: no changes")
		return nil
	}

	for _, change := range plan.RestartRequired {
		d.logger.WarnContext(ctx, "reload: restart required",
			logging.String("field", change.Field),
			logging.String("old", change.Old),
			logging.String("new", change.New))
	}
	for _, change := range plan.Hot {
		d.logger.InfoContext(ctx, "reload: applied",
			logging.String("field", change.Field),
			logging.String("old", change.Old),
			logging.String("new", change.New))
	}

	// Restart-only fields keep their old values so the running state stays
	// consistent with what was actually applied.
	applied := *next
	applied.API = current.API
	applied.Paths = current.Paths
	applied.Tools.Probe = current.Tools.Probe
	applied.Tools.Transcode = current.Tools.Transcode
	applied.Tools.Mux = current.Tools.Mux
	applied.Tools.Propedit = current.Tools.Propedit

	logging.SetLevel(applied.Logging.Level)
	d.cfg.Store(&applied)
	d.pool.SetConfig(&applied)
	return nil
}
