package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/services"
)

// ProgressFunc reports handler progress back to the job row.
type ProgressFunc func(percent float64, message string)

// Handler runs one claimed job end-to-end. The summary is persisted as the
// job's summary_json on success.
type Handler func(ctx context.Context, job *catalog.Job, progress ProgressFunc) (summaryJSON, outputPath string, err error)

const (
	defaultWorkers      = 2
	defaultPollSeconds  = 5
	defaultClaimMinutes = 60
)

// Pool claims and runs queued jobs with a fixed number of workers.
type Pool struct {
	store  *catalog.Store
	logger *slog.Logger

	mu       sync.Mutex
	cfg      *config.Config
	handlers map[catalog.JobType]Handler

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	cancel   context.CancelFunc
}

// NewPool builds an idle pool. Handlers must be registered before Start.
func NewPool(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "worker"),
		handlers: make(map[catalog.JobType]Handler),
		stopCh:   make(chan struct{}),
	}
}

// Handle registers the handler for a job type, replacing any previous one.
func (p *Pool) Handle(jobType catalog.JobType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
}

func (p *Pool) handler(jobType catalog.JobType) Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[jobType]
}

// SetConfig swaps the config snapshot. Poll interval, claim timeout, and
// retention pick up the new values on the next iteration; the worker count
// only applies at the next Start.
func (p *Pool) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

func (p *Pool) config() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// WorkerCount reports the pool size the configuration asks for.
func (p *Pool) WorkerCount() int { return p.workers() }

func (p *Pool) workers() int {
	cfg := p.config()
	if cfg != nil && cfg.Processing.Workers > 0 {
		return cfg.Processing.Workers
	}
	return defaultWorkers
}

func (p *Pool) pollInterval() time.Duration {
	cfg := p.config()
	if cfg != nil && cfg.Processing.QueuePoll > 0 {
		return time.Duration(cfg.Processing.QueuePoll) * time.Second
	}
	return defaultPollSeconds * time.Second
}

func (p *Pool) claimCutoff(now time.Time) time.Time {
	minutes := defaultClaimMinutes
	cfg := p.config()
	if cfg != nil && cfg.Processing.ClaimTimeout > 0 {
		minutes = cfg.Processing.ClaimTimeout
	}
	return now.Add(-time.Duration(minutes) * time.Minute)
}

// Start reclaims abandoned jobs, runs one maintenance pass, and launches
// the worker goroutines. Cancel the context or call Stop to drain.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.Maintain(ctx)

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "vpo"
	}
	for i := 0; i < p.workers(); i++ {
		workerID := fmt.Sprintf("%s-%d", host, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runLoop(ctx, workerID)
		}()
	}
	p.logger.InfoContext(ctx, "worker pool started",
		logging.Int("workers", p.workers()),
		logging.Duration("poll", p.pollInterval()))
}

// Stop asks every worker to finish its current job and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.cancel != nil {
			p.cancel()
		}
	})
	p.wg.Wait()
}

// Drain processes queued jobs until the queue is empty, using the calling
// goroutine. Used by one-shot CLI runs where no daemon pool exists.
func (p *Pool) Drain(ctx context.Context) error {
	host, _ := os.Hostname()
	if host == "" {
		host = "vpo"
	}
	workerID := host + "-cli"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := p.store.ClaimJob(ctx, workerID)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		p.runJob(ctx, job)
	}
}

func (p *Pool) runLoop(ctx context.Context, workerID string) {
	poll := p.pollInterval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		job, err := p.store.ClaimJob(ctx, workerID)
		if err != nil {
			p.logger.WarnContext(ctx, "claim failed",
				logging.String("worker", workerID),
				logging.Error(err))
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(poll):
			}
			continue
		}
		p.runJob(ctx, job)
	}
}

// runJob executes one claimed job and records its terminal status. A
// cancelled job keeps its cancelled status; handler panics fail the job
// instead of killing the worker.
func (p *Pool) runJob(ctx context.Context, job *catalog.Job) {
	start := time.Now()
	p.logger.InfoContext(ctx, "job started",
		logging.String("job", job.ID),
		logging.String("type", string(job.Type)),
		logging.String("path", job.FilePath))

	handler := p.handler(job.Type)
	if handler == nil {
		err := services.Wrap(services.ErrConfiguration, "worker", "dispatch",
			"no handler for job type "+string(job.Type), nil)
		p.finishFailed(ctx, job, err)
		return
	}

	progress := func(percent float64, message string) {
		if err := p.store.UpdateJobProgress(ctx, job.ID, percent, message); err != nil {
			p.logger.DebugContext(ctx, "progress write failed",
				logging.String("job", job.ID),
				logging.Error(err))
		}
	}

	summary, outputPath, err := p.safeRun(ctx, handler, job, progress)
	elapsed := time.Since(start)

	if err != nil {
		if p.jobCancelled(ctx, job.ID) || errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled) {
			p.logger.InfoContext(ctx, "job cancelled",
				logging.String("job", job.ID),
				logging.Duration("elapsed", elapsed))
			if _, cancelErr := p.store.CancelJob(ctx, job.ID); cancelErr != nil {
				p.logger.WarnContext(ctx, "cancel record failed",
					logging.String("job", job.ID),
					logging.Error(cancelErr))
			}
			return
		}
		p.finishFailed(ctx, job, err)
		p.logger.ErrorContext(ctx, "job failed",
			logging.String("job", job.ID),
			logging.Duration("elapsed", elapsed),
			logging.Error(err))
		return
	}

	if err := p.store.CompleteJob(ctx, job.ID, summary, outputPath); err != nil {
		p.logger.WarnContext(ctx, "completion record failed",
			logging.String("job", job.ID),
			logging.Error(err))
		return
	}
	p.logger.InfoContext(ctx, "job completed",
		logging.String("job", job.ID),
		logging.Duration("elapsed", elapsed))
}

func (p *Pool) safeRun(ctx context.Context, handler Handler, job *catalog.Job, progress ProgressFunc) (summary, outputPath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(nil, "worker", "run", fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return handler(ctx, job, progress)
}

func (p *Pool) finishFailed(ctx context.Context, job *catalog.Job, cause error) {
	class := string(services.Classify(cause))
	if err := p.store.FailJob(ctx, job.ID, cause.Error(), class); err != nil {
		p.logger.WarnContext(ctx, "failure record failed",
			logging.String("job", job.ID),
			logging.Error(err))
	}
}

func (p *Pool) jobCancelled(ctx context.Context, id string) bool {
	job, err := p.store.JobByID(ctx, id)
	return err == nil && job != nil && job.Status == catalog.JobStatusCancelled
}

// Maintain reclaims stale claims, purges old finished jobs, and applies log
// retention. Safe to call concurrently with running workers.
func (p *Pool) Maintain(ctx context.Context) {
	now := time.Now().UTC()
	cfg := p.config()

	reclaimed, err := p.store.ReclaimStaleJobs(ctx, p.claimCutoff(now))
	if err != nil {
		p.logger.WarnContext(ctx, "stale reclaim failed", logging.Error(err))
	} else if reclaimed > 0 {
		p.logger.InfoContext(ctx, "stale jobs requeued", logging.Int64("count", reclaimed))
	}

	if cfg != nil && cfg.Jobs.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.Jobs.RetentionDays)
		purged, err := p.store.PurgeFinishedJobs(ctx, cutoff)
		if err != nil {
			p.logger.WarnContext(ctx, "job purge failed", logging.Error(err))
		} else if purged > 0 {
			p.logger.InfoContext(ctx, "finished jobs purged", logging.Int64("count", purged))
		}
	}

	if cfg != nil && cfg.Paths.LogDir != "" {
		logging.ApplyRetention(p.logger, cfg.Paths.LogDir, logging.RetentionPolicy{
			CompressionDays: cfg.Logging.CompressionDays,
			DeletionDays:    cfg.Logging.DeletionDays,
		})
	}
}

// SummaryJSON renders a handler result for the job row, dropping to "{}"
// when the value cannot be encoded.
func SummaryJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}
