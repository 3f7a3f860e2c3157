package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vpo/internal/services"
)

const jobColumns = "id, type, status, priority, file_id, file_path, policy_path, payload_json, progress_percent, progress_message, error_message, error_class, summary_json, output_path, worker_id, created_at, updated_at, started_at, finished_at"

// minJobPrefixLength is the shortest accepted job identifier prefix.
const minJobPrefixLength = 8

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id          string
		jobType     string
		statusStr   string
		priority    int
		fileID      sql.NullInt64
		filePath    sql.NullString
		policyPath  sql.NullString
		payload     sql.NullString
		percent     sql.NullFloat64
		message     sql.NullString
		errMessage  sql.NullString
		errClass    sql.NullString
		summary     sql.NullString
		outputPath  sql.NullString
		workerID    sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&statusStr,
		&priority,
		&fileID,
		&filePath,
		&policyPath,
		&payload,
		&percent,
		&message,
		&errMessage,
		&errClass,
		&summary,
		&outputPath,
		&workerID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Type:            JobType(jobType),
		Status:          JobStatus(statusStr),
		Priority:        priority,
		FileID:          fileID.Int64,
		FilePath:        filePath.String,
		PolicyPath:      policyPath.String,
		PayloadJSON:     payload.String,
		ProgressPercent: percent.Float64,
		ProgressMessage: message.String,
		ErrorMessage:    errMessage.String,
		ErrorClass:      errClass.String,
		SummaryJSON:     summary.String,
		OutputPath:      outputPath.String,
		WorkerID:        workerID.String,
		StartedAt:       timePtr(startedRaw),
		FinishedAt:      timePtr(finishedRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

// NewJob enqueues a job and returns the stored row.
func (s *Store) NewJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Priority == 0 {
		job.Priority = DefaultJobPriority
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	if _, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (
            id, type, status, priority, file_id, file_path, policy_path,
            payload_json, progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID,
		job.Type,
		JobStatusQueued,
		job.Priority,
		nullableInt64(job.FileID),
		nullableString(job.FilePath),
		nullableString(job.PolicyPath),
		nullableString(job.PayloadJSON),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.JobByID(ctx, job.ID)
}

// JobByID fetches a job by full identifier.
func (s *Store) JobByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ResolveJobID resolves a full identifier or a unique prefix of at least
// eight characters to a job. Ambiguous prefixes are rejected.
func (s *Store) ResolveJobID(ctx context.Context, ref string) (*Job, error) {
	if len(ref) == 36 {
		job, err := s.JobByID(ctx, ref)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, services.Wrap(services.ErrNotFound, "catalog", "resolve job", fmt.Sprintf("no job %q", ref), nil)
		}
		return job, nil
	}
	if len(ref) < minJobPrefixLength {
		return nil, services.Wrap(services.ErrValidation, "catalog", "resolve job",
			fmt.Sprintf("job id prefix %q is shorter than %d characters", ref, minJobPrefixLength), nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id LIKE ? || '%' LIMIT 2`, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve job prefix: %w", err)
	}
	defer rows.Close()

	var matches []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "catalog", "resolve job", fmt.Sprintf("no job matching %q", ref), nil)
	case 1:
		return matches[0], nil
	default:
		return nil, services.Wrap(services.ErrValidation, "catalog", "resolve job", fmt.Sprintf("prefix %q is ambiguous", ref), nil)
	}
}

// ClaimJob atomically hands the best queued job to a worker. Selection is
// lowest priority number first, then oldest. Returns nil when the queue is
// empty.
func (s *Store) ClaimJob(ctx context.Context, workerID string) (*Job, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var claimed *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE jobs
             SET status = ?, worker_id = ?, started_at = ?, updated_at = ?
             WHERE id = (
                 SELECT id FROM jobs WHERE status = ?
                 ORDER BY priority ASC, created_at ASC LIMIT 1
             )
             RETURNING `+jobColumns,
			JobStatusRunning, workerID, now, now,
			JobStatusQueued,
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

// UpdateJobProgress records worker progress on a running job.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, percent float64, message string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE jobs SET progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		JobStatusRunning,
	); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// CompleteJob moves a running job to completed with an optional summary and
// output path.
func (s *Store) CompleteJob(ctx context.Context, id, summaryJSON, outputPath string) error {
	return s.finishJob(ctx, id, JobStatusCompleted, summaryJSON, outputPath, "", "")
}

// FailJob moves a running job to failed with a classified error.
func (s *Store) FailJob(ctx context.Context, id, message, errorClass string) error {
	return s.finishJob(ctx, id, JobStatusFailed, "", "", message, errorClass)
}

func (s *Store) finishJob(ctx context.Context, id string, status JobStatus, summaryJSON, outputPath, errorMessage, errorClass string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	percent := 100.0
	if status != JobStatusCompleted {
		percent = 0
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, progress_percent = ?, summary_json = ?, output_path = ?,
             error_message = ?, error_class = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		status,
		percent,
		nullableString(summaryJSON),
		nullableString(outputPath),
		nullableString(errorMessage),
		nullableString(errorClass),
		now,
		now,
		id,
		JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrValidation, "catalog", "finish job",
			fmt.Sprintf("job %s is not running", id), nil)
	}
	return nil
}

// CancelJob cancels a queued or running job. Running jobs are marked
// cancelled here and their worker observes the status on its next progress
// checkpoint.
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobStatusCancelled,
		now,
		now,
		id,
		JobStatusQueued,
		JobStatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryJobs moves failed jobs back to queued. With no ids it retries every
// failed job.
func (s *Store) RetryJobs(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE jobs
             SET status = ?, progress_percent = 0, progress_message = NULL,
                 error_message = NULL, error_class = NULL, worker_id = NULL,
                 started_at = NULL, finished_at = NULL, updated_at = ?
             WHERE status = ?`,
			JobStatusQueued, now, JobStatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, JobStatusQueued, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, JobStatusFailed)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, progress_percent = 0, progress_message = NULL,
             error_message = NULL, error_class = NULL, worker_id = NULL,
             started_at = NULL, finished_at = NULL, updated_at = ?
         WHERE id IN (`+placeholders+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleJobs requeues running jobs whose workers stopped reporting
// progress before the cutoff. Happens after crashes or hard kills.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, progress_percent = 0, progress_message = 'Reclaimed from stale worker',
             worker_id = NULL, started_at = NULL, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		JobStatusQueued,
		now,
		JobStatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeFinishedJobs deletes terminal jobs older than the cutoff along with
// their operation rows.
func (s *Store) PurgeFinishedJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearJobs removes terminal jobs, optionally restricted to one status.
func (s *Store) ClearJobs(ctx context.Context, statuses ...JobStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	}
	for _, status := range statuses {
		if !status.IsTerminal() {
			return 0, services.Wrap(services.ErrValidation, "catalog", "clear jobs",
				fmt.Sprintf("cannot clear %s jobs", status), nil)
		}
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// RemoveJob deletes a single terminal job.
func (s *Store) RemoveJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE id = ? AND status IN (?, ?, ?)`,
		id, JobStatusCompleted, JobStatusFailed, JobStatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is
// provided), newest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobs aggregates queue totals per lifecycle state.
func (s *Store) CountJobs(ctx context.Context) (JobCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return JobCounts{}, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var counts JobCounts
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return JobCounts{}, err
		}
		switch JobStatus(status) {
		case JobStatusQueued:
			counts.Queued = count
		case JobStatusRunning:
			counts.Running = count
		case JobStatusCompleted:
			counts.Completed = count
		case JobStatusFailed:
			counts.Failed = count
		case JobStatusCancelled:
			counts.Cancelled = count
		}
	}
	return counts, rows.Err()
}
