package worker

import (
	"context"
	"fmt"

	"vpo/internal/catalog"
	"vpo/internal/executor"
	"vpo/internal/policy"
	"vpo/internal/services"
	"vpo/internal/workflow"
)

// ProcessHandler builds the handler for process jobs: resolve the file,
// load the job's policy, and run the full phase workflow.
func ProcessHandler(store *catalog.Store, proc *workflow.Processor) Handler {
	return func(ctx context.Context, job *catalog.Job, progress ProgressFunc) (string, string, error) {
		pol, err := policy.Load(job.PolicyPath)
		if err != nil {
			return "", "", err
		}

		file, err := resolveJobFile(ctx, store, job)
		if err != nil {
			return "", "", err
		}

		toolProgress := func(update executor.FFmpegProgress) {
			progress(update.Percent, fmt.Sprintf("%s %.1f%%", update.EncoderType, update.Percent))
		}

		result, err := proc.ProcessFile(ctx, job.ID, file, pol, toolProgress)
		summary := SummaryJSON(result)
		if err != nil {
			return summary, "", err
		}
		return summary, file.Path, nil
	}
}

func resolveJobFile(ctx context.Context, store *catalog.Store, job *catalog.Job) (*catalog.File, error) {
	if job.FileID > 0 {
		return store.FileByID(ctx, job.FileID)
	}
	if job.FilePath != "" {
		return store.FileByPath(ctx, job.FilePath)
	}
	return nil, services.Wrap(services.ErrValidation, "worker", "dispatch",
		"job "+job.ID+" names no file", nil)
}
