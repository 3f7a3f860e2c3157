package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vpo/internal/catalog"
	"vpo/internal/config"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var typeFlag string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				filter := catalog.JobFilter{Type: catalog.JobType(typeFlag)}
				if statusFlag != "" {
					status, ok := catalog.ParseJobStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown job status %q", statusFlag)
					}
					filter.Status = status
				}
				page, err := store.JobsFiltered(cmd.Context(), filter, catalog.Page{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"jobs": page.Jobs, "total": page.Total})
				}

				out := cmd.OutOrStdout()
				if len(page.Jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(page.Jobs))
				for _, job := range page.Jobs {
					rows = append(rows, []string{
						shortID(job.ID),
						string(job.Type),
						colorStatus(string(job.Status)),
						fmt.Sprintf("%.0f%%", job.ProgressPercent),
						filepath.Base(job.FilePath),
						job.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Type", "Status", "Progress", "File", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintf(out, "%d of %d jobs\n", len(page.Jobs), page.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by job type")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Listing offset")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				counts, err := store.CountJobs(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, counts)
				}
				rows := [][]string{
					{"Queued", strconv.Itoa(counts.Queued)},
					{"Running", strconv.Itoa(counts.Running)},
					{"Completed", strconv.Itoa(counts.Completed)},
					{"Failed", strconv.Itoa(counts.Failed)},
					{"Cancelled", strconv.Itoa(counts.Cancelled)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

type queueChange struct {
	Ref     string `json:"ref"`
	JobID   string `json:"job_id,omitempty"`
	Outcome string `json:"outcome"`
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id...>",
		Short: "Requeue failed jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				changes := make([]queueChange, 0, len(args))
				for _, ref := range args {
					job, err := store.ResolveJobID(cmd.Context(), ref)
					if err != nil {
						return err
					}
					if job.Status != catalog.JobStatusFailed {
						changes = append(changes, queueChange{Ref: ref, JobID: job.ID, Outcome: "not_failed"})
						continue
					}
					updated, err := store.RetryJobs(cmd.Context(), job.ID)
					if err != nil {
						return err
					}
					outcome := "retried"
					if updated == 0 {
						outcome = "not_failed"
					}
					changes = append(changes, queueChange{Ref: ref, JobID: job.ID, Outcome: outcome})
				}
				return reportQueueChanges(cmd, ctx, changes)
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete finished jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				var statuses []catalog.JobStatus
				if statusFlag != "" {
					status, ok := catalog.ParseJobStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown job status %q", statusFlag)
					}
					statuses = append(statuses, status)
				}
				removed, err := store.ClearJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Clear only jobs with this finished status")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id...>",
		Short: "Remove finished jobs by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				changes := make([]queueChange, 0, len(args))
				for _, ref := range args {
					job, err := store.ResolveJobID(cmd.Context(), ref)
					if err != nil {
						return err
					}
					removed, err := store.RemoveJob(cmd.Context(), job.ID)
					if err != nil {
						return err
					}
					outcome := "removed"
					if !removed {
						outcome = "not_finished"
					}
					changes = append(changes, queueChange{Ref: ref, JobID: job.ID, Outcome: outcome})
				}
				return reportQueueChanges(cmd, ctx, changes)
			})
		},
	}
}

func reportQueueChanges(cmd *cobra.Command, ctx *commandContext, changes []queueChange) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, map[string]any{"jobs": changes})
	}
	out := cmd.OutOrStdout()
	for _, change := range changes {
		fmt.Fprintf(out, "%s: %s\n", shortID(change.JobID), change.Outcome)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}
