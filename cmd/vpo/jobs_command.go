package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vpo/internal/catalog"
	"vpo/internal/config"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Job details",
	}

	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its operation log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				job, err := store.ResolveJobID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				operations, err := store.OperationsForJob(cmd.Context(), job.ID)
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"job": job, "operations": operations})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:      %s\n", job.ID)
				fmt.Fprintf(out, "Type:     %s\n", job.Type)
				fmt.Fprintf(out, "Status:   %s\n", colorStatus(string(job.Status)))
				fmt.Fprintf(out, "File:     %s\n", job.FilePath)
				if job.PolicyPath != "" {
					fmt.Fprintf(out, "Policy:   %s\n", job.PolicyPath)
				}
				fmt.Fprintf(out, "Progress: %.0f%% %s\n", job.ProgressPercent, job.ProgressMessage)
				fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Started:  %s\n", formatTimePtr(job.StartedAt))
				fmt.Fprintf(out, "Finished: %s\n", formatTimePtr(job.FinishedAt))
				if job.OutputPath != "" {
					fmt.Fprintf(out, "Output:   %s\n", job.OutputPath)
				}
				if msg := strings.TrimSpace(job.ErrorMessage); msg != "" {
					fmt.Fprintf(out, "Error:    %s (%s)\n", msg, job.ErrorClass)
				}

				if len(operations) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(operations))
				for _, op := range operations {
					detail := op.ErrorMessage
					if detail == "" {
						detail = op.BackupPath
					}
					rows = append(rows, []string{
						strconv.FormatInt(op.ID, 10),
						op.OpType,
						string(op.Status),
						detail,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Op", "Type", "Status", "Detail"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}
