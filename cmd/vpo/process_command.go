package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/plan"
	"vpo/internal/plugins"
	"vpo/internal/policy"
	"vpo/internal/scanner"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var policyPath string
	var dryRun bool
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "process --policy <file> <path...>",
		Short: "Apply a policy to one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := policy.Load(policyPath)
			if err != nil {
				return err
			}
			resolvedPolicy, err := filepath.Abs(policyPath)
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return err
					}
					file, err := catalogFile(cmd, cfg, store, path)
					if err != nil {
						return err
					}

					switch {
					case enqueue:
						job, err := store.NewJob(cmd.Context(), &catalog.Job{
							Type:       catalog.JobTypeProcess,
							FileID:     file.ID,
							FilePath:   file.Path,
							PolicyPath: resolvedPolicy,
						})
						if err != nil {
							return err
						}
						if ctx.jsonOutput() {
							if err := writeJSON(cmd, job); err != nil {
								return err
							}
						} else {
							fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for %s\n", job.ID, file.Path)
						}
					case dryRun:
						if err := printPlan(cmd, ctx, store, file, pol); err != nil {
							return err
						}
					default:
						if err := processDirect(cmd, ctx, cfg, store, file, pol); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy file to evaluate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without touching files")
	cmd.Flags().BoolVar(&enqueue, "queue", false, "Queue a job for the daemon instead of processing inline")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

// catalogFile looks up the file, scanning the path first when it is not yet
// in the catalog.
func catalogFile(cmd *cobra.Command, cfg *config.Config, store *catalog.Store, path string) (*catalog.File, error) {
	file, err := store.FileByPath(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	if file == nil {
		logger := logging.NewNop()
		sc := scanner.New(cfg, store, plugins.NewBus(plugins.NewRegistry(), logger), logger)
		if _, err := sc.Scan(cmd.Context(), path); err != nil {
			return nil, err
		}
		file, err = store.FileByPath(cmd.Context(), path)
		if err != nil {
			return nil, err
		}
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a recognized media file", path)
	}
	return file, nil
}

func printPlan(cmd *cobra.Command, ctx *commandContext, store *catalog.Store, file *catalog.File, pol *policy.Policy) error {
	tracks, err := store.TracksForFile(cmd.Context(), file.ID)
	if err != nil {
		return err
	}
	classes, err := store.ClassificationsForFile(cmd.Context(), file.ID)
	if err != nil {
		return err
	}
	pl, err := plan.Evaluate(file, tracks, pol, plan.Signals{Classifications: classes})
	if err != nil {
		return err
	}

	if ctx.jsonOutput() {
		return writeJSON(cmd, pl)
	}

	out := cmd.OutOrStdout()
	if pl.IsEmpty() {
		fmt.Fprintf(out, "%s already satisfies policy %s\n", file.Path, pol.Name)
		return nil
	}
	rows := make([][]string, 0, len(pl.Actions))
	for _, action := range pl.Actions {
		target := ""
		if action.Track.TrackIndex > 0 || action.Track.ID > 0 {
			target = "#" + strconv.Itoa(action.Track.TrackIndex)
		}
		detail := action.Value
		if detail == "" {
			detail = action.Key
		}
		rows = append(rows, []string{string(action.Kind), target, detail, action.Reason})
	}
	fmt.Fprintf(out, "Plan for %s (policy %s, remux: %s)\n", file.Path, pl.PolicyName, yesNo(pl.RequiresRemux))
	fmt.Fprintln(out, renderTable([]string{"Action", "Track", "Value", "Reason"}, rows, nil))
	for _, warning := range pl.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	return nil
}

func processDirect(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, store *catalog.Store, file *catalog.File, pol *policy.Policy) error {
	proc, err := buildProcessor(cfg, store)
	if err != nil {
		return err
	}
	result, err := proc.ProcessFile(cmd.Context(), uuid.NewString(), file, pol, nil)
	if result == nil {
		return err
	}

	if ctx.jsonOutput() {
		if werr := writeJSON(cmd, result); werr != nil {
			return werr
		}
		return err
	}

	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(result.PhaseResults))
	for _, pr := range result.PhaseResults {
		status := "ok"
		detail := ""
		switch {
		case pr.SkipReason != nil:
			status = "skipped"
			detail = pr.SkipReason.Message
		case !pr.Success:
			status = "failed"
			detail = pr.ErrorMessage
		case pr.ChangesMade > 0:
			detail = strconv.Itoa(pr.ChangesMade) + " changes"
		}
		rows = append(rows, []string{pr.Name, status, detail})
	}
	fmt.Fprintf(out, "%s: %d changes (%d phases, %d skipped, %d failed)\n",
		result.Path, result.TotalChanges, result.PhasesCompleted, result.PhasesSkipped, result.PhasesFailed)
	fmt.Fprintln(out, renderTable([]string{"Phase", "Status", "Detail"}, rows, nil))
	if msg := strings.TrimSpace(result.ErrorMessage); msg != "" {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
	return err
}
