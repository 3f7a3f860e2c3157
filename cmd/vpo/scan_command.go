package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vpo/internal/catalog"
	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/plugins"
	"vpo/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [root...]",
		Short: "Scan library roots and refresh the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				logger := logging.NewNop()
				bus := plugins.NewBus(plugins.NewRegistry(), logger)
				sc := scanner.New(cfg, store, bus, logger)

				summary, err := sc.Scan(cmd.Context(), args...)
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, summary)
				}

				rows := [][]string{
					{"Discovered", strconv.Itoa(summary.TotalDiscovered)},
					{"Scanned", strconv.Itoa(summary.Scanned)},
					{"Skipped", strconv.Itoa(summary.Skipped)},
					{"Added", strconv.Itoa(summary.Added)},
					{"Removed", strconv.Itoa(summary.Removed)},
					{"Errors", strconv.Itoa(summary.Errors)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	return cmd
}
