package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Interact with a running vpod",
	}

	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

type daemonHealth struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
	ShuttingDown  bool    `json:"shutting_down"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
	ActiveWorkers int     `json:"active_workers"`
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query the daemon health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			endpoint := "http://" + cfg.API.Bind + "/health"
			client := &http.Client{Timeout: 10 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return wrapDaemonError(err, cfg.API.Bind)
			}
			defer resp.Body.Close()

			var health daemonHealth
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("decode health response: %w", err)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, health)
			}

			rows := [][]string{
				{"Status", health.Status},
				{"Database", health.Database},
				{"Version", health.Version},
				{"Uptime", formatDuration(health.UptimeSeconds)},
				{"Shutting down", yesNo(health.ShuttingDown)},
				{"Workers", strconv.Itoa(health.ActiveWorkers)},
				{"Jobs queued", strconv.Itoa(health.JobsQueued)},
				{"Jobs running", strconv.Itoa(health.JobsRunning)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon reported status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

func wrapDaemonError(err error, bind string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return fmt.Errorf("connect to daemon at %s: %v; start it with `vpod`", bind, opErr.Err)
		}
	}
	return fmt.Errorf("connect to daemon: %w", err)
}
