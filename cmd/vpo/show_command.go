package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"vpo/internal/catalog"
	"vpo/internal/config"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Display catalog entries",
	}

	showCmd.AddCommand(newShowFileCommand(ctx))
	return showCmd
}

func newShowFileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path-or-id>",
		Short: "Show a cataloged file and its tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				file, err := lookupFile(cmd, store, args[0])
				if err != nil {
					return err
				}
				if file == nil {
					return fmt.Errorf("no cataloged file matches %q", args[0])
				}
				tracks, err := store.TracksForFile(cmd.Context(), file.ID)
				if err != nil {
					return err
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"file": file, "tracks": tracks})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "File:       %s (id %d)\n", file.Path, file.ID)
				fmt.Fprintf(out, "Container:  %s\n", file.ContainerFormat)
				fmt.Fprintf(out, "Size:       %s\n", formatSize(file.Size))
				fmt.Fprintf(out, "Duration:   %s\n", formatDuration(file.DurationSeconds))
				fmt.Fprintf(out, "Resolution: %s\n", file.Resolution)
				fmt.Fprintf(out, "Status:     %s\n", file.Status)
				fmt.Fprintf(out, "Scanned:    %s\n", file.ScannedAt.Local().Format("2006-01-02 15:04:05"))

				rows := make([][]string, 0, len(tracks))
				for _, track := range tracks {
					detail := ""
					switch track.TrackType {
					case "video":
						detail = fmt.Sprintf("%dx%d", track.Width, track.Height)
					case "audio":
						detail = strconv.Itoa(track.Channels) + "ch"
					}
					rows = append(rows, []string{
						strconv.Itoa(track.TrackIndex),
						track.TrackType,
						track.Codec,
						track.Language,
						detail,
						yesNo(track.Default),
						yesNo(track.Forced),
						track.Title,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Type", "Codec", "Lang", "Detail", "Default", "Forced", "Title"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func lookupFile(cmd *cobra.Command, store *catalog.Store, ref string) (*catalog.File, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return store.FileByID(cmd.Context(), id)
	}
	path, err := filepath.Abs(ref)
	if err != nil {
		return nil, err
	}
	return store.FileByPath(cmd.Context(), path)
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", hours, minutes, secs)
	}
	return fmt.Sprintf("%dm%02ds", minutes, secs)
}
