package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON renders a command result (scan summaries, plans, queue listings)
// as indented JSON on the command's stdout. Commands switch to it when the
// --json flag is set so output stays scriptable.
func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
