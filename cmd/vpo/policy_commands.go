package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vpo/internal/policy"
)

func newPolicyCommand(ctx *commandContext) *cobra.Command {
	policyCmd := &cobra.Command{
		Use:         "policy",
		Short:       "Policy file utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	policyCmd.AddCommand(newPolicyValidateCommand(ctx))
	policyCmd.AddCommand(newPolicyShowCommand(ctx))
	return policyCmd
}

func newPolicyValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{
					"valid":          true,
					"name":           pol.Name,
					"schema_version": pol.SchemaVersion,
					"phases":         pol.EffectivePhases(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Policy %s (schema %d) is valid\n", pol.Name, pol.SchemaVersion)
			fmt.Fprintf(out, "Phases: %s\n", strings.Join(pol.EffectivePhases(), ", "))
			return nil
		},
	}
}

func newPolicyShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Display a policy's effective configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, pol)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:           %s\n", pol.Name)
			fmt.Fprintf(out, "Schema version: %d\n", pol.SchemaVersion)
			fmt.Fprintf(out, "Audio prefs:    %s\n", strings.Join(pol.Config.AudioLanguagePreference, ", "))
			fmt.Fprintf(out, "Subtitle prefs: %s\n", strings.Join(pol.Config.SubtitleLanguagePreference, ", "))
			fmt.Fprintf(out, "Remove tracks:  %s\n", yesNo(pol.Config.RemoveUnpreferredTracks))

			rows := make([][]string, 0, len(pol.EffectivePhases()))
			for _, name := range pol.EffectivePhases() {
				phase := pol.PhaseByName(name)
				rules := 0
				gates := 0
				extras := make([]string, 0, 4)
				if phase != nil {
					if phase.Rules != nil {
						rules = len(phase.Rules.Items)
					}
					gates = len(phase.SkipWhen)
					if phase.Transcode != nil {
						extras = append(extras, "transcode")
					}
					if len(phase.Synthesize) > 0 {
						extras = append(extras, "synthesize")
					}
					if phase.Move != nil {
						extras = append(extras, "move")
					}
					if phase.FileTimestamp != nil {
						extras = append(extras, "timestamp")
					}
				}
				rows = append(rows, []string{
					name,
					pol.EffectiveOnError(phase),
					strconv.Itoa(rules),
					strconv.Itoa(gates),
					strings.Join(extras, ", "),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Phase", "On error", "Rules", "Gates", "Settings"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
