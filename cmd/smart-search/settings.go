package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lusochat/smart-search/internal/decision"
	"github.com/lusochat/smart-search/internal/settings"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change the server's live settings",
	}

	cmd.AddCommand(
		settingsGetCmd(),
		settingsSetCmd(),
		settingsResetCmd(),
		settingsHistoryCmd(),
	)
	return cmd
}

func settingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the live settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := requireClient(cmd)
			if err != nil {
				return err
			}
			v, err := c.GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			return printValves(cmd, v)
		},
	}
}

func settingsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the live settings",
		Long: `Send a settings change. Fields left out keep their current values.

Examples:
  smart-search settings set --mode off
  smart-search settings set --file rules.yaml
  smart-search settings set --threshold 2 --status=false`,
		RunE: runSettingsSet,
	}

	cmd.Flags().StringP("file", "f", "", "YAML or JSON settings document")
	cmd.Flags().String("mode", "", "mode (off, auto, always_on)")
	cmd.Flags().Int("threshold", 0, "score threshold")
	cmd.Flags().Int("aggressiveness", 0, "score bias")
	cmd.Flags().Bool("debug", false, "attach the decision reason to requests")
	cmd.Flags().Bool("status", true, "emit status lines in the chat")
	cmd.Flags().Bool("prefetch", false, "prefetch results when search is enabled")
	cmd.Flags().String("changed-by", "", "actor recorded in the audit log")

	return cmd
}

func runSettingsSet(cmd *cobra.Command, _ []string) error {
	patch, err := buildPatch(cmd)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("nothing to change: pass --file or a setting flag")
	}

	c, err := requireClient(cmd)
	if err != nil {
		return err
	}
	v, err := c.UpdateSettings(cmd.Context(), patch)
	if err != nil {
		return err
	}
	return printValves(cmd, v)
}

// buildPatch merges the settings file with the individual flags; flags win.
func buildPatch(cmd *cobra.Command) (map[string]any, error) {
	patch := map[string]any{}

	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = json.Unmarshal(data, &patch)
		default:
			err = yaml.Unmarshal(data, &patch)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid settings file: %w", err)
		}
	}

	rules, _ := patch["rules"].(map[string]any)
	if rules == nil {
		rules = map[string]any{}
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		rules["mode"] = string(decision.ParseMode(mode))
	}
	if flags.Changed("threshold") {
		rules["threshold"], _ = flags.GetInt("threshold")
	}
	if flags.Changed("aggressiveness") {
		rules["aggressiveness"], _ = flags.GetInt("aggressiveness")
	}
	if flags.Changed("debug") {
		rules["debug"], _ = flags.GetBool("debug")
	}
	if flags.Changed("status") {
		patch["status_enabled"], _ = flags.GetBool("status")
	}
	if flags.Changed("prefetch") {
		patch["prefetch"], _ = flags.GetBool("prefetch")
	}

	if len(rules) > 0 {
		patch["rules"] = rules
	}
	return patch, nil
}

func settingsResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the configured defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := requireClient(cmd)
			if err != nil {
				return err
			}
			v, err := c.ResetSettings(cmd.Context())
			if err != nil {
				return err
			}
			return printValves(cmd, v)
		},
	}
	cmd.Flags().String("changed-by", "", "actor recorded in the audit log")
	return cmd
}

func settingsHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent settings changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := requireClient(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := c.SettingsHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			printHistory(cmd, entries)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of entries")
	return cmd
}

func printValves(cmd *cobra.Command, v *settings.Valves) error {
	if outputFormat(cmd) == "json" {
		return printJSON(cmd.OutOrStdout(), v)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func printHistory(cmd *cobra.Command, entries []settings.AuditEntry) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tTIME\tBY\tCHANGES")
	for _, e := range entries {
		fields := make([]string, 0, len(e.Changes))
		for _, ch := range e.Changes {
			fields = append(fields, ch.Field)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			e.Version, e.Timestamp.Format("2006-01-02 15:04:05"), e.ChangedBy, strings.Join(fields, ", "))
	}
	_ = tw.Flush()
}
