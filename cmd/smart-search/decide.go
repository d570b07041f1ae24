package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lusochat/smart-search/internal/config"
	"github.com/lusochat/smart-search/internal/decision"
)

func decideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide [message]",
		Short: "Decide whether a message needs a web search",
		Long: `Evaluate a user message with the decision rules. The message is read
from the arguments, or from stdin when none are given.

Without --server the rules come from the config file and run locally.
With --server the running server decides with its live settings.

Examples:
  smart-search decide "qual o prazo de candidatura 2025?"
  smart-search decide --mode always_on "olá"
  smart-search decide --messages chat.json --format json
  echo "propinas" | smart-search -s http://localhost:8090 decide`,
		RunE: runDecide,
	}

	cmd.Flags().String("messages", "", "JSON file with a full message list")
	cmd.Flags().String("mode", "", "override the mode for this call (off, auto, always_on)")
	cmd.Flags().Bool("debug", false, "include the decision reason in text output")

	return cmd
}

func runDecide(cmd *cobra.Command, args []string) error {
	messages, err := readTranscript(cmd, args)
	if err != nil {
		return err
	}
	mode, _ := cmd.Flags().GetString("mode")
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "" && decision.ParseMode(mode) != decision.Mode(mode) {
		return fmt.Errorf("invalid mode: %s (must be off, auto, or always_on)", mode)
	}

	var d decision.Decision
	if c := newClient(cmd); c != nil {
		var override any
		if mode != "" {
			override = map[string]string{"mode": mode}
		}
		resp, err := c.Decide(cmd.Context(), messages, override)
		if err != nil {
			return err
		}
		d = *resp
	} else {
		configPath, _ := cmd.Flags().GetString("config")
		appCfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		rules := appCfg.DecisionConfig()
		if mode != "" {
			rules.Mode = decision.Mode(mode)
		}
		d = decision.Decide(messages, rules)
	}

	if outputFormat(cmd) == "json" {
		return printJSON(cmd.OutOrStdout(), d)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	w := cmd.OutOrStdout()
	if d.Enabled {
		fmt.Fprintf(w, "search: yes (%d results, category %s)\n", d.ResultCount, d.Category)
	} else {
		fmt.Fprintln(w, "search: no")
	}
	if debug || !d.Enabled {
		fmt.Fprintf(w, "reason: %s\n", d.Reason)
	}
	return nil
}

// readTranscript builds the messages from --messages, the arguments, or
// stdin, in that order.
func readTranscript(cmd *cobra.Command, args []string) (decision.Transcript, error) {
	if path, _ := cmd.Flags().GetString("messages"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read messages: %w", err)
		}
		var t decision.Transcript
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("invalid messages file: %w", err)
		}
		return t, nil
	}

	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return nil, fmt.Errorf("no message given")
	}

	return decision.Transcript{{
		Role:    decision.RoleUser,
		Content: decision.TextContent(text),
	}}, nil
}
