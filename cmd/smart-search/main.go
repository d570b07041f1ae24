package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smart-search",
		Short: "Smart Search - decide when a chat turn needs a web search",
		Long: `smart-search evaluates chat messages with the search decision rules,
either locally or against a running smart-search-server, and manages the
server's live settings.

Run 'smart-search decide "quais as propinas 2025?"' to try the rules.
Run 'smart-search --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("server", "s", "", "server URL (env SMART_SEARCH_SERVER)")
	rootCmd.PersistentFlags().String("api-key", "", "server API key (env SMART_SEARCH_API_KEY)")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		decideCmd(),
		settingsCmd(),
		statsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
