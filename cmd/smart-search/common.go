package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lusochat/smart-search/internal/client"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("smart-search %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)

			if c := newClient(cmd); c != nil {
				v, err := c.Version(cmd.Context())
				if err != nil {
					return fmt.Errorf("server %s: %w", c.BaseURL(), err)
				}
				fmt.Printf("server %s (%s, %s)\n", v.Version, v.GitCommit, v.GoVersion)
			}
			return nil
		},
	}
}

// newClient returns nil when no server is configured.
func newClient(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("server")
	if url == "" {
		url = os.Getenv("SMART_SEARCH_SERVER")
	}
	if url == "" {
		return nil
	}

	key, _ := cmd.Flags().GetString("api-key")
	if key == "" {
		key = os.Getenv("SMART_SEARCH_API_KEY")
	}

	cfg := client.DefaultConfig()
	cfg.BaseURL = url
	cfg.APIKey = key
	if f := cmd.Flags().Lookup("changed-by"); f != nil && f.Value.String() != "" {
		cfg.ChangedBy = f.Value.String()
	} else if user := os.Getenv("USER"); user != "" {
		cfg.ChangedBy = "cli:" + user
	}
	return client.New(cfg)
}

func requireClient(cmd *cobra.Command) (*client.Client, error) {
	c := newClient(cmd)
	if c == nil {
		return nil, fmt.Errorf("no server configured: pass --server or set SMART_SEARCH_SERVER")
	}
	return c, nil
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("format")
	return format
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
