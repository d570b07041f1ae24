package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daily decision statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := requireClient(cmd)
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			stats, err := c.Stats(cmd.Context(), days)
			if err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTOTAL\tSEARCH\tRATE\tPREFETCHED")
			for _, d := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\t%d\n",
					d.Date, d.Total, d.Enabled, d.EnabledRate()*100, d.Prefetched)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("days", "d", 7, "number of days")
	return cmd
}
