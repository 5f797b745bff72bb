package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <affairID>...",
		Short: "Build the passage index of one or more affairs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, affairID := range args {
				stats, err := a.Indexer().Build(cmd.Context(), affairID)
				if err != nil {
					return fmt.Errorf("index %s: %w", affairID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents, %d passages, %d skipped in %s\n",
					stats.AffairID, stats.Documents, stats.Passages, stats.Skipped, stats.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
}
