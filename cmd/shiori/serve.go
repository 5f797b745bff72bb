package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Shiori/common/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP turn API and, when configured, the Matrix gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, logger, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("starting shiori", "version", version.Version, "commit", version.GitCommit)
			return a.Run(ctx)
		},
	}
}
