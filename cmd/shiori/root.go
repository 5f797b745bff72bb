package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Shiori/internal/shiori/app"
	"github.com/bdobrica/Shiori/internal/shiori/config"
	"github.com/bdobrica/Shiori/internal/shiori/observability"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "shiori",
		Short:         "Conversational context and retrieval engine for the project portal assistant",
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Logging level: debug|info|warn|error (overrides LOG_LEVEL).")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Logging format: text|json (overrides LOG_FORMAT).")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newIndexCmd(opts),
		newAffairsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and installs the logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	logger := observability.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	return cfg, logger, nil
}

// openApp loads the configuration and builds the engine.
func (o *rootOptions) openApp(ctx context.Context) (*app.App, *slog.Logger, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize shiori: %w", err)
	}
	return a, logger, nil
}
