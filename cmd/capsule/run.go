package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/capsule/internal/app"
	"github.com/samvad-hq/capsule/internal/config"
	"github.com/samvad-hq/capsule/internal/logger"
	"github.com/samvad-hq/capsule/pkg/httpclient"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the configured request set once or on an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := logger.Init(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Close()

			logger.InfoObj("capsule starting", "config", cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log, httpclient.WithLogger(log.Sugar()))
			if err != nil {
				logger.ErrorObj("failed to initialize app", "error", err)
				return err
			}
			if err := a.Run(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			return nil
		},
	}
}
