package main

import (
	"github.com/spf13/cobra"

	"DigestRanker/internal/app"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Collect and publish daily at the configured time",
		Long: `Serve runs collect followed by every topic once a day at scheduler.runAt in
scheduler.timezone, skipping weekends when configured, and exposes Prometheus
metrics on metrics.addr until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			application, err := app.New(ctx, cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
}
