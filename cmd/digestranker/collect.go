package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"DigestRanker/internal/app"
)

func newCollectCmd(root *rootOptions) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Pull configured feeds into the candidate store",
		Args:  cobra.NoArgs,
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

			n, err := application.Collect(ctx, topic)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d new candidates\n", okColor.Sprint("collected"), n)
			return err
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "collect a single topic (default: all topics)")
	return cmd
}
