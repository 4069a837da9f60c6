package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"DigestRanker/internal/app"
	"DigestRanker/internal/domain"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		topic      string
		dryRun     bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and deliver digests once",
		Long: `Run the ranking pipeline once for one topic or for all of them.

Examples:
  digestranker run                      # Every topic
  digestranker run --topic geeknews     # One topic
  digestranker run --dry-run            # Preview without delivering or marking
  digestranker run --dry-run --json     # Machine-readable preview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if topic != "" {
				if _, ok := cfg.Topic(topic); !ok {
					return fmt.Errorf("unknown topic %q", topic)
				}
			}

			ctx := cmd.Context()
			application, err := app.New(ctx, cfg, logger, app.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer application.Close()

			reports, runErr := application.Run(ctx, topic)

			out := cmd.OutOrStdout()
			for _, r := range reports {
				if r.Stage < domain.StageFinalized {
					continue
				}
				if jsonOutput {
					payload, err := application.Formatter().JSON(r.Digest)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(payload))
					continue
				}
				printReport(out, application.Formatter(), r, dryRun)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "run a single topic (default: all topics)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build digests without delivering or marking them published")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print digests as JSON")
	return cmd
}
