package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"DigestRanker/internal/config"
	"DigestRanker/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "digestranker",
		Short: "Rank collected posts and deliver a daily digest",
		Long: `digestranker collects posts from configured feeds, ranks them with a rule
scorer and an LLM reranker, and delivers the top entries per topic.

Example usage:
  digestranker collect                 # Pull every configured feed
  digestranker run --topic geeknews    # Build and deliver one digest
  digestranker run --dry-run           # Preview every digest without delivering
  digestranker serve                   # Run daily and expose /metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $DIGEST_RANKER_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging level")

	cmd.AddCommand(newRunCmd(opts), newCollectCmd(opts), newServeCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, *slog.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadPath(o.configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
	} else {
		cfg = config.Load()
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, logging.New(cfg.Logging.Level), nil
}

func printError(w *os.File, err error) {
	fmt.Fprintln(w, errorColor.Sprint("error: ")+err.Error())
}
