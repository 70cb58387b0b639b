package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dgallion1/sitegest/internal/config"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		flags crawlFlags
		chat  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl, then ingest, then optionally chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cmd.Flags(), &a.cfg)
			validators := []func() error{a.cfg.ValidateCrawl, a.cfg.ValidateIngest}
			if chat {
				validators = append(validators, a.cfg.ValidateAsk)
			}
			if err := validateAll(validators...); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := a.openCorpus()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := a.runCrawl(ctx, c, out); err != nil {
				return err
			}
			if _, err := a.runIngest(ctx, c, out); err != nil {
				return err
			}
			if !chat {
				return nil
			}
			return a.runChat(ctx, cmd.InOrStdin(), out)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&chat, "chat", false, "start the chat loop after ingestion")
	return cmd
}

// validateAll merges the problems of several validators into one error.
func validateAll(validators ...func() error) error {
	var problems []string
	seen := make(map[string]bool)
	for _, validate := range validators {
		err := validate()
		if err == nil {
			continue
		}
		var ce *config.ConfigError
		if !errors.As(err, &ce) {
			return err
		}
		for _, p := range ce.Problems {
			if !seen[p] {
				seen[p] = true
				problems = append(problems, p)
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &config.ConfigError{Problems: problems}
}
