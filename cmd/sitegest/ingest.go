package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/sitegest/internal/pipeline"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		deduplicate bool
		flushEvery  int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit stored chunks the ledger has not seen to the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyDedup(cmd.Flags(), &a.cfg, deduplicate)
			if cmd.Flags().Changed("flush-every") {
				a.cfg.LedgerFlushEvery = flushEvery
			}
			if err := a.cfg.ValidateIngest(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := a.openCorpus()
			if err != nil {
				return err
			}
			_, err = a.runIngest(ctx, c, cmd.OutOrStdout())
			return err
		},
	}
	registerDedup(cmd.Flags(), &deduplicate)
	cmd.Flags().IntVar(&flushEvery, "flush-every", 0, "save the ledger after this many submissions")
	return cmd
}

func (a *app) runIngest(ctx context.Context, c *corpus, out io.Writer) (*pipeline.IngestSummary, error) {
	client := a.indexClient()
	defer client.Close()

	sum, err := a.ingestDriver(client, c).Run(ctx)
	if sum != nil {
		printIngestSummary(out, sum)
	}
	if err != nil {
		return sum, fmt.Errorf("ingest: %w", err)
	}
	return sum, nil
}

func printIngestSummary(w io.Writer, s *pipeline.IngestSummary) {
	fmt.Fprintf(w, "ingest (%s): %d ingested, %d skipped, %d failed\n",
		s.Mode, s.Ingested, s.Skipped, s.Failed)
	if s.LedgerState != "" {
		fmt.Fprintf(w, "ledger: %s, %d hashes\n", s.LedgerState, s.LedgerSize)
	}
	for _, item := range s.FailedItems {
		fmt.Fprintf(w, "  failed: %s\n", item)
	}
}
