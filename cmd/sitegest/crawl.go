package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dgallion1/sitegest/internal/config"
	"github.com/dgallion1/sitegest/internal/pipeline"
)

// crawlFlags override crawl settings from the config for one invocation.
type crawlFlags struct {
	seeds       []string
	maxPages    int
	maxDepth    int
	chunkSize   int
	sameDomain  bool
	deduplicate bool
}

func (f *crawlFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.seeds, "seed", nil, "seed URL (repeatable, default $SEED_URLS)")
	fs.IntVar(&f.maxPages, "max-pages", 0, "maximum pages fetched per seed")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "maximum link hops from a seed")
	fs.IntVar(&f.chunkSize, "chunk-size", 0, "words per chunk")
	fs.BoolVar(&f.sameDomain, "same-domain", true, "only follow links on the seed's host")
	registerDedup(fs, &f.deduplicate)
}

func (f *crawlFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("seed") {
		cfg.Seeds = f.seeds
	}
	if fs.Changed("max-pages") {
		cfg.MaxPages = f.maxPages
	}
	if fs.Changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if fs.Changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if fs.Changed("same-domain") {
		cfg.SameDomain = f.sameDomain
	}
	applyDedup(fs, cfg, f.deduplicate)
}

func registerDedup(fs *pflag.FlagSet, v *bool) {
	fs.BoolVar(v, "deduplicate", true, "content-addressed corpus and ingestion ledger")
}

func applyDedup(fs *pflag.FlagSet, cfg *config.Config, v bool) {
	if fs.Changed("deduplicate") {
		cfg.Deduplicate = v
	}
}

func newCrawlCmd(a *app) *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the seed sites into the page and chunk stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cmd.Flags(), &a.cfg)
			if err := a.cfg.ValidateCrawl(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := a.openCorpus()
			if err != nil {
				return err
			}
			_, err = a.runCrawl(ctx, c, cmd.OutOrStdout())
			return err
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// runCrawl runs one crawl pass and prints its summary. Failed
// pages do not make the pass fail.
func (a *app) runCrawl(ctx context.Context, c *corpus, out io.Writer) (*pipeline.CrawlSummary, error) {
	sum, err := a.crawlDriver(c).Run(ctx)
	if sum != nil {
		printCrawlSummary(out, sum)
	}
	if err != nil {
		return sum, fmt.Errorf("crawl: %w", err)
	}
	return sum, nil
}

func printCrawlSummary(w io.Writer, s *pipeline.CrawlSummary) {
	fmt.Fprintf(w, "crawl (%s): %d pages seen, %d new, %d known, %d changed, %d empty\n",
		s.Mode, s.PagesSeen, s.PagesNew, s.PagesKnown, s.PagesChanged, s.PagesEmpty)
	fmt.Fprintf(w, "chunks: %d new, %d known\n", s.ChunksNew, s.ChunksKnown)
	for _, u := range s.FetchFailed {
		fmt.Fprintf(w, "  fetch failed: %s\n", u)
	}
	for _, k := range s.WriteFailed {
		fmt.Fprintf(w, "  write failed: %s\n", k)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
