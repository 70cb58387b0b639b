package main

import (
	"fmt"

	"github.com/dgallion1/sitegest/internal/crawl"
	"github.com/dgallion1/sitegest/internal/index"
	"github.com/dgallion1/sitegest/internal/pipeline"
	"github.com/dgallion1/sitegest/internal/store"
)

type corpus struct {
	pages  *store.PageStore
	chunks *store.ChunkStore
}

func (a *app) openCorpus() (*corpus, error) {
	pages, err := store.OpenPageStore(a.cfg.PagesDir())
	if err != nil {
		return nil, fmt.Errorf("open page store: %w", err)
	}
	chunks, err := store.OpenChunkStore(a.cfg.ChunksDir())
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	return &corpus{pages: pages, chunks: chunks}, nil
}

func (a *app) crawlDriver(c *corpus) *pipeline.CrawlDriver {
	cfg := a.cfg
	fetcher := crawl.NewFetcher(cfg.FetchTimeout, cfg.UserAgent, cfg.MaxContentBytes)
	crawler := crawl.New(fetcher, crawl.NewConverter(cfg.ContentFormat), crawl.Config{
		Concurrency: cfg.CrawlConcurrency,
		RateLimit:   cfg.CrawlRateLimit,
	}, a.log)

	return pipeline.NewCrawlDriver(crawler, c.pages, c.chunks, pipeline.CrawlConfig{
		Seeds: cfg.Seeds,
		Options: crawl.Options{
			MaxPages:   cfg.MaxPages,
			MaxDepth:   cfg.MaxDepth,
			SameDomain: cfg.SameDomain,
		},
		ChunkSize:   cfg.ChunkSize,
		Deduplicate: cfg.Deduplicate,
	}, a.log)
}

func (a *app) indexClient() *index.Client {
	return index.NewClient(a.cfg.GroundXURL, a.cfg.GroundXAPIKey, a.cfg.GroundXBucketID, a.cfg.IngestTimeout)
}

func (a *app) ingestDriver(sub pipeline.Submitter, c *corpus) *pipeline.IngestDriver {
	return pipeline.NewIngestDriver(sub, c.chunks, pipeline.IngestConfig{
		Deduplicate: a.cfg.Deduplicate,
		LedgerPath:  a.cfg.LedgerPath(),
		LedgerWait:  a.cfg.LedgerLockWait,
		FlushEvery:  a.cfg.LedgerFlushEvery,
	}, a.log)
}
