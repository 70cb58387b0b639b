package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/sitegest/internal/identity"
	"github.com/dgallion1/sitegest/internal/index"
	"github.com/dgallion1/sitegest/internal/ledger"
	"github.com/dgallion1/sitegest/internal/store"
)

// Submitter sends one chunk document to the index.
type Submitter interface {
	Submit(ctx context.Context, doc index.Document) error
}

// IngestConfig controls an ingestion pass.
type IngestConfig struct {
	Deduplicate bool          // false submits every chunk file and keeps no ledger
	LedgerPath  string        // required when Deduplicate is set
	LedgerWait  time.Duration // how long to wait for another pass to release the ledger
	FlushEvery  int           // save the ledger after this many successes; 0 saves only at the end
	MaxRetries  int           // retries of a retryable submit error; 0 uses MaxRetries, < 0 disables
}

// IngestDriver submits stored chunks that the ledger has not seen.
type IngestDriver struct {
	submitter Submitter
	chunks    *store.ChunkStore
	cfg       IngestConfig
	log       *slog.Logger
	backoff   func(attempt int) time.Duration
}

func NewIngestDriver(submitter Submitter, chunks *store.ChunkStore, cfg IngestConfig, log *slog.Logger) *IngestDriver {
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = MaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &IngestDriver{
		submitter: submitter,
		chunks:    chunks,
		cfg:       cfg,
		log:       log,
		backoff:   Backoff,
	}
}

// Run walks the chunk store in file-name order. Successful submissions
// are added to the ledger, which is saved at the end of the pass even when
// ctx is cancelled. Per-chunk failures are counted, not returned.
func (d *IngestDriver) Run(ctx context.Context) (*IngestSummary, error) {
	sum := &IngestSummary{FailedItems: []string{}, Mode: ModeBasic}

	var led *ledger.Ledger
	if d.cfg.Deduplicate {
		sum.Mode = ModeDedup
		var err error
		led, err = ledger.Open(ctx, d.cfg.LedgerPath, d.cfg.LedgerWait)
		if err != nil {
			return nil, err
		}
		defer led.Close()

		loaded := led.Loaded()
		sum.LedgerState = loaded.State.String()
		if loaded.Corrupt != nil {
			d.log.Warn("ledger unreadable, starting empty", "path", d.cfg.LedgerPath, "error", loaded.Corrupt)
		}
		d.log.Info("ledger loaded", "path", d.cfg.LedgerPath, "state", sum.LedgerState, "hashes", led.Len())
	}

	files, err := d.chunks.Files()
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	runErr := d.ingestFiles(ctx, files, led, sum)

	if led != nil {
		if err := led.Save(); err != nil {
			sum.LedgerSize = led.Len()
			sum.Log(d.log)
			return sum, fmt.Errorf("save ledger: %w", err)
		}
		sum.LedgerSize = led.Len()
	}
	sum.Log(d.log)
	return sum, runErr
}

func (d *IngestDriver) ingestFiles(ctx context.Context, files []string, led *ledger.Ledger, sum *IngestSummary) error {
	sinceFlush := 0
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := d.log.With("file", name)

		c, err := d.chunks.Read(name)
		if err != nil {
			d.failed(log, sum, &SubmitError{File: name, Err: fmt.Errorf("read chunk: %w", err)})
			continue
		}
		hash := c.ChunkHash
		if hash == "" {
			hash = identity.ChunkHash(c.Content)
		}
		log = log.With("chunk_hash", hash)

		if led != nil && led.Contains(hash) {
			sum.Skipped++
			log.Debug("already ingested, skipping")
			continue
		}

		err = d.submit(ctx, log, index.Document{
			FileName: name,
			FilePath: d.chunks.Path(name),
			Metadata: index.Metadata{
				URL:        c.URL,
				Title:      c.Title,
				PageID:     c.PageID,
				ChunkHash:  hash,
				ChunkIndex: c.ChunkIndex,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.failed(log, sum, &SubmitError{File: name, Hash: hash, Err: err})
			continue
		}

		sum.Ingested++
		log.Info("ingested")
		if led == nil {
			continue
		}
		led.Add(hash)
		sinceFlush++
		if d.cfg.FlushEvery > 0 && sinceFlush >= d.cfg.FlushEvery {
			if err := led.Save(); err != nil {
				log.Warn("ledger flush failed", "error", err)
			} else {
				sinceFlush = 0
			}
		}
	}
	return nil
}

func (d *IngestDriver) submit(ctx context.Context, log *slog.Logger, doc index.Document) error {
	return retry(ctx, d.cfg.MaxRetries, d.backoff,
		func(attempt int, wait time.Duration, err error) {
			log.Warn("retrying submit", "attempt", attempt+1, "wait", wait, "error", err)
		},
		func() error { return d.submitter.Submit(ctx, doc) },
	)
}

func (d *IngestDriver) failed(log *slog.Logger, sum *IngestSummary, err *SubmitError) {
	sum.Failed++
	sum.FailedItems = append(sum.FailedItems, err.File)
	log.Error("ingest failed", "error", err.Err)
}
