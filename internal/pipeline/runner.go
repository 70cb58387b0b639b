package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CrawlPass runs one crawl pass.
type CrawlPass interface {
	Run(ctx context.Context) (*CrawlSummary, error)
}

// IngestPass runs one ingestion pass.
type IngestPass interface {
	Run(ctx context.Context) (*IngestSummary, error)
}

var (
	// ErrQueueFull is returned by Submit when no more runs can be queued.
	ErrQueueFull = errors.New("run queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("runner is stopped")
)

// Runner executes queued passes one at a time, so the stores and the
// ledger only ever have a single writer in this process.
type Runner struct {
	runs   *RunStore
	queue  chan *Run
	crawl  CrawlPass
	ingest IngestPass
	log    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // guards stopped and sends on queue
	stopped bool
}

func NewRunner(crawl CrawlPass, ingest IngestPass, queueSize int, runTTL time.Duration, log *slog.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		runs:   NewRunStore(runTTL),
		queue:  make(chan *Run, queueSize),
		crawl:  crawl,
		ingest: ingest,
		log:    log,
	}
}

// Start launches the worker goroutine.
func (r *Runner) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.cancelQueued()
		for {
			select {
			case <-workerCtx.Done():
				return
			case run, ok := <-r.queue:
				if !ok {
					return
				}
				if workerCtx.Err() != nil {
					run.SetStatus(StatusCancelled)
					return
				}
				r.execute(workerCtx, run)
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				r.runs.Cleanup()
			}
		}
	}()
}

// Stop cancels the active pass and waits for the worker to exit. The
// ingestion pass saves its ledger before returning. Runs still queued are
// marked cancelled. Stop may be called more than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.cancelQueued()
}

// cancelQueued marks every run left in the queue cancelled.
func (r *Runner) cancelQueued() {
	for {
		select {
		case run, ok := <-r.queue:
			if !ok {
				return
			}
			run.SetStatus(StatusCancelled)
			r.log.Info("queued run cancelled", "run_id", run.ID, "kind", run.Kind)
		default:
			return
		}
	}
}

// Submit queues a pass of the given kind.
func (r *Runner) Submit(kind RunKind) (*Run, error) {
	switch kind {
	case KindCrawl, KindIngest:
	default:
		return nil, fmt.Errorf("unknown run kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrStopped
	}

	run := NewRun(kind)
	r.runs.Put(run)
	select {
	case r.queue <- run:
		return run, nil
	default:
		run.Fail(ErrQueueFull)
		return run, fmt.Errorf("%w (%d)", ErrQueueFull, cap(r.queue))
	}
}

// GetRun returns a run by ID.
func (r *Runner) GetRun(id string) *Run {
	return r.runs.Get(id)
}

// QueueDepth returns current queue depth.
func (r *Runner) QueueDepth() int {
	return len(r.queue)
}

func (r *Runner) execute(ctx context.Context, run *Run) {
	log := r.log.With("run_id", run.ID, "kind", run.Kind)
	log.Info("run started")
	run.SetStatus(StatusRunning)

	var (
		partial bool
		err     error
	)
	switch run.Kind {
	case KindCrawl:
		var sum *CrawlSummary
		sum, err = r.crawl.Run(ctx)
		if sum != nil {
			run.setCrawl(sum)
			partial = sum.Partial()
		}
	case KindIngest:
		var sum *IngestSummary
		sum, err = r.ingest.Run(ctx)
		if sum != nil {
			run.setIngest(sum)
			partial = sum.Partial()
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		run.SetStatus(StatusCancelled)
	case err != nil:
		run.Fail(err)
		log.Error("run failed", "error", err)
		return
	case partial:
		run.SetStatus(StatusPartial)
	default:
		run.SetStatus(StatusCompleted)
	}
	log.Info("run finished", "status", run.Snapshot().Status)
}
