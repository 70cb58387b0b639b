package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunKind names the pass a run executes.
type RunKind string

const (
	KindCrawl  RunKind = "crawl"
	KindIngest RunKind = "ingest"
)

// RunStatus represents the state of a queued pass.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run tracks one crawl or ingestion pass started through the API.
type Run struct {
	mu sync.Mutex

	ID     string
	Kind   RunKind
	Status RunStatus
	Error  string

	Crawl  *CrawlSummary
	Ingest *IngestSummary

	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRun creates a queued run with a fresh ID.
func NewRun(kind RunKind) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates run status atomically.
func (r *Run) SetStatus(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.Status = status
	r.UpdatedAt = now
	switch status {
	case StatusRunning:
		r.StartedAt = now
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		r.FinishedAt = now
	}
}

// Fail marks the run failed with err.
func (r *Run) Fail(err error) {
	r.mu.Lock()
	r.Error = err.Error()
	r.mu.Unlock()
	r.SetStatus(StatusFailed)
}

func (r *Run) setCrawl(s *CrawlSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Crawl = s
	r.UpdatedAt = time.Now()
}

func (r *Run) setIngest(s *IngestSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ingest = s
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID         string         `json:"run_id"`
	Kind       RunKind        `json:"kind"`
	Status     RunStatus      `json:"status"`
	Error      string         `json:"error,omitempty"`
	Crawl      *CrawlSummary  `json:"crawl,omitempty"`
	Ingest     *IngestSummary `json:"ingest,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := RunSnapshot{
		ID:        r.ID,
		Kind:      r.Kind,
		Status:    r.Status,
		Error:     r.Error,
		Crawl:     r.Crawl,
		Ingest:    r.Ingest,
		CreatedAt: r.CreatedAt,
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		snap.StartedAt = &t
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func (r *Run) updatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.UpdatedAt
}

func (r *Run) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.Status {
	case StatusQueued, StatusRunning:
		return false
	}
	return true
}

// RunStore is a thread-safe in-memory run registry with TTL eviction.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Cleanup removes finished runs that have not changed within the TTL.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		if run.finished() && now.Sub(run.updatedAt()) > s.ttl {
			delete(s.runs, id)
		}
	}
}
