package pipeline

import "log/slog"

// CrawlSummary counts what one crawl pass did.
type CrawlSummary struct {
	Mode         string   `json:"mode"`
	Seeds        int      `json:"seeds"`
	PagesSeen    int      `json:"pages_seen"`
	PagesNew     int      `json:"pages_new"`
	PagesKnown   int      `json:"pages_known"`
	PagesChanged int      `json:"pages_changed"`
	PagesEmpty   int      `json:"pages_empty"`
	ChunksNew    int      `json:"chunks_new"`
	ChunksKnown  int      `json:"chunks_known"`
	FetchFailed  []string `json:"fetch_failed"`
	WriteFailed  []string `json:"write_failed"`
}

// Partial reports whether any item failed.
func (s *CrawlSummary) Partial() bool {
	return len(s.FetchFailed) > 0 || len(s.WriteFailed) > 0
}

func (s *CrawlSummary) Log(log *slog.Logger) {
	log.Info("crawl summary",
		"mode", s.Mode,
		"seeds", s.Seeds,
		"pages_seen", s.PagesSeen,
		"pages_new", s.PagesNew,
		"pages_known", s.PagesKnown,
		"pages_changed", s.PagesChanged,
		"pages_empty", s.PagesEmpty,
		"chunks_new", s.ChunksNew,
		"chunks_known", s.ChunksKnown,
		"fetch_failed", len(s.FetchFailed),
		"write_failed", len(s.WriteFailed),
	)
	for _, u := range s.FetchFailed {
		log.Warn("fetch failed", "url", u)
	}
	for _, k := range s.WriteFailed {
		log.Warn("write failed", "key", k)
	}
}

// IngestSummary counts what one ingestion pass did.
type IngestSummary struct {
	Mode        string   `json:"mode"`
	Ingested    int      `json:"ingested"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	FailedItems []string `json:"failed_items"`
	LedgerState string   `json:"ledger_state,omitempty"`
	LedgerSize  int      `json:"ledger_size"`
}

func (s *IngestSummary) Total() int {
	return s.Ingested + s.Skipped + s.Failed
}

func (s *IngestSummary) Partial() bool {
	return s.Failed > 0
}

func (s *IngestSummary) Log(log *slog.Logger) {
	log.Info("ingest summary",
		"mode", s.Mode,
		"ingested", s.Ingested,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"total", s.Total(),
		"ledger_state", s.LedgerState,
		"ledger_size", s.LedgerSize,
	)
	for _, item := range s.FailedItems {
		log.Warn("ingest failed", "file", item)
	}
}
