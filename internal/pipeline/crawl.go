package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/sitegest/internal/chunker"
	"github.com/dgallion1/sitegest/internal/crawl"
	"github.com/dgallion1/sitegest/internal/identity"
	"github.com/dgallion1/sitegest/internal/normalize"
	"github.com/dgallion1/sitegest/internal/store"
)

const (
	ModeDedup = "deduplicate"
	ModeBasic = "basic"
)

// Source crawls a site from a seed URL, calling emit once per attempted URL.
type Source interface {
	Crawl(ctx context.Context, seed string, opts crawl.Options, emit func(crawl.Result)) error
}

// CrawlConfig controls a crawl pass.
type CrawlConfig struct {
	Seeds       []string
	Options     crawl.Options
	ChunkSize   int  // words per chunk; <= 0 uses chunker.DefaultChunkSize
	Deduplicate bool // false writes page_{n}/page_{n}_chunk_{m} files, overwriting
}

// CrawlDriver turns crawl results into page and chunk records.
type CrawlDriver struct {
	source Source
	pages  *store.PageStore
	chunks *store.ChunkStore
	cfg    CrawlConfig
	log    *slog.Logger
}

func NewCrawlDriver(source Source, pages *store.PageStore, chunks *store.ChunkStore, cfg CrawlConfig, log *slog.Logger) *CrawlDriver {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &CrawlDriver{source: source, pages: pages, chunks: chunks, cfg: cfg, log: log}
}

// crawlPass is the state of one Run call.
type crawlPass struct {
	*CrawlDriver
	sum   *CrawlSummary
	pageN int
}

// Run crawls every seed once. Per-URL and per-record failures are counted
// in the summary; Run only returns an error when ctx is cancelled, in
// which case the summary covers the pages handled so far.
func (d *CrawlDriver) Run(ctx context.Context) (*CrawlSummary, error) {
	p := &crawlPass{
		CrawlDriver: d,
		sum: &CrawlSummary{
			Mode:        d.mode(),
			FetchFailed: []string{},
			WriteFailed: []string{},
		},
	}

	for _, seed := range d.cfg.Seeds {
		if err := ctx.Err(); err != nil {
			p.sum.Log(d.log)
			return p.sum, err
		}
		p.sum.Seeds++
		log := d.log.With("seed", seed)
		log.Info("crawling", "max_pages", d.cfg.Options.MaxPages, "max_depth", d.cfg.Options.MaxDepth)

		err := d.source.Crawl(ctx, seed, d.cfg.Options, func(res crawl.Result) {
			if ctx.Err() != nil {
				return
			}
			p.handle(ctx, res)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.sum.Log(d.log)
				return p.sum, err
			}
			p.fetchFailed(&FetchError{URL: seed, Err: err})
		}
	}

	p.sum.Log(d.log)
	return p.sum, ctx.Err()
}

func (d *CrawlDriver) mode() string {
	if d.cfg.Deduplicate {
		return ModeDedup
	}
	return ModeBasic
}

func (p *crawlPass) handle(ctx context.Context, res crawl.Result) {
	p.sum.PagesSeen++
	p.pageN++

	if res.Err != nil {
		p.fetchFailed(&FetchError{URL: res.URL, Err: res.Err})
		return
	}
	page := res.Page
	if page == nil || strings.TrimSpace(page.Content) == "" {
		p.sum.PagesEmpty++
		p.log.Info("dropping page without content", "url", res.URL)
		return
	}

	if p.cfg.Deduplicate {
		p.handleDedup(ctx, page)
	} else {
		p.handleBasic(ctx, page)
	}
}

func (p *crawlPass) handleDedup(ctx context.Context, page *crawl.Page) {
	pageID := identity.PageID(page.URL)
	log := p.log.With("url", page.URL, "page_id", pageID)

	stored, err := p.pages.Get(pageID)
	switch {
	case err != nil:
		// Unreadable record: keep it untouched, still chunk the fresh content.
		log.Warn("read stored page", "error", err)
		p.sum.PagesKnown++
	case stored != nil:
		p.sum.PagesKnown++
		if identity.ChunkHash(stored.Content) != identity.ChunkHash(page.Content) {
			p.sum.PagesChanged++
			log.Info("page content changed since first crawl; keeping stored snapshot")
		}
	default:
		created, err := p.pages.Put(store.Page{
			PageID:  pageID,
			URL:     page.URL,
			Title:   page.Title,
			Content: page.Content,
		})
		switch {
		case err != nil:
			p.writeFailed(log, pageID, err)
		case created:
			p.sum.PagesNew++
			log.Debug("stored new page")
		default:
			p.sum.PagesKnown++
		}
	}

	for _, c := range chunker.Split(normalize.Display(page.Content), p.cfg.ChunkSize) {
		if ctx.Err() != nil {
			return
		}
		hash := identity.ChunkHash(c.Text)
		created, err := p.chunks.Put(store.Chunk{
			PageID:     pageID,
			URL:        page.URL,
			Title:      page.Title,
			ChunkIndex: c.Index,
			ChunkHash:  hash,
			Content:    c.Text,
		})
		switch {
		case err != nil:
			p.writeFailed(log, hash, err)
		case created:
			p.sum.ChunksNew++
		default:
			p.sum.ChunksKnown++
		}
	}
}

func (p *crawlPass) handleBasic(ctx context.Context, page *crawl.Page) {
	n := p.pageN
	title := page.Title
	if title == "" {
		title = fmt.Sprintf("Page %d", n)
	}
	log := p.log.With("url", page.URL, "page", n)

	if err := p.pages.PutIndexed(n, store.Page{URL: page.URL, Title: title, Content: page.Content}); err != nil {
		p.writeFailed(log, fmt.Sprintf("page_%d", n), err)
	} else {
		p.sum.PagesNew++
	}

	for _, c := range chunker.Split(normalize.Display(page.Content), p.cfg.ChunkSize) {
		if ctx.Err() != nil {
			return
		}
		err := p.chunks.PutIndexed(n, c.Index+1, store.Chunk{
			URL:        page.URL,
			Title:      title,
			ChunkIndex: c.Index,
			Content:    c.Text,
		})
		if err != nil {
			p.writeFailed(log, fmt.Sprintf("page_%d_chunk_%d", n, c.Index+1), err)
			continue
		}
		p.sum.ChunksNew++
	}
}

func (p *crawlPass) fetchFailed(err *FetchError) {
	p.sum.FetchFailed = append(p.sum.FetchFailed, err.URL)
	p.log.Warn("fetch failed", "url", err.URL, "error", err.Err)
}

func (p *crawlPass) writeFailed(log *slog.Logger, key string, err error) {
	p.sum.WriteFailed = append(p.sum.WriteFailed, key)
	log.Error("store write failed", "key", key, "error", err)
}
