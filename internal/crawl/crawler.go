// Package crawl fetches a site breadth-first from a seed URL and turns each
// page into text.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options bound a single crawl from one seed.
type Options struct {
	MaxPages   int  // total pages fetched; <= 0 means no limit
	MaxDepth   int  // link hops from the seed; 0 fetches the seed only
	SameDomain bool // follow only links on the seed's host
}

// Page is a fetched page. Title and Content may be empty.
type Page struct {
	URL         string
	Title       string
	Content     string
	ContentType string
}

// Result is the outcome for one URL: either Page or Err is set.
type Result struct {
	URL  string
	Page *Page
	Err  error
}

// Config tunes the crawler's resource use.
type Config struct {
	Concurrency int
	RateLimit   float64 // requests per second; 0 means unlimited
}

// Crawler walks a site level by level. Fetches within a level run
// concurrently; results are emitted in discovery order.
type Crawler struct {
	fetcher     *Fetcher
	converter   *Converter
	limiter     *rate.Limiter
	concurrency int
	log         *slog.Logger
}

// New creates a crawler.
func New(fetcher *Fetcher, converter *Converter, cfg Config, log *slog.Logger) *Crawler {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Crawler{
		fetcher:     fetcher,
		converter:   converter,
		limiter:     rate.NewLimiter(limit, burst),
		concurrency: cfg.Concurrency,
		log:         log,
	}
}

type fetched struct {
	page  *Page
	links []string
	err   error
}

// Crawl fetches seed and, up to opts.MaxDepth hops, the pages it links to.
// emit is called from the calling goroutine once per attempted URL. Crawl
// returns an error only for an invalid seed or a cancelled context.
func (c *Crawler) Crawl(ctx context.Context, seed string, opts Options, emit func(Result)) error {
	start, err := normalizeURL(seed)
	if err != nil {
		return fmt.Errorf("invalid seed %q: %w", seed, err)
	}
	startURL, _ := url.Parse(start)

	visited := map[string]bool{start: true}
	level := []string{start}
	emitted := 0

	for depth := 0; len(level) > 0 && depth <= opts.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.MaxPages > 0 {
			remaining := opts.MaxPages - emitted
			if remaining <= 0 {
				break
			}
			if len(level) > remaining {
				level = level[:remaining]
			}
		}

		c.log.Debug("crawl level", "seed", start, "depth", depth, "urls", len(level))
		results := c.fetchLevel(ctx, level)
		if err := ctx.Err(); err != nil {
			return err
		}

		var next []string
		for i, u := range level {
			r := results[i]
			emit(Result{URL: u, Page: r.page, Err: r.err})
			emitted++

			if depth == opts.MaxDepth || r.err != nil {
				continue
			}
			for _, link := range r.links {
				if visited[link] {
					continue
				}
				if opts.SameDomain && !sameHost(startURL, link) {
					continue
				}
				visited[link] = true
				next = append(next, link)
			}
		}
		level = next
	}
	return nil
}

func (c *Crawler) fetchLevel(ctx context.Context, urls []string) []fetched {
	results := make([]fetched, len(urls))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = c.fetchOne(ctx, u)
			return nil
		})
	}
	g.Wait()
	return results
}

func (c *Crawler) fetchOne(ctx context.Context, u string) fetched {
	if err := c.limiter.Wait(ctx); err != nil {
		return fetched{err: err}
	}

	resp, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		return fetched{err: err}
	}

	doc, err := c.converter.Convert(resp.Body, resp.ContentType, resp.URL)
	if err != nil {
		return fetched{err: fmt.Errorf("convert %s: %w", resp.ContentType, err)}
	}

	c.log.Debug("fetched page", "url", u, "content_type", resp.ContentType,
		"bytes", len(resp.Body), "links", len(doc.Links))

	return fetched{
		page: &Page{
			URL:         u,
			Title:       doc.Title,
			Content:     doc.Content,
			ContentType: resp.ContentType,
		},
		links: doc.Links,
	}
}

var errUnsupportedScheme = errors.New("only http and https URLs are crawled")

// normalizeURL validates raw and strips its fragment.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errUnsupportedScheme
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs, err := normalizeURL(base.ResolveReference(ref).String())
	if err != nil {
		return "", false
	}
	return abs, true
}

func sameHost(start *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), start.Hostname())
}
