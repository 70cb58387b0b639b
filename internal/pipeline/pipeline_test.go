package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/sitegest/internal/chunker"
	"github.com/dgallion1/sitegest/internal/crawl"
	"github.com/dgallion1/sitegest/internal/identity"
	"github.com/dgallion1/sitegest/internal/index"
	"github.com/dgallion1/sitegest/internal/ledger"
	"github.com/dgallion1/sitegest/internal/normalize"
	"github.com/dgallion1/sitegest/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	pages map[string][]crawl.Result
	errs  map[string]error
}

func (f *fakeSource) Crawl(ctx context.Context, seed string, opts crawl.Options, emit func(crawl.Result)) error {
	for _, r := range f.pages[seed] {
		emit(r)
	}
	return f.errs[seed]
}

func pageResult(url, title, content string) crawl.Result {
	return crawl.Result{URL: url, Page: &crawl.Page{URL: url, Title: title, Content: content}}
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []index.Document
	fail      func(doc index.Document, attempt int) error
	attempts  map[string]int
}

func (f *fakeSubmitter) Submit(ctx context.Context, doc index.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[doc.FileName]++
	if f.fail != nil {
		if err := f.fail(doc, f.attempts[doc.FileName]); err != nil {
			return err
		}
	}
	f.submitted = append(f.submitted, doc)
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type env struct {
	dir    string
	pages  *store.PageStore
	chunks *store.ChunkStore
}

func newEnv(t *testing.T, pagesDir, chunksDir string) env {
	t.Helper()
	dir := t.TempDir()
	pages, err := store.OpenPageStore(filepath.Join(dir, pagesDir))
	require.NoError(t, err)
	chunks, err := store.OpenChunkStore(filepath.Join(dir, chunksDir))
	require.NoError(t, err)
	return env{dir: dir, pages: pages, chunks: chunks}
}

func (e env) ledgerPath() string {
	return filepath.Join(e.dir, "ingested_hashes.json")
}

func (e env) ingestDriver(sub Submitter, dedup bool) *IngestDriver {
	d := NewIngestDriver(sub, e.chunks, IngestConfig{
		Deduplicate: dedup,
		LedgerPath:  e.ledgerPath(),
		LedgerWait:  100 * time.Millisecond,
	}, discard)
	d.backoff = func(int) time.Duration { return 0 }
	return d
}

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func dirCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n
}

func TestCrawlDriver_450WordPage(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://example.com/": {pageResult("https://example.com/", "Home", words("w", 450))},
	}}
	d := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"https://example.com/"}, ChunkSize: 200, Deduplicate: true,
	}, discard)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PagesNew)
	assert.Equal(t, 3, sum.ChunksNew)

	page, err := e.pages.Get(identity.PageID("https://example.com/"))
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "Home", page.Title)

	files, err := e.chunks.Files()
	require.NoError(t, err)
	require.Len(t, files, 3)

	sizes := map[int]int{}
	for _, name := range files {
		c, err := e.chunks.Read(name)
		require.NoError(t, err)
		assert.Equal(t, identity.ChunkHash(c.Content), c.ChunkHash)
		assert.Equal(t, c.ChunkHash+".json", name)
		assert.Equal(t, page.PageID, c.PageID)
		sizes[c.ChunkIndex] = len(strings.Fields(c.Content))
	}
	assert.Equal(t, map[int]int{0: 200, 1: 200, 2: 50}, sizes)
}

func TestCrawlDriver_SameURLTwice(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	content := words("x", 450)
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://example.com/": {
			pageResult("https://example.com/", "Home", content),
			pageResult("https://example.com/", "Home", content),
		},
	}}
	d := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"https://example.com/"}, Deduplicate: true,
	}, discard)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PagesNew)
	assert.Equal(t, 1, sum.PagesKnown)
	assert.Equal(t, 3, sum.ChunksNew)
	assert.Equal(t, 3, sum.ChunksKnown)
	assert.Equal(t, 1, dirCount(t, e.pages.Dir()))
	assert.Equal(t, 3, dirCount(t, e.chunks.Dir()))
}

func TestCrawlDriver_Idempotent(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://a.example/": {
			pageResult("https://a.example/", "A", words("a", 250)),
			pageResult("https://a.example/b", "B", words("b", 30)),
		},
	}}
	cfg := CrawlConfig{Seeds: []string{"https://a.example/"}, Deduplicate: true}

	_, err := NewCrawlDriver(src, e.pages, e.chunks, cfg, discard).Run(context.Background())
	require.NoError(t, err)
	before, err := e.chunks.Files()
	require.NoError(t, err)

	sum, err := NewCrawlDriver(src, e.pages, e.chunks, cfg, discard).Run(context.Background())
	require.NoError(t, err)
	after, err := e.chunks.Files()
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, 0, sum.PagesNew)
	assert.Equal(t, 0, sum.ChunksNew)
	assert.Equal(t, 2, sum.PagesKnown)
	assert.Equal(t, 3, sum.ChunksKnown)
}

func TestCrawlDriver_SharedChunksAcrossPages(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	footer := words("footer", 200)
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://a.example/": {
			pageResult("https://a.example/", "A", footer),
			pageResult("https://a.example/b", "B", strings.ToUpper(footer)+"\n\n"),
		},
	}}
	sum, err := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"https://a.example/"}, Deduplicate: true,
	}, discard).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.PagesNew)
	assert.Equal(t, 1, sum.ChunksNew)
	assert.Equal(t, 1, sum.ChunksKnown)
}

func TestCrawlDriver_FailuresAndEmptyPages(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	src := &fakeSource{
		pages: map[string][]crawl.Result{
			"https://a.example/": {
				{URL: "https://a.example/down", Err: errors.New("connection refused")},
				pageResult("https://a.example/empty", "Empty", "  \n "),
				pageResult("https://a.example/ok", "OK", "some words here"),
			},
		},
		errs: map[string]error{"ftp://bad": errors.New("invalid seed")},
	}
	sum, err := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"ftp://bad", "https://a.example/"}, Deduplicate: true,
	}, discard).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Seeds)
	assert.Equal(t, 3, sum.PagesSeen)
	assert.Equal(t, 1, sum.PagesEmpty)
	assert.Equal(t, 1, sum.PagesNew)
	assert.Equal(t, 1, sum.ChunksNew)
	assert.Equal(t, []string{"ftp://bad", "https://a.example/down"}, sum.FetchFailed)
	assert.True(t, sum.Partial())
}

func TestCrawlDriver_ChangedPageKeepsSnapshot(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	url := "https://a.example/news"
	first := &fakeSource{pages: map[string][]crawl.Result{url: {pageResult(url, "News", "old headline")}}}
	second := &fakeSource{pages: map[string][]crawl.Result{url: {pageResult(url, "News", "new headline")}}}
	cfg := CrawlConfig{Seeds: []string{url}, Deduplicate: true}

	_, err := NewCrawlDriver(first, e.pages, e.chunks, cfg, discard).Run(context.Background())
	require.NoError(t, err)
	sum, err := NewCrawlDriver(second, e.pages, e.chunks, cfg, discard).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.PagesChanged)
	assert.Equal(t, 1, sum.ChunksNew)

	page, err := e.pages.Get(identity.PageID(url))
	require.NoError(t, err)
	assert.Equal(t, "old headline", page.Content)
	assert.Equal(t, 2, dirCount(t, e.chunks.Dir()))
}

func TestCrawlDriver_BasicMode(t *testing.T) {
	e := newEnv(t, "raw_basic", "cleaned_basic")
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://a.example/": {
			pageResult("https://a.example/", "", words("a", 250)),
			pageResult("https://a.example/", "Again", words("a", 250)),
		},
	}}
	sum, err := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"https://a.example/"}, Deduplicate: false,
	}, discard).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeBasic, sum.Mode)
	assert.Equal(t, 2, sum.PagesNew)
	assert.Equal(t, 4, sum.ChunksNew)

	files, err := e.chunks.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"page_1_chunk_1.json", "page_1_chunk_2.json",
		"page_2_chunk_1.json", "page_2_chunk_2.json",
	}, files)

	c, err := e.chunks.Read("page_1_chunk_2.json")
	require.NoError(t, err)
	assert.Equal(t, "Page 1", c.Title)
	assert.Empty(t, c.ChunkHash)
	assert.Equal(t, 50, len(strings.Fields(c.Content)))
	assert.FileExists(t, filepath.Join(e.pages.Dir(), "page_2.json"))
}

func TestCrawlDriver_Cancelled(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://a.example/": {pageResult("https://a.example/", "A", "text")},
	}}
	_, err := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"https://a.example/"}, Deduplicate: true,
	}, discard).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, dirCount(t, e.chunks.Dir()))
}

// putChunks stores n distinct chunks and returns their hashes.
func putChunks(t *testing.T, chunks *store.ChunkStore, n int) []string {
	t.Helper()
	var hashes []string
	for i := range n {
		text := fmt.Sprintf("chunk number %d", i)
		h := identity.ChunkHash(text)
		_, err := chunks.Put(store.Chunk{URL: "https://a.example/", Title: "A", ChunkIndex: i, ChunkHash: h, Content: text})
		require.NoError(t, err)
		hashes = append(hashes, h)
	}
	return hashes
}

func writeLedger(t *testing.T, path string, hashes []string) {
	t.Helper()
	l, err := ledger.Open(context.Background(), path, time.Second)
	require.NoError(t, err)
	for _, h := range hashes {
		l.Add(h)
	}
	require.NoError(t, l.Save())
	require.NoError(t, l.Close())
}

func loadLedger(t *testing.T, path string) map[string]struct{} {
	t.Helper()
	res, err := ledger.Load(path)
	require.NoError(t, err)
	return res.Hashes
}

func TestIngestDriver_SkipsLedgerHashes(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	hashes := putChunks(t, e.chunks, 10)
	writeLedger(t, e.ledgerPath(), hashes[:4])

	sub := &fakeSubmitter{}
	sum, err := e.ingestDriver(sub, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, sub.count())
	assert.Equal(t, 6, sum.Ingested)
	assert.Equal(t, 4, sum.Skipped)
	assert.Equal(t, 10, sum.Total())
	assert.Equal(t, "loaded", sum.LedgerState)
	assert.Len(t, loadLedger(t, e.ledgerPath()), 10)

	for _, doc := range sub.submitted {
		assert.NotEmpty(t, doc.Metadata.ChunkHash)
		assert.Equal(t, "https://a.example/", doc.Metadata.URL)
		assert.FileExists(t, doc.FilePath)
	}
}

func TestIngestDriver_SecondPassSubmitsNothing(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 5)

	sub := &fakeSubmitter{}
	_, err := e.ingestDriver(sub, true).Run(context.Background())
	require.NoError(t, err)
	sum, err := e.ingestDriver(sub, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, sub.count())
	assert.Equal(t, 0, sum.Ingested)
	assert.Equal(t, 5, sum.Skipped)
}

func TestIngestDriver_FailedChunkRetriedNextPass(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	hashes := putChunks(t, e.chunks, 3)
	bad := hashes[1]

	failing := &fakeSubmitter{fail: func(doc index.Document, _ int) error {
		if doc.Metadata.ChunkHash == bad {
			return errors.New("bad request")
		}
		return nil
	}}
	sum, err := e.ingestDriver(failing, true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Ingested)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []string{bad + ".json"}, sum.FailedItems)
	assert.Equal(t, 1, failing.attempts[bad+".json"])

	led := loadLedger(t, e.ledgerPath())
	assert.Len(t, led, 2)
	assert.NotContains(t, led, bad)

	healthy := &fakeSubmitter{}
	sum, err = e.ingestDriver(healthy, true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ingested)
	require.Len(t, healthy.submitted, 1)
	assert.Equal(t, bad, healthy.submitted[0].Metadata.ChunkHash)
	assert.Len(t, loadLedger(t, e.ledgerPath()), 3)
}

func TestIngestDriver_RetriesTransientErrors(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 2)

	sub := &fakeSubmitter{fail: func(doc index.Document, attempt int) error {
		if attempt < 3 {
			return &index.RetryableError{StatusCode: 503, Message: "busy"}
		}
		return nil
	}}
	sum, err := e.ingestDriver(sub, true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Ingested)
	for _, n := range sub.attempts {
		assert.Equal(t, 3, n)
	}
}

func TestIngestDriver_GivesUpAfterMaxRetries(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 1)

	sub := &fakeSubmitter{fail: func(index.Document, int) error {
		return &index.RetryableError{StatusCode: 429}
	}}
	sum, err := e.ingestDriver(sub, true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	for _, n := range sub.attempts {
		assert.Equal(t, MaxRetries+1, n)
	}
}

func TestIngestDriver_CorruptLedgerSelfHeals(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 2)
	require.NoError(t, os.WriteFile(e.ledgerPath(), []byte("{not json"), 0o644))

	sum, err := e.ingestDriver(&fakeSubmitter{}, true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "corrupt", sum.LedgerState)
	assert.Equal(t, 2, sum.Ingested)

	res, err := ledger.Load(e.ledgerPath())
	require.NoError(t, err)
	assert.Equal(t, ledger.StateLoaded, res.State)
	assert.Len(t, res.Hashes, 2)
}

func TestIngestDriver_LedgerLocked(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 1)

	held, err := ledger.Open(context.Background(), e.ledgerPath(), time.Second)
	require.NoError(t, err)
	defer held.Close()

	sub := &fakeSubmitter{}
	_, err = e.ingestDriver(sub, true).Run(context.Background())
	assert.ErrorIs(t, err, ledger.ErrLocked)
	assert.Equal(t, 0, sub.count())
}

func TestIngestDriver_CancelSavesProgress(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &fakeSubmitter{}
	d := e.ingestDriver(sub, true)
	d.submitter = submitterFunc(func(ctx context.Context, doc index.Document) error {
		err := sub.Submit(ctx, doc)
		if sub.count() == 2 {
			cancel()
		}
		return err
	})

	sum, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.Ingested)
	assert.Len(t, loadLedger(t, e.ledgerPath()), 2)
}

func TestIngestDriver_FlushEvery(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 5)

	var seen []int
	sub := &fakeSubmitter{}
	d := NewIngestDriver(submitterFunc(func(ctx context.Context, doc index.Document) error {
		res, err := ledger.Load(e.ledgerPath())
		if err != nil {
			return err
		}
		seen = append(seen, len(res.Hashes))
		return sub.Submit(ctx, doc)
	}), e.chunks, IngestConfig{
		Deduplicate: true,
		LedgerPath:  e.ledgerPath(),
		LedgerWait:  100 * time.Millisecond,
		FlushEvery:  2,
	}, discard)

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 2, 2, 4}, seen)
	assert.Len(t, loadLedger(t, e.ledgerPath()), 5)
}

func TestIngestDriver_BasicModeSubmitsEverything(t *testing.T) {
	e := newEnv(t, "raw_basic", "cleaned_basic")
	for i := 1; i <= 3; i++ {
		require.NoError(t, e.chunks.PutIndexed(1, i, store.Chunk{URL: "https://a.example/", Title: "A", Content: "same text"}))
	}

	sub := &fakeSubmitter{}
	for range 2 {
		sum, err := e.ingestDriver(sub, false).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, sum.Ingested)
		assert.Empty(t, sum.LedgerState)
	}
	assert.Equal(t, 6, sub.count())
	assert.NoFileExists(t, e.ledgerPath())
	assert.Equal(t, identity.ChunkHash("same text"), sub.submitted[0].Metadata.ChunkHash)
}

type submitterFunc func(ctx context.Context, doc index.Document) error

func (f submitterFunc) Submit(ctx context.Context, doc index.Document) error {
	return f(ctx, doc)
}

func TestCrawlDriver_StoreWriteFailureIsCounted(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	require.NoError(t, os.RemoveAll(e.chunks.Dir()))

	content := words("w", 450)
	src := &fakeSource{pages: map[string][]crawl.Result{
		"https://example.com/": {pageResult("https://example.com/", "Home", content)},
	}}
	d := NewCrawlDriver(src, e.pages, e.chunks, CrawlConfig{
		Seeds: []string{"https://example.com/"}, ChunkSize: 200, Deduplicate: true,
	}, discard)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PagesNew)
	assert.Equal(t, 0, sum.ChunksNew)

	var want []string
	for _, c := range chunker.Split(normalize.Display(content), 200) {
		want = append(want, identity.ChunkHash(c.Text))
	}
	assert.Equal(t, want, sum.WriteFailed)
	assert.Empty(t, sum.FetchFailed)
	assert.True(t, sum.Partial())

	page, err := e.pages.Get(identity.PageID("https://example.com/"))
	require.NoError(t, err)
	assert.NotNil(t, page, "page write is independent of chunk writes")
}

func TestIngestDriver_LedgerSaveFailure(t *testing.T) {
	e := newEnv(t, "raw", "cleaned")
	putChunks(t, e.chunks, 3)
	stateDir := filepath.Join(e.dir, "state")
	ledgerPath := filepath.Join(stateDir, "ingested_hashes.json")

	sub := &fakeSubmitter{}
	d := NewIngestDriver(submitterFunc(func(ctx context.Context, doc index.Document) error {
		// The ledger directory disappears once the pass holds the lock.
		if err := os.RemoveAll(stateDir); err != nil {
			return err
		}
		return sub.Submit(ctx, doc)
	}), e.chunks, IngestConfig{
		Deduplicate: true,
		LedgerPath:  ledgerPath,
		LedgerWait:  100 * time.Millisecond,
		FlushEvery:  1,
	}, discard)

	sum, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save ledger")
	require.NotNil(t, sum)
	assert.Equal(t, 3, sum.Ingested, "flush failures do not stop the pass")
	assert.Equal(t, 3, sum.LedgerSize)

	res, err := ledger.Load(ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateAbsent, res.State)

	// Nothing was recorded, so the next pass submits everything again.
	again := &fakeSubmitter{}
	sum, err = NewIngestDriver(again, e.chunks, IngestConfig{
		Deduplicate: true,
		LedgerPath:  ledgerPath,
		LedgerWait:  100 * time.Millisecond,
	}, discard).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Ingested)
	assert.Equal(t, 3, again.count())
}
