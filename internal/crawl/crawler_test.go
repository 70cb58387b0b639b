package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(title, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<html><head><title>%s</title></head><body>%s</body></html>", title, body)
		}
	}
	mux.HandleFunc("/{$}", page("Home", `<p>Welcome home.</p>
		<a href="/a">A</a> <a href="/a#team">A again</a> <a href="b">B</a>
		<a href="http://other.example/x">elsewhere</a> <a href="mailto:x@example.com">mail</a>
		<a href="/notes.txt">notes</a>`))
	mux.HandleFunc("/a", page("Page A", `<p>About A.</p><a href="/c">C</a><a href="/">home</a>`))
	mux.HandleFunc("/c", page("Page C", `<p>Deep page.</p>`))
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/notes.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Plain notes.\n\nSecond paragraph.")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCrawler() *Crawler {
	return New(NewFetcher(5*time.Second, "sitegest-test", 1<<20), NewConverter(FormatMarkdown),
		Config{Concurrency: 3}, nil)
}

func collect(t *testing.T, c *Crawler, seed string, opts Options) []Result {
	t.Helper()
	var got []Result
	err := c.Crawl(context.Background(), seed, opts, func(r Result) {
		got = append(got, r)
	})
	require.NoError(t, err)
	return got
}

func urlsOf(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func TestCrawl_DepthOne(t *testing.T) {
	srv := newSite(t)
	got := collect(t, newTestCrawler(), srv.URL+"/", Options{MaxPages: 10, MaxDepth: 1, SameDomain: true})

	assert.Equal(t, []string{
		srv.URL + "/",
		srv.URL + "/a",
		srv.URL + "/b",
		srv.URL + "/notes.txt",
	}, urlsOf(got))

	require.NotNil(t, got[0].Page)
	assert.Equal(t, "Home", got[0].Page.Title)
	assert.Contains(t, got[0].Page.Content, "Welcome home.")

	assert.Nil(t, got[2].Page)
	var statusErr *StatusError
	require.True(t, errors.As(got[2].Err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	require.NotNil(t, got[3].Page)
	assert.Equal(t, "Plain notes.\n\nSecond paragraph.", got[3].Page.Content)
}

func TestCrawl_DepthTwoFollowsLinksOnce(t *testing.T) {
	srv := newSite(t)
	got := collect(t, newTestCrawler(), srv.URL+"/", Options{MaxDepth: 2, SameDomain: true})

	urls := urlsOf(got)
	assert.Equal(t, srv.URL+"/c", urls[len(urls)-1])
	seen := map[string]int{}
	for _, u := range urls {
		seen[u]++
	}
	for u, n := range seen {
		assert.Equal(t, 1, n, "url %s fetched more than once", u)
	}
}

func TestCrawl_MaxPages(t *testing.T) {
	srv := newSite(t)
	got := collect(t, newTestCrawler(), srv.URL+"/", Options{MaxPages: 2, MaxDepth: 3, SameDomain: true})
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/a"}, urlsOf(got))
}

func TestCrawl_DepthZeroFetchesSeedOnly(t *testing.T) {
	srv := newSite(t)
	got := collect(t, newTestCrawler(), srv.URL+"/a#top", Options{MaxDepth: 0})
	assert.Equal(t, []string{srv.URL + "/a"}, urlsOf(got))
}

func TestCrawl_InvalidSeed(t *testing.T) {
	err := newTestCrawler().Crawl(context.Background(), "ftp://example.com", Options{}, func(Result) {
		t.Fatal("emit should not be called")
	})
	assert.Error(t, err)
}

func TestCrawl_Cancelled(t *testing.T) {
	srv := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestCrawler().Crawl(ctx, srv.URL+"/", Options{MaxDepth: 1}, func(Result) {
		t.Fatal("emit should not be called")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_ContentTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sitegest-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	_, err := NewFetcher(5*time.Second, "sitegest-test", 10).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content too large")
}
