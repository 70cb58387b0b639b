package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/sitegest/internal/index"
)

type fakeSearch struct {
	resp *index.SearchResponse
	err  error
}

func (f fakeSearch) Search(ctx context.Context, query string) (*index.SearchResponse, error) {
	return f.resp, f.err
}

type fakeAnswer struct {
	gotContext string
	calls      int
}

func (f *fakeAnswer) Answer(ctx context.Context, question, contextText string) (string, error) {
	f.calls++
	f.gotContext = contextText
	return "We host GPUs.", nil
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestAsk_UsesStructuredSource(t *testing.T) {
	ans := &fakeAnswer{}
	s := NewSession(fakeSearch{resp: &index.SearchResponse{
		Text: "aggregated context",
		Results: []index.Result{{
			Text:  strings.Repeat("é", 250),
			Title: "Services",
			URL:   "https://example.com/services",
		}},
	}}, ans, nil, io.Discard, nil)

	reply, err := s.Ask(context.Background(), "what do you host?")
	require.NoError(t, err)
	assert.True(t, reply.Found)
	assert.Equal(t, "Services", reply.Title)
	assert.Equal(t, "https://example.com/services", reply.URL)
	assert.Equal(t, 200, len([]rune(reply.Chunk)))
	assert.Equal(t, "We host GPUs.", reply.Answer)
	assert.Equal(t, "aggregated context", ans.gotContext)
}

func TestAsk_MissingSourceUsesPlaceholdersAndWarns(t *testing.T) {
	var logs bytes.Buffer
	s := NewSession(fakeSearch{resp: &index.SearchResponse{
		Text:    "aggregated context",
		Results: []index.Result{{Text: "  ", FileName: "abc.json"}},
	}}, &fakeAnswer{}, nil, io.Discard, newLogger(&logs))

	reply, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, unknownTitle, reply.Title)
	assert.Equal(t, unknownURL, reply.URL)
	assert.Equal(t, "aggregated context", reply.Chunk)
	assert.Contains(t, logs.String(), "no title")
	assert.Contains(t, logs.String(), "no url")
}

func TestAsk_NothingFound(t *testing.T) {
	ans := &fakeAnswer{}
	s := NewSession(fakeSearch{resp: &index.SearchResponse{Text: "  "}}, ans, nil, io.Discard, nil)

	reply, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, reply.Found)
	assert.Equal(t, 0, ans.calls)
}

func TestRun_Loop(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\nwhat do you host?\nEXIT\nnever asked\n")
	ans := &fakeAnswer{}
	s := NewSession(fakeSearch{resp: &index.SearchResponse{
		Text:    "ctx",
		Results: []index.Result{{Text: "GPU hosting in Switzerland.", Title: "Services", URL: "https://example.com/s"}},
	}}, ans, in, &out, nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, ans.calls)
	assert.Contains(t, out.String(), "GPU hosting in Switzerland.")
	assert.Contains(t, out.String(), "Services - https://example.com/s")
	assert.Contains(t, out.String(), "We host GPUs.")
}

func TestRun_ErrorsDoNotStopLoop(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("first\nsecond\n")
	s := NewSession(fakeSearch{err: errors.New("index down")}, &fakeAnswer{}, in, &out, nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, strings.Count(out.String(), "index down"))
}

func TestRun_NoRelevantContent(t *testing.T) {
	var out bytes.Buffer
	s := NewSession(fakeSearch{resp: &index.SearchResponse{}}, &fakeAnswer{}, strings.NewReader("q\nquit\n"), &out, nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "No relevant content found.")
}
