// Package chat is the interactive question loop over the indexed corpus.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/sitegest/internal/index"
)

const (
	topChunkChars = 200

	unknownTitle = "Unknown title"
	unknownURL   = "Unknown URL"
)

// Searcher retrieves indexed content for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (*index.SearchResponse, error)
}

// Answerer answers a question from retrieved context.
type Answerer interface {
	Answer(ctx context.Context, question, contextText string) (string, error)
}

// Reply is the outcome of one question.
type Reply struct {
	Found  bool
	Chunk  string // top-matching chunk, truncated
	Title  string
	URL    string
	Answer string
}

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	ruleStyle   = lipgloss.NewStyle().Faint(true)
)

// Session reads questions from in and writes replies to out.
type Session struct {
	search Searcher
	answer Answerer
	in     io.Reader
	out    io.Writer
	log    *slog.Logger
}

func NewSession(search Searcher, answer Answerer, in io.Reader, out io.Writer, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{search: search, answer: answer, in: in, out: out, log: log}
}

// Run loops until the user types exit or quit, input ends, or ctx is
// cancelled. Errors for a single question are printed and the loop goes on.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, ruleStyle.Render(strings.Repeat("=", 80)))
	fmt.Fprintln(s.out, headerStyle.Render("Site chat"))
	fmt.Fprintln(s.out, "Type 'exit' to quit")

	scanner := bufio.NewScanner(s.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(s.out)
		fmt.Fprint(s.out, promptStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := s.Ask(ctx, question)
		if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render("[ERROR] "+err.Error()))
			continue
		}
		s.render(reply)
	}
}

// Ask searches the index and, when something relevant is found, answers
// from the retrieved context.
func (s *Session) Ask(ctx context.Context, question string) (*Reply, error) {
	resp, err := s.search.Search(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return &Reply{}, nil
	}

	reply := &Reply{
		Found: true,
		Chunk: topChunk(resp),
		Title: unknownTitle,
		URL:   unknownURL,
	}
	if len(resp.Results) > 0 {
		top := resp.Results[0]
		if top.Title != "" {
			reply.Title = top.Title
		} else {
			s.log.Warn("top search result has no title", "file", top.FileName)
		}
		if top.URL != "" {
			reply.URL = top.URL
		} else {
			s.log.Warn("top search result has no url", "file", top.FileName)
		}
	} else {
		s.log.Warn("search returned context but no results")
	}

	reply.Answer, err = s.answer.Answer(ctx, question, resp.Text)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	return reply, nil
}

func (s *Session) render(r *Reply) {
	if !r.Found {
		fmt.Fprintln(s.out, "\nNo relevant content found.")
		return
	}
	chunk := r.Chunk
	if chunk == "" {
		chunk = "No content retrieved."
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, headerStyle.Render("Top-matching chunk:"))
	fmt.Fprintln(s.out, chunk)
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "%s %s - %s\n\n", sourceStyle.Render("Source:"), r.Title, r.URL)
	fmt.Fprintln(s.out, answerStyle.Render("Answer:"))
	fmt.Fprintln(s.out, r.Answer)
}

// topChunk prefers the best result's text and falls back to the
// aggregated context.
func topChunk(resp *index.SearchResponse) string {
	if len(resp.Results) > 0 && strings.TrimSpace(resp.Results[0].Text) != "" {
		return truncateRunes(resp.Results[0].Text, topChunkChars)
	}
	if strings.TrimSpace(resp.Text) != "" {
		return truncateRunes(resp.Text, topChunkChars)
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
