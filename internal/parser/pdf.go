package parser

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/sitegest/internal/doctree"
)

// PDFParser extracts one node per page. When FallbackPdftotext is set and
// the Go reader fails, the body is piped through pdftotext.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(body []byte, name string) (*doctree.DocTree, error) {
	pages, err := pdfPages(body)
	if err != nil && p.FallbackPdftotext {
		pages, err = pdftotextPages(body)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	b := doctree.NewBuilder(nameTitle(name))
	for i, text := range pages {
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		b.Leaf(&doctree.DocNode{
			Title: fmt.Sprintf("Page %d", i+1),
			Text:  text,
			Page:  i + 1,
		})
	}
	return b.Tree(), nil
}

func pdfPages(body []byte) ([]string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, err
	}
	pages := make([]string, reader.NumPage())
	for i := range pages {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		// A page that fails to decode stays empty; the rest are kept.
		if text, err := page.GetPlainText(nil); err == nil {
			pages[i] = text
		}
	}
	return pages, nil
}

// pdftotextPages reads the PDF from stdin; pdftotext separates pages with
// form feeds.
func pdftotextPages(body []byte) ([]string, error) {
	cmd := exec.Command("pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(body)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return strings.Split(string(out), "\f"), nil
}
