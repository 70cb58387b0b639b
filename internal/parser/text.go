package parser

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/dgallion1/sitegest/internal/doctree"
)

// TextParser splits plain text into paragraphs on blank lines.
type TextParser struct{}

func (p *TextParser) Parse(body []byte, name string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	b := doctree.NewBuilder(nameTitle(name))
	var para []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			para = append(para, line)
			continue
		}
		if len(para) > 0 {
			b.Leaf(&doctree.DocNode{Text: strings.Join(para, "\n")})
			para = para[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(para) > 0 {
		b.Leaf(&doctree.DocNode{Text: strings.Join(para, "\n")})
	}
	return b.Tree(), nil
}
