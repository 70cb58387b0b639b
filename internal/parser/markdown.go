package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/sitegest/internal/doctree"
)

// MarkdownParser builds the section tree from goldmark's heading nodes.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(body []byte, name string) (*doctree.DocTree, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(body))

	b := doctree.NewBuilder(nameTitle(name))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			b.Heading(h.Level, strings.TrimSpace(blockText(h, body)))
			continue
		}
		b.Text(blockText(n, body))
	}
	return b.Tree(), nil
}

// blockText returns the plain text of a block. Leaf blocks such as fenced
// code contribute their raw lines.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writeText(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writeText(buf *bytes.Buffer, n ast.Node, src []byte) {
	switch n := n.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(src))
		if n.HardLineBreak() || n.SoftLineBreak() {
			buf.WriteByte('\n')
		}
		return
	case *ast.String:
		buf.Write(n.Value)
		return
	}
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writeText(buf, c, src)
		if c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
	}
}
