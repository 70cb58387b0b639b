// Package parser turns fetched non-HTML and HTML bodies into document trees.
package parser

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/dgallion1/sitegest/internal/doctree"
)

// Parser converts a response body into a DocTree. name is the last path
// segment of the resource and supplies a fallback title.
type Parser interface {
	Parse(body []byte, name string) (*doctree.DocTree, error)
}

const mediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ForResponse picks a parser from the Content-Type header, falling back to
// the resource's extension when the server sends a generic type.
func ForResponse(contentType, name string) (Parser, error) {
	p, err := ForContentType(contentType)
	if err == nil {
		return p, nil
	}
	if byExt := forExtension(name); byExt != nil {
		return byExt, nil
	}
	return nil, err
}

// ForContentType returns the parser for an HTTP Content-Type header value.
// Parameters such as charset are ignored.
func ForContentType(contentType string) (Parser, error) {
	switch mediaType(contentType) {
	case "text/plain":
		return &TextParser{}, nil
	case "text/markdown", "text/x-markdown":
		return &MarkdownParser{}, nil
	case "text/csv":
		return &CSVParser{}, nil
	case "text/html", "application/xhtml+xml":
		return &HTMLParser{}, nil
	case "application/pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	case mediaDOCX:
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %q", contentType)
	}
}

func forExtension(name string) Parser {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt":
		return &TextParser{}
	case ".md", ".markdown":
		return &MarkdownParser{}
	case ".csv":
		return &CSVParser{}
	case ".html", ".htm":
		return &HTMLParser{}
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}
	case ".docx":
		return &DOCXParser{}
	}
	return nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// nameTitle derives a readable title from a URL path segment:
// "getting-started.md" becomes "getting started".
func nameTitle(name string) string {
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "/" || name == "." {
		return ""
	}
	return name
}
