package crawl

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"

	"github.com/dgallion1/sitegest/internal/parser"
)

// Content formats for HTML pages.
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// Document is a fetched body turned into text.
type Document struct {
	Title   string
	Content string
	Links   []string // absolute http(s) URLs, fragments removed, in document order
}

// Converter turns response bodies into page text. HTML goes through the
// markdown converter (or the HTML parser in text format); other supported
// content types go through the matching document parser.
type Converter struct {
	format   string
	markdown *md.Converter
}

func NewConverter(format string) *Converter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	if format != FormatText {
		format = FormatMarkdown
	}
	return &Converter{format: format, markdown: conv}
}

// Convert extracts title, text and outgoing links from body. base is the
// URL the body was served from and is used to resolve relative links.
func (c *Converter) Convert(body []byte, contentType, base string) (*Document, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	if !isHTML(contentType) {
		return c.convertDocument(body, contentType, baseURL)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &Document{
		Title: findTitle(root),
		Links: extractLinks(root, baseURL),
	}

	switch c.format {
	case FormatText:
		tree, err := (&parser.HTMLParser{}).Parse(body, path.Base(baseURL.Path))
		if err != nil {
			return nil, err
		}
		doc.Content = tree.Flatten()
	default:
		region := mainContent(root)
		var buf bytes.Buffer
		if err := html.Render(&buf, region); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		markdown, err := c.markdown.ConvertString(buf.String())
		if err != nil {
			return nil, fmt.Errorf("convert to markdown: %w", err)
		}
		doc.Content = cleanMarkdown(markdown)
	}

	if doc.Title == "" {
		doc.Title = markdownTitle(doc.Content)
	}
	return doc, nil
}

func (c *Converter) convertDocument(body []byte, contentType string, baseURL *url.URL) (*Document, error) {
	name := path.Base(baseURL.Path)
	p, err := parser.ForResponse(contentType, name)
	if err != nil {
		return nil, err
	}
	tree, err := p.Parse(body, name)
	if err != nil {
		return nil, err
	}
	return &Document{Title: tree.Title, Content: tree.Flatten()}, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return strings.TrimSpace(nodeText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// mainContent prefers <main>, then <article>, then <body> with page chrome
// removed. The tree is modified in place.
func mainContent(root *html.Node) *html.Node {
	for _, tag := range []string{"main", "article"} {
		if n := findElement(root, tag); n != nil {
			removeElements(n, chromeTags)
			return n
		}
	}
	removeElements(root, chromeTags)
	if body := findElement(root, "body"); body != nil {
		return body
	}
	return root
}

var chromeTags = map[string]bool{
	"nav": true, "header": true, "footer": true, "aside": true,
	"script": true, "style": true, "noscript": true, "iframe": true,
	"form": true, "button": true, "svg": true,
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags map[string]bool) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && tags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		removeElements(c, tags)
	}
}

func extractLinks(root *html.Node, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				if u, ok := resolveLink(base, a.Val); ok && !seen[u] {
					seen[u] = true
					links = append(links, u)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = excessiveLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func markdownTitle(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
