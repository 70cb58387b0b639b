package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page/line (0 if N/A)
	Children []*DocNode // Subsections
}

// Flatten renders the tree as plain text in document order: each heading
// on its own line followed by its text, blocks separated by blank lines.
func (t *DocTree) Flatten() string {
	var blocks []string
	var walk func(n *DocNode)
	walk = func(n *DocNode) {
		if s := strings.TrimSpace(n.Title); s != "" {
			blocks = append(blocks, s)
		}
		if s := strings.TrimSpace(n.Text); s != "" {
			blocks = append(blocks, s)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range t.Children {
		walk(c)
	}
	return strings.Join(blocks, "\n\n")
}
