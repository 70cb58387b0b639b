package doctree

import "strings"

// Builder assembles a DocTree from a flat sequence of headings and text
// blocks. A heading nests under the nearest preceding heading of a lower
// level; text attaches to the innermost open heading.
type Builder struct {
	title   string
	root    *DocNode
	stack   []level
	pending []string
}

type level struct {
	node  *DocNode
	depth int
}

func NewBuilder(title string) *Builder {
	root := &DocNode{Title: title}
	return &Builder{
		title: title,
		root:  root,
		stack: []level{{node: root}},
	}
}

// Heading opens a section at depth (1 for a top-level heading).
func (b *Builder) Heading(depth int, title string) {
	b.flush()
	node := &DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].depth >= depth {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, level{node: node, depth: depth})
}

// Text appends a block to the current section. Blank blocks are dropped.
func (b *Builder) Text(s string) {
	if s = strings.TrimSpace(s); s != "" {
		b.pending = append(b.pending, s)
	}
}

// Leaf adds a standalone node under the current section.
func (b *Builder) Leaf(n *DocNode) {
	b.flush()
	top := b.stack[len(b.stack)-1].node
	top.Children = append(top.Children, n)
}

// Tree returns the finished tree. Text seen before any heading becomes a
// single leading child.
func (b *Builder) Tree() *DocTree {
	b.flush()
	children := b.root.Children
	if b.root.Text != "" {
		children = append([]*DocNode{{Text: b.root.Text}}, children...)
	}
	return &DocTree{Title: b.title, Children: children}
}

func (b *Builder) flush() {
	if len(b.pending) == 0 {
		return
	}
	top := b.stack[len(b.stack)-1].node
	text := strings.Join(b.pending, "\n\n")
	if top.Text != "" {
		top.Text += "\n\n" + text
	} else {
		top.Text = text
	}
	b.pending = b.pending[:0]
}
