// Package surface is an in-memory editing surface: an element tree holding
// the rendered notes, a single selection, and selection-change
// notifications delivered on Dispatch.
package surface

import "strings"

// NodeType distinguishes element nodes from text nodes.
type NodeType uint8

const (
	ElementNode NodeType = iota + 1
	TextNode
)

// Tag names used when rendering notes.
const (
	TagDiv = "DIV"
	TagImg = "IMG"
)

// Node is an element or a text node.
type Node struct {
	typ      NodeType
	tag      string
	text     string
	attrs    map[string]string
	dataset  map[string]string
	parent   *Node
	children []*Node
}

// NewElement returns a detached element with the given tag.
func NewElement(tag string) *Node {
	return &Node{
		typ:     ElementNode,
		tag:     strings.ToUpper(tag),
		attrs:   map[string]string{},
		dataset: map[string]string{},
	}
}

// NewText returns a detached text node.
func NewText(s string) *Node {
	return &Node{typ: TextNode, text: s}
}

// Type returns the node type.
func (n *Node) Type() NodeType { return n.typ }

// Tag returns the upper-case tag name, or "" for text nodes.
func (n *Node) Tag() string { return n.tag }

// Parent returns the parent element, or nil when detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// FirstChild returns the first child or nil.
func (n *Node) FirstChild() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// AppendChild attaches c as the last child of n, detaching it from any
// previous parent.
func (n *Node) AppendChild(c *Node) {
	if c.parent != nil {
		c.parent.removeChild(c)
	}
	c.parent = n
	n.children = append(n.children, c)
}

func (n *Node) removeChild(c *Node) {
	for i, child := range n.children {
		if child == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

func (n *Node) clearChildren() {
	for _, c := range n.children {
		c.parent = nil
	}
	n.children = nil
}

// Attr returns an attribute value.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// SetAttr sets an attribute on an element.
func (n *Node) SetAttr(name, value string) {
	if n.attrs != nil {
		n.attrs[name] = value
	}
}

// Dataset returns a data-* value by its camel-case key (e.g. "noteId").
func (n *Node) Dataset(key string) (string, bool) {
	v, ok := n.dataset[key]
	return v, ok
}

// SetDataset sets a data-* value by its camel-case key.
func (n *Node) SetDataset(key, value string) {
	if n.dataset != nil {
		n.dataset[key] = value
	}
}

// Text returns the data of a text node.
func (n *Node) Text() string { return n.text }

// TextContent returns the concatenated text of n and its descendants.
func (n *Node) TextContent() string {
	if n.typ == TextNode {
		return n.text
	}
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *Node) writeText(b *strings.Builder) {
	for _, c := range n.children {
		if c.typ == TextNode {
			b.WriteString(c.text)
		} else {
			c.writeText(b)
		}
	}
}

// contains reports whether other is n or one of its descendants.
func (n *Node) contains(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// maxOffset is the largest valid selection offset inside n: runes for text
// nodes, child count for elements.
func (n *Node) maxOffset() int {
	if n.typ == TextNode {
		return len([]rune(n.text))
	}
	return len(n.children)
}
