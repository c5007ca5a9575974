package tree

import (
	"errors"
	"fmt"
	"iter"
	"unicode"

	"folio/pkg/style"
)

// Kind identifies the variant of a render node. The set is closed: layout
// dispatches on it through a table, so adding a kind means adding a handler.
type Kind uint8

const (
	KindText   Kind = iota // text run with precomputed advance widths
	KindInline             // inline box, atomic on a line
	KindBlock              // block box, stacks vertically
	KindImage              // replaced leaf, atomic on a line
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInline:
		return "inline"
	case KindBlock:
		return "block"
	case KindImage:
		return "image"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool { return k < kindCount }

// Handle addresses a node inside its arena.
type Handle int32

// NoNode is the nil handle.
const NoNode Handle = -1

// Metrics are the measured content-chunk dimensions of a leaf, supplied by the
// content builder. Boxes derive theirs from their children.
type Metrics struct {
	MinWidth float64
	MaxWidth float64
	Height   float64
	Measured bool
}

// Node is a compact arena record. Relations are handles, never pointers.
type Node struct {
	Kind        Kind
	Parent      Handle
	FirstChild  Handle
	LastChild   Handle
	NextSibling Handle
	PrevSibling Handle

	Name    string // optional label, used in diagnostics
	Style   *style.Style
	Text    string
	Metrics Metrics

	detached bool
}

// IsWhitespace reports whether the node is a text run made only of white space.
func (n *Node) IsWhitespace() bool {
	if n.Kind != KindText || n.Text == "" {
		return false
	}
	for _, r := range n.Text {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

var (
	ErrInvalidHandle = errors.New("invalid node handle")
	ErrHasParent     = errors.New("node already has a parent")
	ErrCycle         = errors.New("append would create a cycle")
	ErrLeafParent    = errors.New("node kind cannot have children")
)

// Arena owns every node of one document. It is not safe for concurrent
// mutation; each render owns its own arena.
type Arena struct {
	nodes []Node
	root  Handle
}

func NewArena() *Arena {
	return &Arena{nodes: make([]Node, 0, 64), root: NoNode}
}

// Add creates a detached node and returns its handle. The first block added
// becomes the root unless SetRoot says otherwise.
func (a *Arena) Add(kind Kind, st *style.Style) Handle {
	h := Handle(len(a.nodes))
	a.nodes = append(a.nodes, Node{
		Kind:        kind,
		Parent:      NoNode,
		FirstChild:  NoNode,
		LastChild:   NoNode,
		NextSibling: NoNode,
		PrevSibling: NoNode,
		Style:       st,
	})
	if a.root == NoNode && kind == KindBlock {
		a.root = h
	}
	return h
}

// AddText creates a detached text run with the given metrics.
func (a *Arena) AddText(text string, st *style.Style, m Metrics) Handle {
	h := a.Add(KindText, st)
	a.nodes[h].Text = text
	a.nodes[h].Metrics = m
	return h
}

func (a *Arena) Root() Handle { return a.root }

func (a *Arena) SetRoot(h Handle) error {
	if !a.valid(h) {
		return fmt.Errorf("set root %d: %w", h, ErrInvalidHandle)
	}
	a.root = h
	return nil
}

// Len returns the number of slots, including detached nodes.
func (a *Arena) Len() int { return len(a.nodes) }

// Node returns the record for h. The pointer is invalidated by the next Add.
func (a *Arena) Node(h Handle) *Node {
	if !a.valid(h) {
		return nil
	}
	return &a.nodes[h]
}

func (a *Arena) valid(h Handle) bool {
	return h >= 0 && int(h) < len(a.nodes)
}

// AppendChild links child as the last child of parent. The child must be
// detached and must not be an ancestor of parent, which keeps the tree acyclic
// with exactly one parent per non-root node.
func (a *Arena) AppendChild(parent, child Handle) error {
	if !a.valid(parent) || !a.valid(child) {
		return fmt.Errorf("append %d to %d: %w", child, parent, ErrInvalidHandle)
	}
	p := &a.nodes[parent]
	if p.Kind == KindText || p.Kind == KindImage {
		return fmt.Errorf("append to %s node %d: %w", p.Kind, parent, ErrLeafParent)
	}
	c := &a.nodes[child]
	if c.Parent != NoNode {
		return fmt.Errorf("append %d: %w", child, ErrHasParent)
	}
	if child == a.root {
		return fmt.Errorf("append root %d: %w", child, ErrCycle)
	}
	for h := parent; h != NoNode; h = a.nodes[h].Parent {
		if h == child {
			return fmt.Errorf("append %d to %d: %w", child, parent, ErrCycle)
		}
	}

	c.Parent = parent
	c.detached = false
	c.PrevSibling = p.LastChild
	c.NextSibling = NoNode
	if p.LastChild != NoNode {
		a.nodes[p.LastChild].NextSibling = child
	} else {
		p.FirstChild = child
	}
	p.LastChild = child
	return nil
}

// RemoveChildren unlinks every child of parent and returns their handles.
// The removed subtrees stay in the arena but are no longer reachable.
func (a *Arena) RemoveChildren(parent Handle) []Handle {
	if !a.valid(parent) {
		return nil
	}
	var removed []Handle
	for c := a.nodes[parent].FirstChild; c != NoNode; {
		next := a.nodes[c].NextSibling
		n := &a.nodes[c]
		n.Parent, n.NextSibling, n.PrevSibling = NoNode, NoNode, NoNode
		n.detached = true
		removed = append(removed, c)
		c = next
	}
	a.nodes[parent].FirstChild = NoNode
	a.nodes[parent].LastChild = NoNode
	return removed
}

// Children iterates over the direct children of h in order.
func (a *Arena) Children(h Handle) iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		if !a.valid(h) {
			return
		}
		for c := a.nodes[h].FirstChild; c != NoNode; c = a.nodes[c].NextSibling {
			if !yield(c) {
				return
			}
		}
	}
}

// Ancestors iterates from the parent of h up to the root.
func (a *Arena) Ancestors(h Handle) iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		if !a.valid(h) {
			return
		}
		for p := a.nodes[h].Parent; p != NoNode; p = a.nodes[p].Parent {
			if !yield(p) {
				return
			}
		}
	}
}

// Walk visits h and its descendants in document order. Returning false from
// fn skips the node's children.
func (a *Arena) Walk(h Handle, fn func(Handle) bool) {
	if !a.valid(h) {
		return
	}
	if !fn(h) {
		return
	}
	for c := a.nodes[h].FirstChild; c != NoNode; c = a.nodes[c].NextSibling {
		a.Walk(c, fn)
	}
}

// Detached reports whether h was removed from the tree by RemoveChildren.
func (a *Arena) Detached(h Handle) bool {
	return a.valid(h) && a.nodes[h].detached
}

// Label returns a short description of h for logs and errors.
func (a *Arena) Label(h Handle) string {
	n := a.Node(h)
	if n == nil {
		return fmt.Sprintf("#%d", h)
	}
	if n.Name != "" {
		return fmt.Sprintf("%s#%d(%s)", n.Kind, h, n.Name)
	}
	return fmt.Sprintf("%s#%d", n.Kind, h)
}
