package layout

import (
	"testing"

	"folio/pkg/style"
	"folio/pkg/tree"
)

const lineHeight = 10

// docBuilder assembles small documents for tests.
type docBuilder struct {
	t *testing.T
	a *tree.Arena
}

func newDoc(t *testing.T, css string) (*docBuilder, tree.Handle) {
	t.Helper()
	b := &docBuilder{t: t, a: tree.NewArena()}
	root := b.a.Add(tree.KindBlock, style.ParseInlineStyle(css))
	return b, root
}

func (b *docBuilder) attach(parent, child tree.Handle) tree.Handle {
	b.t.Helper()
	if err := b.a.AppendChild(parent, child); err != nil {
		b.t.Fatalf("append: %v", err)
	}
	return child
}

func (b *docBuilder) block(parent tree.Handle, css string) tree.Handle {
	return b.attach(parent, b.a.Add(tree.KindBlock, style.ParseInlineStyle(css)))
}

func (b *docBuilder) inline(parent tree.Handle, css string) tree.Handle {
	return b.attach(parent, b.a.Add(tree.KindInline, style.ParseInlineStyle(css)))
}

func (b *docBuilder) image(parent tree.Handle, css string, m tree.Metrics) tree.Handle {
	h := b.a.Add(tree.KindImage, style.ParseInlineStyle(css))
	b.a.Node(h).Metrics = m
	return b.attach(parent, h)
}

// word adds an unbreakable text run of width w.
func (b *docBuilder) word(parent tree.Handle, w float64) tree.Handle {
	return b.attach(parent, b.a.AddText("w", nil, tree.Metrics{MinWidth: w, MaxWidth: w, Height: lineHeight, Measured: true}))
}

// space adds a white-space run of width w.
func (b *docBuilder) space(parent tree.Handle, w float64) tree.Handle {
	return b.attach(parent, b.a.AddText(" ", nil, tree.Metrics{MinWidth: w, MaxWidth: w, Height: lineHeight, Measured: true}))
}

// sentence adds words separated by spaces of width 5.
func (b *docBuilder) sentence(parent tree.Handle, widths ...float64) {
	for i, w := range widths {
		if i > 0 {
			b.space(parent, 5)
		}
		b.word(parent, w)
	}
}

// element builds a plain line breaker element of fixed width.
func element(node int, w float64) Element {
	return Element{Node: tree.Handle(node), Min: w, Max: w, Height: lineHeight}
}

// lineIndexes returns the element indexes of every line.
func lineIndexes(lines []Line) [][]int {
	out := make([][]int, len(lines))
	for i, l := range lines {
		for _, p := range l.Items {
			out[i] = append(out[i], p.Index)
		}
	}
	return out
}
