package layout

import (
	"context"

	"folio/pkg/paginate"
	"folio/pkg/style"
	"folio/pkg/tree"
)

// unitRef remembers where a paginated unit came from, so that fragments can
// be built once pagination assigned it to a page.
type unitRef struct {
	typ      FragmentType
	block    tree.Handle
	x        float64
	width    float64
	line     Line
	elements []Element
}

// collector flattens the flow tree into the vertical unit stream.
type collector struct {
	e       *Engine
	units   []paginate.Unit
	refs    []unitRef
	pending bool // a forced page break waits for the next unit
}

func (e *Engine) collect(ctx context.Context, root tree.Handle) ([]paginate.Unit, []unitRef, error) {
	c := &collector{e: e}
	if err := c.block(ctx, root, 0, 0); err != nil {
		return nil, nil, err
	}
	return c.units, c.refs, nil
}

// block emits the units of block h whose margin box starts at x. group is
// the keep-together group inherited from an ancestor; the outermost group wins.
func (c *collector) block(ctx context.Context, h tree.Handle, x float64, group int) error {
	if err := interrupted(ctx); err != nil {
		return err
	}
	props := c.e.Properties(h)
	f := c.e.flows[h]
	if group == 0 && props.KeepTogether {
		group = int(h) + 1
	}
	if props.BreakBefore == style.BreakPage {
		c.pending = true
	}

	first := len(c.units)
	cx := x + f.offset
	if f.spacer {
		c.emit(paginate.Unit{Height: f.height, Group: group},
			unitRef{typ: FragmentSpacer, block: h, x: cx, width: f.content})
	}

	for _, it := range f.items {
		if !it.paragraph() {
			if err := c.block(ctx, it.block, cx, group); err != nil {
				return err
			}
			continue
		}
		id := int(it.elements[0].Node) + 1
		for _, l := range it.lines {
			if err := interrupted(ctx); err != nil {
				return err
			}
			if l.Empty() {
				c.pending = c.pending || l.PageBreakBefore
				continue
			}
			c.emit(paginate.Unit{
				Height:      l.Height,
				BreakBefore: l.PageBreakBefore,
				Group:       group,
				Block:       id,
				Orphans:     props.Orphans,
				Widows:      props.Widows,
			}, unitRef{typ: FragmentLine, block: h, x: cx, width: l.Width, line: l, elements: it.elements})
		}
	}

	if props.PageBreakAfter {
		if len(c.units) > first {
			c.units[len(c.units)-1].BreakAfter = true
		} else {
			c.pending = true
		}
	}
	return nil
}

func (c *collector) emit(u paginate.Unit, ref unitRef) {
	if c.pending {
		u.BreakBefore = true
		c.pending = false
	}
	c.units = append(c.units, u)
	c.refs = append(c.refs, ref)
}

// document positions every unit on its page. Fragments stack from the top of
// the page content area in stream order.
func (e *Engine) document(id string, res *paginate.Result, refs []unitRef) *Document {
	doc := &Document{
		RenderID: id,
		Width:    e.page.Width,
		Pages:    make([]Page, 0, len(res.Pages)),
		Warnings: res.Warnings(),
	}
	for i, p := range res.Pages {
		page := Page{
			Number:    i + 1,
			Budget:    p.Budget,
			Height:    p.Height,
			Overflow:  p.Overflow,
			Fragments: make([]Fragment, 0, p.Len()),
		}
		y := 0.0
		for u := p.Start; u < p.End; u++ {
			page.Fragments = append(page.Fragments, e.fragment(refs[u], res.Units[u].Height, y))
			y += res.Units[u].Height
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}

func (e *Engine) fragment(ref unitRef, height, y float64) Fragment {
	f := Fragment{
		Type:   ref.typ,
		Block:  ref.block,
		X:      ref.x,
		Y:      y,
		Width:  ref.width,
		Height: height,
		Break:  BreakEnd,
	}
	if ref.typ == FragmentSpacer {
		return f
	}
	f.Break = ref.line.Break
	f.Overflow = ref.line.Overflow
	f.Boxes = e.lineBoxes(ref.line, ref.elements, ref.x, y)
	return f
}

// lineBoxes positions the elements of line l, which starts at (x, y).
func (e *Engine) lineBoxes(l Line, elements []Element, x, y float64) []Box {
	boxes := make([]Box, 0, len(l.Items))
	for _, p := range l.Items {
		b := Box{
			Node:   p.Node,
			Kind:   e.arena.Node(p.Node).Kind,
			X:      x + p.X,
			Y:      y,
			Width:  p.Width,
			Height: elements[p.Index].Height,
		}
		if b.Kind == tree.KindInline {
			b.Boxes = e.flowBoxes(p.Node, b.X, y)
		}
		boxes = append(boxes, b)
	}
	return boxes
}

// flowBoxes positions the content of the cached flow of h, whose margin box
// starts at (x, y). Nested blocks stack below each other.
func (e *Engine) flowBoxes(h tree.Handle, x, y float64) []Box {
	f, ok := e.flows[h]
	if !ok {
		return nil
	}
	var boxes []Box
	cx := x + f.offset
	for _, it := range f.items {
		if !it.paragraph() {
			boxes = append(boxes, e.flowBoxes(it.block, cx, y)...)
			if cf, ok := e.flows[it.block]; ok {
				y += cf.height
			}
			continue
		}
		for _, l := range it.lines {
			if l.Empty() {
				continue
			}
			boxes = append(boxes, e.lineBoxes(l, it.elements, cx, y)...)
			y += l.Height
		}
	}
	return boxes
}
