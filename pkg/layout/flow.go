package layout

import (
	"context"

	"folio/pkg/style"
	"folio/pkg/tree"
)

// flow is the pass-2 result for a box laid out at one available width.
type flow struct {
	avail   float64 // width of the margin box this flow was built for
	offset  float64 // x of the content box inside the margin box
	content float64 // content width, the line budget
	items   []flowItem
	height  float64
	spacer  bool // childless block with an explicit height
}

// flowItem is either a nested block or a paragraph of lines.
type flowItem struct {
	block    tree.Handle // nested block, NoNode for a paragraph
	elements []Element
	lines    []Line
}

func (it flowItem) paragraph() bool { return it.block == tree.NoNode }

// layoutFlow is pass 2 for box h: consecutive inline-level children form a
// paragraph broken into lines, block children stack below each other. avail
// is the width of h's margin box.
func (e *Engine) layoutFlow(ctx context.Context, h tree.Handle, avail float64) (*flow, error) {
	if f, ok := e.flows[h]; ok && f.avail == avail {
		e.stats.FlowsReused++
		return f, nil
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}

	props := e.Properties(h)
	f := &flow{avail: avail, offset: props.MarginLeft}
	if props.HasWidth {
		f.content = props.Width
	} else {
		f.content = max(avail-props.HorizontalMargins(), 0)
	}

	n := e.arena.Node(h)
	if n.FirstChild == tree.NoNode {
		if n.Kind == tree.KindBlock && props.HasHeight {
			f.spacer = true
			f.height = props.Height
		}
		e.storeFlow(h, f)
		return f, nil
	}

	var run []Element
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		lines, err := BreakLines(ctx, run, f.content, e.mode)
		if err != nil {
			return err
		}
		for _, l := range lines {
			f.height += l.Height
		}
		f.items = append(f.items, flowItem{block: tree.NoNode, elements: run, lines: lines})
		run = nil
		return nil
	}

	for child := range e.arena.Children(h) {
		if e.arena.Node(child).Kind == tree.KindBlock {
			if err := flush(); err != nil {
				return nil, err
			}
			cf, err := e.layoutFlow(ctx, child, f.content)
			if err != nil {
				return nil, err
			}
			f.items = append(f.items, flowItem{block: child})
			f.height += cf.height
			continue
		}
		el, err := e.element(ctx, child, props)
		if err != nil {
			return nil, err
		}
		run = append(run, el)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	e.storeFlow(h, f)
	return f, nil
}

func (e *Engine) storeFlow(h tree.Handle, f *flow) {
	e.flows[h] = f
	e.stats.FlowsBuilt++
}

// element converts an inline-level node into a line breaker element. owner
// is the box whose flow contains the node; text runs take their white-space
// policy from it.
func (e *Engine) element(ctx context.Context, h tree.Handle, owner style.StaticBoxLayoutProperties) (Element, error) {
	s, err := e.computeSizes(ctx, h)
	if err != nil {
		return Element{}, err
	}
	n := e.arena.Node(h)
	props := e.Properties(h)

	el := Element{
		Node:            h,
		Min:             s.Min,
		Max:             s.Max,
		BreakBefore:     props.BreakBefore != style.BreakNone,
		PageBreakBefore: props.BreakBefore == style.BreakPage,
	}

	switch n.Kind {
	case tree.KindText:
		el.Height = n.Metrics.Height
		el.Whitespace = n.IsWhitespace()
		el.Preserve = PreservesWhitespace(tree.KindText, owner)
	case tree.KindImage:
		el.Height = imageHeight(n, props)
	default:
		// Inline box: lay out its own content at the width it takes on the
		// line. An explicit height overrides the content height.
		inner, err := e.layoutFlow(ctx, h, el.Width(e.mode))
		if err != nil {
			return Element{}, err
		}
		el.Height = inner.height
		if props.HasHeight {
			el.Height = props.Height
		}
	}
	return el, nil
}

// imageHeight returns the explicit height, or the intrinsic height scaled to
// an explicit width.
func imageHeight(n *tree.Node, props style.StaticBoxLayoutProperties) float64 {
	switch {
	case props.HasHeight:
		return props.Height
	case props.HasWidth && n.Metrics.Measured && n.Metrics.MaxWidth > 0:
		return n.Metrics.Height * props.Width / n.Metrics.MaxWidth
	default:
		return max(n.Metrics.Height, 0)
	}
}
