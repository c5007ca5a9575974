package layout

import (
	"context"

	"folio/pkg/style"
	"folio/pkg/tree"
)

// computeSizes is pass 1: a bottom-up traversal computing min/max widths for
// every node under h. Results are cached per node until invalidated.
func (e *Engine) computeSizes(ctx context.Context, h tree.Handle) (Sizes, error) {
	if s, ok := e.sizes[h]; ok {
		e.stats.SizesReused++
		return s, nil
	}
	if err := interrupted(ctx); err != nil {
		return Sizes{}, err
	}

	n := e.arena.Node(h)
	props := e.Properties(h)

	var (
		c   Chunk
		err error
	)
	switch n.Kind {
	case tree.KindText:
		c, err = e.textChunk(h, n)
	case tree.KindImage:
		c, err = e.imageChunk(h, n, props)
	default:
		c, err = e.boxChunk(ctx, h, props)
	}
	if err != nil {
		return Sizes{}, err
	}

	s := Sizes{
		Min: MinimumWidth(n.Kind, c, props),
		Max: MaximumWidth(n.Kind, c, props),
	}
	e.sizes[h] = s
	e.stats.SizesComputed++
	return s, nil
}

// textChunk reads the precomputed advance widths of a text run.
// Min: width of the widest unbreakable piece
// Max: width of the whole run
func (e *Engine) textChunk(h tree.Handle, n *tree.Node) (Chunk, error) {
	if !n.Metrics.Measured {
		return Chunk{}, e.unresolvable(h, "text run has no measured width")
	}
	return normalizeChunk(n.Metrics.MinWidth, n.Metrics.MaxWidth), nil
}

// imageChunk sizes a replaced element. Images are never split, so there is a
// single width for both modes: the explicit width or the intrinsic one.
func (e *Engine) imageChunk(h tree.Handle, n *tree.Node, props style.StaticBoxLayoutProperties) (Chunk, error) {
	if props.HasWidth {
		return Chunk{Min: props.Width, Max: props.Width}, nil
	}
	if !n.Metrics.Measured {
		return Chunk{}, e.unresolvable(h, "image has neither a width nor intrinsic dimensions")
	}
	w := max(n.Metrics.MaxWidth, 0)
	return Chunk{Min: w, Max: w}, nil
}

// boxChunk aggregates the children of an inline or block box.
// Min: the widest child minimum (a box can't be narrower than any child)
// Max: inline children flow side by side and sum up; a block child or a
// forced break starts a new run; the widest run wins
func (e *Engine) boxChunk(ctx context.Context, h tree.Handle, props style.StaticBoxLayoutProperties) (Chunk, error) {
	var c Chunk
	var run float64
	for child := range e.arena.Children(h) {
		s, err := e.computeSizes(ctx, child)
		if err != nil {
			return Chunk{}, err
		}
		c.Min = max(c.Min, s.Min)

		kind := e.arena.Node(child).Kind
		switch {
		case kind == tree.KindBlock:
			c.Max = max(c.Max, run, s.Max)
			run = 0
		case e.Properties(child).BreakBefore != style.BreakNone:
			c.Max = max(c.Max, run)
			run = s.Max
		default:
			run += s.Max
		}
	}
	c.Max = max(c.Max, run)

	// Explicit width: both min and max are the same.
	if props.HasWidth {
		return Chunk{Min: props.Width, Max: props.Width}, nil
	}
	return c, nil
}

func normalizeChunk(lo, hi float64) Chunk {
	hi = max(hi, 0)
	lo = min(max(lo, 0), hi)
	return Chunk{Min: lo, Max: hi}
}

func (e *Engine) unresolvable(h tree.Handle, reason string) error {
	n := e.arena.Node(h)
	return &UnresolvableWidthError{Node: h, Kind: n.Kind, Label: e.arena.Label(h), Reason: reason}
}
