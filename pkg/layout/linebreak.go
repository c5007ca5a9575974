package layout

import "context"

// BreakLines distributes an element sequence over lines of width budget.
// This is the line breaking phase of inline layout.
//
// PURE FUNCTION - no side effects. It only decides which elements go on which
// line and where they sit horizontally; fragments are built later.
//
// Algorithm (greedy, single forward pass):
//  1. An element with a forced break closes the current line first.
//  2. An element on an empty line is always placed, even when it is wider
//     than the budget. The line is then flagged as overflowing.
//  3. Otherwise the element joins the line if it fits, else the line is
//     closed and the element starts the next one.
//  4. Collapsible white space never causes a break. At the start of a line
//     it takes no width or height; at the end of a line it is squeezed to
//     zero width when the line closes. A line holding nothing else is empty.
//
// Elements are never split, so running the breaker twice on the same input
// yields the same lines.
func BreakLines(ctx context.Context, items []Element, budget float64, mode Mode) ([]Line, error) {
	if len(items) == 0 {
		return []Line{}, nil
	}
	if budget < 0 {
		budget = 0
	}

	lines := []Line{}
	cur := lineBuilder{}

	for i, item := range items {
		if err := interrupted(ctx); err != nil {
			return nil, err
		}

		if item.BreakBefore {
			if len(cur.items) > 0 {
				lines = append(lines, cur.close(budget, BreakForced))
				cur = lineBuilder{}
			}
			cur.pageBreak = item.PageBreakBefore
		}

		w := item.Width(mode)
		if item.collapsible() {
			if !cur.hasContent {
				// Leading white space collapses and takes no height.
				cur.items = append(cur.items, Placement{Index: i, Node: item.Node, Collapsed: true})
				continue
			}
			cur.grow(item.Height)
			// Possibly trailing, so keep it pending until content follows.
			cur.trailing = append(cur.trailing, len(cur.items))
			cur.items = append(cur.items, Placement{Index: i, Node: item.Node, X: cur.width + cur.pending, Width: w})
			cur.pending += w
			continue
		}

		switch {
		case !cur.hasContent:
			cur.place(i, item, w)
		case cur.width+cur.pending+w <= budget:
			cur.place(i, item, w)
		default:
			lines = append(lines, cur.close(budget, BreakNatural))
			cur = lineBuilder{}
			cur.place(i, item, w)
		}
	}

	if len(cur.items) > 0 {
		lines = append(lines, cur.close(budget, BreakEnd))
	}
	return lines, nil
}

// lineBuilder accumulates the line being filled.
type lineBuilder struct {
	items      []Placement
	width      float64 // committed width, excluding pending white space
	pending    float64 // width of white space after the last content
	trailing   []int   // positions in items of the pending white space
	height     float64
	hasContent bool
	pageBreak  bool
}

func (b *lineBuilder) place(i int, item Element, w float64) {
	x := b.width + b.pending
	b.items = append(b.items, Placement{Index: i, Node: item.Node, X: x, Width: w})
	b.width = x + w
	b.pending = 0
	b.trailing = b.trailing[:0]
	b.hasContent = true
	b.grow(item.Height)
}

func (b *lineBuilder) grow(h float64) {
	if h > b.height {
		b.height = h
	}
}

func (b *lineBuilder) close(budget float64, brk LineBreak) Line {
	for _, pos := range b.trailing {
		b.items[pos].X = b.width
		b.items[pos].Width = 0
		b.items[pos].Collapsed = true
	}
	return Line{
		Items:           b.items,
		Width:           b.width,
		Height:          b.height,
		Break:           brk,
		Overflow:        b.width > budget,
		PageBreakBefore: b.pageBreak,
	}
}
