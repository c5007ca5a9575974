package layout

import (
	"go.uber.org/multierr"

	"folio/pkg/tree"
)

// Mode selects which width an element contributes while breaking lines.
type Mode uint8

const (
	MaximumWidth Mode = iota // actual fill: elements take their preferred width
	MinimumWidth             // intrinsic sizing: elements take their narrowest width
)

func (m Mode) String() string {
	if m == MinimumWidth {
		return "minimum"
	}
	return "maximum"
}

// ParseMode accepts "minimum"/"min" and "maximum"/"max".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "minimum", "min":
		return MinimumWidth, true
	case "maximum", "max", "":
		return MaximumWidth, true
	}
	return MaximumWidth, false
}

// Chunk is the content-chunk width of a node, margins excluded.
type Chunk struct {
	Min float64
	Max float64
}

// Sizes is the pass-1 result for one node: resolved widths including margins.
// Invariant: Min <= Max.
type Sizes struct {
	Min float64
	Max float64
}

// Element is one unit of inline content as seen by the line breaker.
type Element struct {
	Node   tree.Handle
	Min    float64
	Max    float64
	Height float64

	Whitespace bool // collapsible unless Preserve is set
	Preserve   bool

	BreakBefore     bool // forced line break before this element
	PageBreakBefore bool // the forced break also closes the page
}

// Width returns the element's contribution under mode m.
func (e Element) Width(m Mode) float64 {
	if m == MinimumWidth {
		return e.Min
	}
	return e.Max
}

func (e Element) collapsible() bool { return e.Whitespace && !e.Preserve }

// Placement is an element positioned on a line. X is relative to the line start.
type Placement struct {
	Index int // index into the element sequence
	Node  tree.Handle
	X     float64
	Width float64
	// Collapsed marks white space squeezed to zero width at a line edge.
	Collapsed bool
}

// LineBreak tells how a line ended.
type LineBreak uint8

const (
	BreakNatural LineBreak = iota // the next element did not fit
	BreakForced                   // the next element forced a break
	BreakEnd                      // end of content
)

func (b LineBreak) String() string {
	switch b {
	case BreakForced:
		return "forced"
	case BreakEnd:
		return "end"
	}
	return "natural"
}

func (b LineBreak) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// Line is an immutable line breaker result.
type Line struct {
	Items  []Placement
	Width  float64
	Height float64
	Break  LineBreak
	// Overflow is set when the line is wider than the budget, which only
	// happens when a single element does not fit on an empty line.
	Overflow bool
	// PageBreakBefore is set when the line starts with an element that
	// requested a page break.
	PageBreakBefore bool
}

// Start returns the index of the first element on the line.
func (l Line) Start() int { return l.Items[0].Index }

// End returns one past the index of the last element on the line.
func (l Line) End() int { return l.Items[len(l.Items)-1].Index + 1 }

// Empty reports whether the line holds only collapsed white space.
func (l Line) Empty() bool {
	for _, p := range l.Items {
		if !p.Collapsed {
			return false
		}
	}
	return true
}

// FragmentType tells what a page fragment was produced from.
type FragmentType uint8

const (
	FragmentLine   FragmentType = iota // one line of an inline flow
	FragmentSpacer                     // childless block with an explicit height
)

func (t FragmentType) String() string {
	if t == FragmentSpacer {
		return "spacer"
	}
	return "line"
}

func (t FragmentType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Box is a positioned element inside a line. Coordinates are absolute within
// the page content area. An inline box carries the boxes of its own lines.
type Box struct {
	Node   tree.Handle `json:"node"`
	Kind   tree.Kind   `json:"kind"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Boxes  []Box       `json:"boxes,omitempty"`
}

// Fragment is the positioned, immutable output for one paginated unit.
type Fragment struct {
	Type     FragmentType `json:"type"`
	Block    tree.Handle  `json:"block"` // block owning the line, or the spacer itself
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	Break    LineBreak    `json:"break"`
	Overflow bool         `json:"overflow,omitempty"`
	Boxes    []Box        `json:"boxes,omitempty"`
}

// Page is one closed page of geometry.
type Page struct {
	Number    int        `json:"number"`
	Budget    float64    `json:"budget"`
	Height    float64    `json:"height"`
	Overflow  bool       `json:"overflow,omitempty"`
	Fragments []Fragment `json:"fragments"`
}

// Document is the result of one render.
type Document struct {
	RenderID string  `json:"render_id"`
	Width    float64 `json:"width"`
	Pages    []Page  `json:"pages"`
	// Warnings are recoverable conditions, currently page overflows.
	Warnings []error `json:"-"`
}

// Err combines the warnings into one error, nil when there are none.
func (d *Document) Err() error {
	if d == nil {
		return nil
	}
	return multierr.Combine(d.Warnings...)
}
