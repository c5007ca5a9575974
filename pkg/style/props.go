package style

import "strings"

// BreakKind is the kind of forced break requested before a node.
type BreakKind uint8

const (
	BreakNone BreakKind = iota
	BreakLine           // close the current line
	BreakPage           // close the current line and the current page
)

func (k BreakKind) String() string {
	switch k {
	case BreakLine:
		return "line"
	case BreakPage:
		return "page"
	}
	return "none"
}

// StaticBoxLayoutProperties is the resolved, immutable layout snapshot of a
// box. It is a plain value: once computed it is never modified, so copies can
// be handed to any number of readers.
//
// Invariant: MarginLeft >= 0 and MarginRight >= 0.
type StaticBoxLayoutProperties struct {
	MarginLeft  float64
	MarginRight float64

	PreserveWhitespace bool

	BreakBefore    BreakKind
	PageBreakAfter bool
	KeepTogether   bool
	Orphans        int // minimum lines left at the bottom of a page, >= 1
	Widows         int // minimum lines carried to the top of the next page, >= 1

	// Explicit dimensions; zero unless the matching Has flag is set.
	Width     float64
	HasWidth  bool
	Height    float64
	HasHeight bool

	// MarginsClamped records that a raw margin was negative and was clamped.
	MarginsClamped bool
}

// HorizontalMargins returns MarginLeft + MarginRight.
func (p StaticBoxLayoutProperties) HorizontalMargins() float64 {
	return p.MarginLeft + p.MarginRight
}

// Resolve computes the static layout properties from a raw style. Malformed
// input is normalized, never rejected: missing or unparsable margins become
// zero, negative margins are clamped to zero, orphans/widows below one
// become one. A nil style resolves to the defaults.
func Resolve(raw *Style) StaticBoxLayoutProperties {
	p := StaticBoxLayoutProperties{Orphans: 1, Widows: 1}
	if raw == nil {
		return p
	}

	margin := raw.GetMargin()
	p.MarginLeft, p.MarginRight = margin.Left, margin.Right
	if p.MarginLeft < 0 {
		p.MarginLeft = 0
		p.MarginsClamped = true
	}
	if p.MarginRight < 0 {
		p.MarginRight = 0
		p.MarginsClamped = true
	}

	if ws, ok := raw.Get("white-space"); ok {
		switch strings.ToLower(strings.TrimSpace(ws)) {
		case "pre", "pre-wrap", "pre-line", "preserve", "break-spaces":
			p.PreserveWhitespace = true
		}
	}

	p.BreakBefore = resolveBreakBefore(raw)
	p.PageBreakAfter = resolvePageBreakAfter(raw)
	p.KeepTogether = raw.GetBool("keep-together")
	if v, ok := raw.Get("page-break-inside"); ok && strings.TrimSpace(v) == "avoid" {
		p.KeepTogether = true
	}

	if n, ok := raw.GetInt("orphans"); ok && n > 1 {
		p.Orphans = n
	}
	if n, ok := raw.GetInt("widows"); ok && n > 1 {
		p.Widows = n
	}

	if w, ok := raw.GetLength("width"); ok && w >= 0 {
		p.Width, p.HasWidth = w, true
	}
	if h, ok := raw.GetLength("height"); ok && h >= 0 {
		p.Height, p.HasHeight = h, true
	}
	return p
}

func resolveBreakBefore(raw *Style) BreakKind {
	if v, ok := raw.Get("break-before"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "page", "always":
			return BreakPage
		case "line":
			return BreakLine
		}
	}
	if raw.GetBool("page-break-before") {
		return BreakPage
	}
	if raw.GetBool("line-break-before") {
		return BreakLine
	}
	return BreakNone
}

func resolvePageBreakAfter(raw *Style) bool {
	if v, ok := raw.Get("break-after"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "page", "always":
			return true
		}
	}
	return raw.GetBool("page-break-after")
}
