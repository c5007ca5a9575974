package layout

import (
	"folio/pkg/style"
	"folio/pkg/tree"
)

// sequenceElement holds the width and white-space rules of one node kind.
// Handlers keep no state; everything they need is passed in.
type sequenceElement struct {
	minimumWidth        func(c Chunk, p style.StaticBoxLayoutProperties) float64
	maximumWidth        func(c Chunk, p style.StaticBoxLayoutProperties) float64
	preservesWhitespace func(p style.StaticBoxLayoutProperties) bool
}

// Text runs have no box of their own, so margins never apply. Their
// white-space policy comes from the owning box, which the caller passes in.
var textElement = sequenceElement{
	minimumWidth:        func(c Chunk, _ style.StaticBoxLayoutProperties) float64 { return c.Min },
	maximumWidth:        func(c Chunk, _ style.StaticBoxLayoutProperties) float64 { return c.Max },
	preservesWhitespace: preserveFlag,
}

// Boxes and images add their horizontal margins to the content chunk. Like
// text runs they are placed whole, never split at a line boundary.
var boxElement = sequenceElement{
	minimumWidth:        func(c Chunk, p style.StaticBoxLayoutProperties) float64 { return c.Min + p.HorizontalMargins() },
	maximumWidth:        func(c Chunk, p style.StaticBoxLayoutProperties) float64 { return c.Max + p.HorizontalMargins() },
	preservesWhitespace: preserveFlag,
}

var sequenceElements = [...]sequenceElement{
	tree.KindText:   textElement,
	tree.KindInline: boxElement,
	tree.KindBlock:  boxElement,
	tree.KindImage:  boxElement,
}

func preserveFlag(p style.StaticBoxLayoutProperties) bool { return p.PreserveWhitespace }

func sequenceFor(k tree.Kind) sequenceElement {
	if !k.Valid() {
		return boxElement
	}
	return sequenceElements[k]
}

// MinimumWidth is the narrowest width a node of kind k with content chunk c
// can occupy without losing information.
func MinimumWidth(k tree.Kind, c Chunk, p style.StaticBoxLayoutProperties) float64 {
	return sequenceFor(k).minimumWidth(c, p)
}

// MaximumWidth is the width a node occupies given unconstrained space.
func MaximumWidth(k tree.Kind, c Chunk, p style.StaticBoxLayoutProperties) float64 {
	return sequenceFor(k).maximumWidth(c, p)
}

// PreservesWhitespace reports the white-space policy for kind k. For text
// runs p must be the owning box's properties.
func PreservesWhitespace(k tree.Kind, p style.StaticBoxLayoutProperties) bool {
	return sequenceFor(k).preservesWhitespace(p)
}
