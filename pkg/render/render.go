// Package render paints laid out pages into raster previews.
package render

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/fogleman/gg"

	"folio/pkg/images"
	"folio/pkg/layout"
	"folio/pkg/text"
	"folio/pkg/tree"
)

type Options struct {
	Scale      float64 // pixels per point
	DrawLines  bool    // outline fragments and inline boxes
	DrawImages bool    // decode and draw images, placeholders otherwise
}

// Renderer paints pages of documents laid out from one arena. Not safe for
// concurrent use: it shares the measurer's faces.
type Renderer struct {
	arena  *tree.Arena
	fonts  *text.Measurer
	images *images.Loader
	opts   Options
}

func NewRenderer(arena *tree.Arena, fonts *text.Measurer, loader *images.Loader, opts Options) *Renderer {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if fonts == nil {
		fonts = text.NewMeasurer()
	}
	if loader == nil {
		loader = images.NewLoader("")
	}
	return &Renderer{arena: arena, fonts: fonts, images: loader, opts: opts}
}

// Page paints page n (zero based) of doc.
func (r *Renderer) Page(doc *layout.Document, n int) (image.Image, error) {
	dc, err := r.paint(doc, n)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// WritePNG paints page n of doc as PNG into w.
func (r *Renderer) WritePNG(w io.Writer, doc *layout.Document, n int) error {
	dc, err := r.paint(doc, n)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

// SavePNG paints page n of doc into a PNG file.
func (r *Renderer) SavePNG(filename string, doc *layout.Document, n int) error {
	dc, err := r.paint(doc, n)
	if err != nil {
		return err
	}
	return dc.SavePNG(filename)
}

func (r *Renderer) paint(doc *layout.Document, n int) (*gg.Context, error) {
	if doc == nil || n < 0 || n >= len(doc.Pages) {
		return nil, fmt.Errorf("page %d out of range", n+1)
	}
	page := doc.Pages[n]

	// Overflowing pages are painted in full.
	height := math.Max(page.Budget, page.Height)
	w := max(int(math.Ceil(doc.Width*r.opts.Scale)), 1)
	h := max(int(math.Ceil(height*r.opts.Scale)), 1)

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.Scale(r.opts.Scale, r.opts.Scale)

	if page.Overflow && r.opts.DrawLines {
		dc.SetRGBA(1, 0, 0, 0.6)
		dc.SetLineWidth(1)
		dc.DrawLine(0, page.Budget, doc.Width, page.Budget)
		dc.Stroke()
	}

	for _, f := range page.Fragments {
		r.drawFragment(dc, f)
	}
	return dc, nil
}

func (r *Renderer) drawFragment(dc *gg.Context, f layout.Fragment) {
	if r.opts.DrawLines {
		if f.Overflow {
			dc.SetRGBA(1, 0, 0, 0.5)
		} else {
			dc.SetRGBA(0.6, 0.6, 0.9, 0.5)
		}
		dc.SetLineWidth(0.5)
		dc.DrawRectangle(f.X, f.Y, f.Width, f.Height)
		dc.Stroke()
	}
	r.drawBoxes(dc, f.Boxes)
}

// drawBoxes paints positioned boxes; inline boxes are painted through the
// boxes of their own lines.
func (r *Renderer) drawBoxes(dc *gg.Context, boxes []layout.Box) {
	for _, b := range boxes {
		switch b.Kind {
		case tree.KindText:
			r.drawText(dc, b)
		case tree.KindImage:
			r.drawImage(dc, b)
		default:
			if r.opts.DrawLines {
				dc.SetRGBA(0.3, 0.7, 0.3, 0.6)
				dc.SetLineWidth(0.5)
				dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
				dc.Stroke()
			}
			r.drawBoxes(dc, b.Boxes)
		}
	}
}

func (r *Renderer) drawText(dc *gg.Context, b layout.Box) {
	n := r.arena.Node(b.Node)
	if n == nil || n.IsWhitespace() || n.Text == "" {
		return
	}
	size, ok := n.Style.GetLength("font-size")
	if !ok {
		size = text.DefaultFontSize
	}
	face, scale := r.fonts.Face(size)
	ascent := float64(face.Metrics().Ascent) / 64 * scale

	dc.Push()
	defer dc.Pop()
	dc.SetFontFace(face)
	dc.SetRGB(0, 0, 0)
	dc.Translate(b.X, b.Y+ascent)
	dc.Scale(scale, scale)
	dc.DrawString(n.Text, 0, 0)
}

func (r *Renderer) drawImage(dc *gg.Context, b layout.Box) {
	n := r.arena.Node(b.Node)
	if n == nil || b.Width <= 0 || b.Height <= 0 {
		return
	}
	var img image.Image
	if r.opts.DrawImages && n.Text != "" {
		img, _ = r.images.Load(n.Text)
	}
	if img == nil {
		// placeholder with a cross
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
		dc.Fill()
		dc.SetRGB(0.5, 0.5, 0.5)
		dc.SetLineWidth(1)
		dc.DrawLine(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
		dc.DrawLine(b.X+b.Width, b.Y, b.X, b.Y+b.Height)
		dc.Stroke()
		return
	}

	bounds := img.Bounds()
	dc.Push()
	dc.Translate(b.X, b.Y)
	dc.Scale(b.Width/float64(bounds.Dx()), b.Height/float64(bounds.Dy()))
	dc.DrawImage(img, 0, 0)
	dc.Pop()
}
