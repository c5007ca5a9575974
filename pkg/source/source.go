// Package source loads YAML document descriptions into a render tree. Text is
// measured and image sizes are read while the tree is built, so the arena it
// returns is ready for layout.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"folio/pkg/images"
	"folio/pkg/layout"
	"folio/pkg/style"
	"folio/pkg/text"
	"folio/pkg/tree"
)

var ErrBadNode = errors.New("invalid node")

var breakProperties = []string{
	"break-before", "page-break-before", "line-break-before",
	"break-after", "page-break-after",
}

// PageSpec is the optional page geometry carried by a document.
type PageSpec struct {
	Width       float64 `yaml:"width"`
	FirstHeight float64 `yaml:"first_height"`
	Height      float64 `yaml:"height"`
}

type classSpec struct {
	Extends string `yaml:"extends"`
	Style   string `yaml:"style"`
}

type documentSpec struct {
	Page   *PageSpec            `yaml:"page"`
	Styles map[string]classSpec `yaml:"styles"`
	Root   NodeSpec             `yaml:"root"`
}

// NodeSpec describes one node and its subtree.
//
// Kind is one of block, inline, text or image; it defaults to text when Text
// is set and to block otherwise. A text node is not kept as a node of its
// own: its content is split into word and white-space runs appended to the
// enclosing box. Width and Height give text and image metrics directly
// instead of measuring them.
type NodeSpec struct {
	Kind     string     `yaml:"kind"`
	Name     string     `yaml:"name"`
	Class    string     `yaml:"class"`
	Style    string     `yaml:"style"`
	Text     string     `yaml:"text"`
	Src      string     `yaml:"src"`
	Width    float64    `yaml:"width"`
	Height   float64    `yaml:"height"`
	Children []NodeSpec `yaml:"children"`
}

// Options are the collaborators used while building the tree. Zero values
// are replaced by defaults.
type Options struct {
	Measurer *text.Measurer
	Images   *images.Loader
	FontSize float64
}

// Document is a loaded document.
type Document struct {
	Arena *tree.Arena
	Page  *PageSpec // nil when the document does not set one
	Sheet *style.Sheet

	opts      Options
	names     map[string]tree.Handle
	fontSizes map[tree.Handle]float64
}

func decode(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

// Load reads a document from r.
func Load(r io.Reader, opts Options) (*Document, error) {
	var spec documentSpec
	if err := decode(r, &spec); err != nil {
		return nil, fmt.Errorf("unable to decode document: %w", err)
	}

	if opts.Measurer == nil {
		opts.Measurer = text.NewMeasurer()
	}
	if opts.Images == nil {
		opts.Images = images.NewLoader("")
	}
	if opts.FontSize <= 0 {
		opts.FontSize = text.DefaultFontSize
	}

	d := &Document{
		Arena:     tree.NewArena(),
		Page:      spec.Page,
		Sheet:     style.NewSheet(),
		opts:      opts,
		names:     make(map[string]tree.Handle),
		fontSizes: make(map[tree.Handle]float64),
	}
	for name, c := range spec.Styles {
		d.Sheet.Define(name, c.Extends, style.ParseInlineStyle(c.Style))
	}
	for name, c := range spec.Styles {
		if c.Extends != "" && !d.Sheet.Has(c.Extends) {
			return nil, fmt.Errorf("style class %q extends unknown class %q", name, c.Extends)
		}
	}

	root := spec.Root
	if root.Kind == "" {
		root.Kind = "block"
	}
	if root.Kind != "block" {
		return nil, fmt.Errorf("root: %w: must be a block, got %q", ErrBadNode, root.Kind)
	}
	h, err := d.box(root, tree.KindBlock, opts.FontSize, "root")
	if err != nil {
		return nil, err
	}
	if err := d.Arena.SetRoot(h); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadFile reads a document from a file. Relative image paths are resolved
// against the file's directory unless opts carries an image loader.
func LoadFile(path string, opts Options) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open document: %w", err)
	}
	defer f.Close()

	if opts.Images == nil {
		opts.Images = images.NewLoader(filepath.Dir(path))
	}
	d, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseNodes reads a YAML list of nodes, as used for region replacement.
func ParseNodes(r io.Reader) ([]NodeSpec, error) {
	var specs []NodeSpec
	if err := decode(r, &specs); err != nil {
		return nil, fmt.Errorf("unable to decode nodes: %w", err)
	}
	return specs, nil
}

// PageConfig returns defaults with the dimensions the document sets.
func (d *Document) PageConfig(defaults layout.PageConfig) layout.PageConfig {
	page := defaults
	if p := d.Page; p != nil {
		if p.Width > 0 {
			page.Width = p.Width
		}
		if p.Height > 0 {
			page.Height = p.Height
		}
		if p.FirstHeight > 0 {
			page.FirstHeight = p.FirstHeight
		}
	}
	return page
}

// Find returns the handle of the named node.
func (d *Document) Find(name string) (tree.Handle, bool) {
	h, ok := d.names[name]
	if !ok || d.Arena.Detached(h) {
		return tree.NoNode, false
	}
	return h, true
}

// Build appends nodes to parent. Wrapped in a closure it serves as the
// callback of layout.Engine.ReplaceChildren.
func (d *Document) Build(a *tree.Arena, parent tree.Handle, specs []NodeSpec) error {
	if a != d.Arena {
		return errors.New("build: arena does not belong to this document")
	}
	size := d.fontSize(parent)
	for i, s := range specs {
		if err := d.child(parent, s, size, d.Arena.Label(parent)+"/"+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	return nil
}

// fontSize returns the font size in effect inside box h.
func (d *Document) fontSize(h tree.Handle) float64 {
	if s, ok := d.fontSizes[h]; ok {
		return s
	}
	for p := range d.Arena.Ancestors(h) {
		if s, ok := d.fontSizes[p]; ok {
			return s
		}
	}
	return d.opts.FontSize
}

func (d *Document) computeStyle(s NodeSpec, path string) (*style.Style, error) {
	st, err := d.Sheet.Compute(strings.Fields(s.Class), style.ParseInlineStyle(s.Style))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

func inheritFontSize(st *style.Style, inherited float64) float64 {
	if v, ok := st.GetLength("font-size"); ok && v > 0 {
		return v
	}
	return inherited
}

func (d *Document) child(parent tree.Handle, s NodeSpec, size float64, path string) error {
	kind := s.Kind
	if kind == "" {
		kind = "block"
		if s.Text != "" {
			kind = "text"
		}
	}
	switch kind {
	case "text":
		if len(s.Children) > 0 {
			return fmt.Errorf("%s: %w: text cannot have children", path, ErrBadNode)
		}
		return d.text(parent, s, size, path)
	case "image":
		if len(s.Children) > 0 {
			return fmt.Errorf("%s: %w: image cannot have children", path, ErrBadNode)
		}
		h, err := d.image(s, path)
		if err != nil {
			return err
		}
		return d.Arena.AppendChild(parent, h)
	case "block", "inline":
		k := tree.KindBlock
		if kind == "inline" {
			k = tree.KindInline
		}
		h, err := d.box(s, k, size, path)
		if err != nil {
			return err
		}
		return d.Arena.AppendChild(parent, h)
	}
	return fmt.Errorf("%s: %w: unknown kind %q", path, ErrBadNode, s.Kind)
}

func (d *Document) name(h tree.Handle, name string) {
	if name == "" {
		return
	}
	d.Arena.Node(h).Name = name
	d.names[name] = h
}

func (d *Document) box(s NodeSpec, k tree.Kind, inherited float64, path string) (tree.Handle, error) {
	if s.Text != "" {
		return tree.NoNode, fmt.Errorf("%s: %w: %s cannot carry text, use a text child", path, ErrBadNode, k)
	}
	st, err := d.computeStyle(s, path)
	if err != nil {
		return tree.NoNode, err
	}
	h := d.Arena.Add(k, st)
	d.name(h, s.Name)
	size := inheritFontSize(st, inherited)
	d.fontSizes[h] = size

	for i, c := range s.Children {
		if err := d.child(h, c, size, path+"/"+strconv.Itoa(i)); err != nil {
			return tree.NoNode, err
		}
	}
	return h, nil
}

func (d *Document) image(s NodeSpec, path string) (tree.Handle, error) {
	st, err := d.computeStyle(s, path)
	if err != nil {
		return tree.NoNode, err
	}
	var m tree.Metrics
	switch {
	case s.Width > 0:
		m = tree.Metrics{MinWidth: s.Width, MaxWidth: s.Width, Height: s.Height, Measured: true}
	case s.Src != "":
		size, err := d.opts.Images.Dimensions(s.Src)
		if err != nil {
			return tree.NoNode, fmt.Errorf("%s: %w", path, err)
		}
		w := float64(size.Width)
		m = tree.Metrics{MinWidth: w, MaxWidth: w, Height: float64(size.Height), Measured: true}
	}
	// Without a source or width the image stays unmeasured; layout reports it
	// unless the style gives an explicit width.
	h := d.Arena.Add(tree.KindImage, st)
	n := d.Arena.Node(h)
	n.Metrics = m
	n.Text = s.Src
	d.name(h, s.Name)
	return h, nil
}

// text appends the runs of s to parent. Runs take their white-space policy
// from the enclosing box, so preserved newlines become forced line breaks.
func (d *Document) text(parent tree.Handle, s NodeSpec, inherited float64, path string) error {
	st, err := d.computeStyle(s, path)
	if err != nil {
		return err
	}
	size := inheritFontSize(st, inherited)
	st.Set("font-size", strconv.FormatFloat(size, 'f', -1, 64))

	if s.Width > 0 {
		h := d.Arena.AddText(s.Text, st, tree.Metrics{MinWidth: s.Width, MaxWidth: s.Width, Height: s.Height, Measured: true})
		d.name(h, s.Name)
		return d.Arena.AppendChild(parent, h)
	}

	var owner *style.Style
	if n := d.Arena.Node(parent); n != nil {
		owner = n.Style
	}
	preserve := style.Resolve(owner).PreserveWhitespace

	// Breaks requested on the text apply to its first run only.
	rest := st.Clone()
	for _, p := range breakProperties {
		delete(rest.Properties, p)
	}
	for i, run := range text.Split(s.Text, preserve) {
		w, h := d.opts.Measurer.Measure(run.Text, size)
		rs := rest
		if i == 0 {
			rs = st
		}
		if run.BreakBefore {
			rs = rs.Clone()
			rs.Set("line-break-before", "true")
		}
		rh := d.Arena.AddText(run.Text, rs, tree.Metrics{MinWidth: w, MaxWidth: w, Height: h, Measured: true})
		if i == 0 {
			d.name(rh, s.Name)
		}
		if err := d.Arena.AppendChild(parent, rh); err != nil {
			return err
		}
	}
	return nil
}
