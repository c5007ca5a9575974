package text

import (
	"fmt"
	"os"
	"sync"
	"unicode"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultFontSize is used when a text run carries no font-size.
const DefaultFontSize = 12.0

// Measurer computes advance widths of text runs. Faces are created lazily per
// size and are not safe for concurrent use, so access is serialized.
type Measurer struct {
	mu    sync.Mutex
	font  *truetype.Font // nil means the fixed 7x13 bitmap face
	faces map[float64]font.Face
}

// NewMeasurer measures with the bundled Go Regular font.
func NewMeasurer() *Measurer {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		// goregular is compiled in; failing to parse it is a build problem.
		panic(fmt.Sprintf("parse bundled font: %v", err))
	}
	return &Measurer{font: f, faces: make(map[float64]font.Face)}
}

// NewBasicMeasurer measures with the fixed-width 7x13 bitmap face scaled to
// the requested size. Every rune advances 7/13 of the font size.
func NewBasicMeasurer() *Measurer {
	return &Measurer{faces: make(map[float64]font.Face)}
}

// LoadMeasurer measures with a TrueType font file.
func LoadMeasurer(path string) (*Measurer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return &Measurer{font: f, faces: make(map[float64]font.Face)}, nil
}

// Face returns the face for drawing at the given size, and the scale the
// drawing must apply to it. Only the bitmap face needs scaling.
func (m *Measurer) Face(size float64) (font.Face, float64) {
	if size <= 0 {
		size = DefaultFontSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.font == nil {
		return m.face(size), size / 13
	}
	return m.face(size), 1
}

func (m *Measurer) face(size float64) font.Face {
	if size <= 0 {
		size = DefaultFontSize
	}
	if f, ok := m.faces[size]; ok {
		return f
	}
	var f font.Face = basicfont.Face7x13
	if m.font != nil {
		f = truetype.NewFace(m.font, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
	}
	m.faces[size] = f
	return f
}

// Measure returns the advance width and line height of s at the given size.
func (m *Measurer) Measure(s string, size float64) (width, height float64) {
	if size <= 0 {
		size = DefaultFontSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	face := m.face(size)
	adv := font.MeasureString(face, s)
	width = float64(adv) / 64
	height = float64(face.Metrics().Height) / 64
	if m.font == nil {
		scale := size / 13
		width *= scale
		height *= scale
	}
	return width, height
}

// Run is a piece of text that is either entirely white space or contains
// none. Runs are the units the line breaker places.
type Run struct {
	Text  string
	Space bool
	// BreakBefore is set on the run following a newline in preserved text.
	BreakBefore bool
}

// Split cuts text into alternating word and white-space runs. When preserve
// is set, newlines end the current run and force a break before the next one.
// A line left empty by a newline is kept as an empty run, so blank lines
// survive.
func Split(s string, preserve bool) []Run {
	var runs []Run
	var cur []rune
	curSpace := false
	pendingBreak := false
	lineHasRun := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		runs = append(runs, Run{Text: string(cur), Space: curSpace, BreakBefore: pendingBreak})
		pendingBreak = false
		lineHasRun = true
		cur = cur[:0]
	}

	for _, r := range s {
		if preserve && r == '\n' {
			if len(cur) == 0 && !lineHasRun {
				runs = append(runs, Run{BreakBefore: pendingBreak})
			}
			flush()
			pendingBreak = true
			lineHasRun = false
			continue
		}
		space := unicode.IsSpace(r)
		if len(cur) > 0 && space != curSpace {
			flush()
		}
		curSpace = space
		cur = append(cur, r)
	}
	flush()
	return runs
}
