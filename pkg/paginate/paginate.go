// Package paginate breaks a stream of laid-out units into pages.
//
// Units are the vertical atoms of a document: lines of a paragraph, spacers
// and so on. Pagination only inserts page boundaries; the concatenation of all
// pages always reproduces the input stream in order.
package paginate

import (
	"context"
	"errors"
	"fmt"
)

// Unit is one entry of the vertical stream.
type Unit struct {
	Height float64

	BreakBefore bool // forced page break before this unit
	BreakAfter  bool // forced page break after this unit

	// Group identifies a keep-together group; consecutive units with the same
	// non-zero Group are never split across pages.
	Group int
	// Block identifies the paragraph a line belongs to; consecutive units with
	// the same non-zero Block may be split subject to Orphans and Widows.
	Block   int
	Orphans int
	Widows  int
}

// Config is the page content height budget.
type Config struct {
	FirstHeight float64 // height of the first page; zero means Height
	Height      float64 // height of continuation pages
}

// HeightFor returns the content height of the page with the given index.
func (c Config) HeightFor(page int) float64 {
	if page == 0 && c.FirstHeight > 0 {
		return c.FirstHeight
	}
	return c.Height
}

// Page is a closed page: the units [Start, End) of the stream.
type Page struct {
	Start    int
	End      int
	Height   float64 // consumed vertical extent
	Budget   float64
	Overflow bool // an atomic unit taller than the page was placed alone
}

// Len returns the number of units on the page.
func (p Page) Len() int { return p.End - p.Start }

// ErrPageOverflow matches every OverflowWarning.
var ErrPageOverflow = errors.New("page overflow")

// OverflowWarning reports an atomic unit that did not fit any page and was
// placed alone on its own page. The render still completes.
type OverflowWarning struct {
	Page   int // zero based
	Height float64
	Budget float64
}

func (w *OverflowWarning) Error() string {
	return fmt.Sprintf("%s: page %d holds %.2f in %.2f", ErrPageOverflow, w.Page+1, w.Height, w.Budget)
}

func (w *OverflowWarning) Is(target error) bool { return target == ErrPageOverflow }

// Result is the outcome of pagination. It is kept by callers so a later run
// can resume from the first page affected by a change.
type Result struct {
	Config Config
	Units  []Unit
	Pages  []Page
}

// Warnings returns one OverflowWarning per overflowing page.
func (r *Result) Warnings() []error {
	var ws []error
	for i, p := range r.Pages {
		if p.Overflow {
			ws = append(ws, &OverflowWarning{Page: i, Height: p.Height, Budget: p.Budget})
		}
	}
	return ws
}

// Paginate distributes units over pages.
//
// Rules:
//   - units fill the current page while they fit;
//   - a keep-together group moves as a whole to the next page, and a group
//     taller than a full page is placed alone on its own page;
//   - a paragraph breaks only where at least Orphans lines stay behind and
//     at least Widows lines move on; when no such break fits, the break is
//     moved before the remaining lines;
//   - forced breaks always close the current page, but a page is never empty.
//
// Cancellation is checked between units; the context's cause is returned.
func Paginate(ctx context.Context, units []Unit, cfg Config) (*Result, error) {
	p := newPaginator(units, cfg, nil, 0)
	if err := p.run(ctx); err != nil {
		return nil, err
	}
	return p.result(), nil
}

// Resume re-paginates units, reusing the pages of prev that cannot be
// affected by the differences between prev.Units and units. It returns the
// index of the first recomputed page.
func Resume(ctx context.Context, prev *Result, units []Unit, cfg Config) (*Result, int, error) {
	if prev == nil || prev.Config != cfg || len(prev.Pages) == 0 {
		r, err := Paginate(ctx, units, cfg)
		return r, 0, err
	}

	changed := firstDifference(prev.Units, units)
	if changed == len(prev.Units) && changed == len(units) {
		return &Result{Config: cfg, Units: clone(units), Pages: clone(prev.Pages)}, len(prev.Pages), nil
	}

	// A change anywhere in a segment can move every break of that segment,
	// and the page before it decided to close by looking at that segment.
	from := min(segmentStart(prev.Units, changed), segmentStart(units, changed))
	q := len(prev.Pages) - 1
	for i, pg := range prev.Pages {
		if from < pg.End {
			q = i
			break
		}
	}
	if q > 0 && prev.Pages[q].Start >= from {
		q--
	}

	p := newPaginator(units, cfg, prev.Pages[:q], prev.Pages[q].Start)
	if err := p.run(ctx); err != nil {
		return nil, 0, err
	}
	return p.result(), q, nil
}

type paginator struct {
	units  []Unit
	prefix []float64 // prefix[i] is the height of units[:i]
	cfg    Config
	pages  []Page
	cur    Page
	start  int
}

func newPaginator(units []Unit, cfg Config, kept []Page, start int) *paginator {
	p := &paginator{
		units:  units,
		prefix: make([]float64, len(units)+1),
		cfg:    cfg,
		pages:  append([]Page(nil), kept...),
		start:  start,
	}
	for i, u := range units {
		p.prefix[i+1] = p.prefix[i] + u.Height
	}
	p.open(start)
	return p
}

func (p *paginator) run(ctx context.Context) error {
	for i := p.start; i < len(p.units); {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		end, paragraph := segmentAt(p.units, i)
		if p.units[i].BreakBefore {
			p.closePage()
		}
		if paragraph {
			if err := p.placeParagraph(ctx, i, end); err != nil {
				return err
			}
		} else {
			p.placeAtomic(i, end)
		}
		if p.units[end-1].BreakAfter {
			p.closePage()
		}
		i = end
	}
	p.closePage()
	return nil
}

func (p *paginator) result() *Result {
	return &Result{Config: p.cfg, Units: clone(p.units), Pages: p.pages}
}

func (p *paginator) open(start int) {
	p.cur = Page{Start: start, End: start, Budget: p.cfg.HeightFor(len(p.pages))}
}

func (p *paginator) empty() bool { return p.cur.End == p.cur.Start }

// closePage closes the current page unless it is empty.
func (p *paginator) closePage() {
	if p.empty() {
		return
	}
	p.pages = append(p.pages, p.cur)
	p.open(p.cur.End)
}

func (p *paginator) height(from, to int) float64 { return p.prefix[to] - p.prefix[from] }

func (p *paginator) fits(h float64) bool { return p.cur.Height+h <= p.cur.Budget }

// add puts units [from, to) on the current page. They must start at its end.
func (p *paginator) add(from, to int) {
	p.cur.End = to
	p.cur.Height += p.height(from, to)
}

// overflow places units [from, to) alone on a page of their own.
func (p *paginator) overflow(from, to int) {
	p.closePage()
	p.add(from, to)
	p.cur.Overflow = true
	p.closePage()
}

func (p *paginator) placeAtomic(from, to int) {
	h := p.height(from, to)
	if p.fits(h) {
		p.add(from, to)
		return
	}
	p.closePage()
	if p.fits(h) {
		p.add(from, to)
		return
	}
	p.overflow(from, to)
}

func (p *paginator) placeParagraph(ctx context.Context, from, to int) error {
	orphans := max(p.units[from].Orphans, 1)
	widows := max(p.units[from].Widows, 1)

	for k := from; k < to; {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if p.fits(p.height(k, to)) {
			p.add(k, to)
			return nil
		}
		if j := p.breakPoint(k, to, orphans, widows); j > k {
			p.add(k, j)
			p.closePage()
			k = j
			continue
		}
		if !p.empty() {
			// Push the break before the remaining lines.
			p.closePage()
			continue
		}
		if to-k < orphans+widows {
			// No admissible break exists at all: the rest is atomic.
			p.overflow(k, to)
			return nil
		}
		j := p.relaxedBreakPoint(k, to, widows)
		if !p.fits(p.height(k, j)) {
			p.overflow(k, j)
		} else {
			p.add(k, j)
			p.closePage()
		}
		k = j
	}
	return nil
}

// breakPoint returns the latest j in (k, to) such that lines [k, j) fit on
// the current page and both orphan and widow minimums hold, or k if none.
func (p *paginator) breakPoint(k, to, orphans, widows int) int {
	for j := to - widows; j > k; j-- {
		if j-k < orphans {
			break
		}
		if p.fits(p.height(k, j)) {
			return j
		}
	}
	return k
}

// relaxedBreakPoint is used on an empty page where the minimums cannot be
// met: it keeps the widow minimum if possible, then gives up on both. It
// always makes progress.
func (p *paginator) relaxedBreakPoint(k, to, widows int) int {
	for j := to - widows; j > k; j-- {
		if p.fits(p.height(k, j)) {
			return j
		}
	}
	for j := to - 1; j > k; j-- {
		if p.fits(p.height(k, j)) {
			return j
		}
	}
	return k + 1
}

// segmentAt returns the end of the segment starting at i and whether it is a
// breakable paragraph. Keep-together groups and lone units are atomic.
func segmentAt(units []Unit, i int) (int, bool) {
	end := i + 1
	for end < len(units) && sameSegment(units, end-1, end) {
		end++
	}
	u := units[i]
	return end, u.Group == 0 && u.Block != 0
}

// sameSegment reports whether units a and b = a+1 belong to one segment.
func sameSegment(units []Unit, a, b int) bool {
	ua, ub := units[a], units[b]
	if ua.Group != 0 || ub.Group != 0 {
		return ua.Group == ub.Group
	}
	if ua.Block == 0 || ua.Block != ub.Block {
		return false
	}
	return !ub.BreakBefore && !ua.BreakAfter
}

// segmentStart walks back from i to the first unit of its segment.
func segmentStart(units []Unit, i int) int {
	if i > len(units) {
		i = len(units)
	}
	if i == len(units) {
		return i
	}
	for i > 0 && sameSegment(units, i-1, i) {
		i--
	}
	return i
}

func firstDifference(a, b []Unit) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func clone[T any](s []T) []T { return append([]T(nil), s...) }
