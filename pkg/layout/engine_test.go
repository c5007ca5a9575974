package layout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"folio/pkg/paginate"
	"folio/pkg/style"
	"folio/pkg/tree"
)

func mustLayout(t *testing.T, e *Engine) *Document {
	t.Helper()
	doc, err := e.Layout(context.Background())
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	return doc
}

// fragmentCounts returns the number of fragments on every page.
func fragmentCounts(doc *Document) []int {
	out := make([]int, len(doc.Pages))
	for i, p := range doc.Pages {
		out[i] = len(p.Fragments)
	}
	return out
}

func TestLayout_ParagraphAcrossPages(t *testing.T) {
	b, root := newDoc(t, "")
	b.sentence(root, 20, 20, 20, 20, 20)

	doc := mustLayout(t, New(b.a, PageConfig{Width: 50, Height: 20}))

	if diff := cmp.Diff([]int{2, 1}, fragmentCounts(doc)); diff != "" {
		t.Fatalf("fragments per page mismatch (-want +got):\n%s", diff)
	}
	first := doc.Pages[0].Fragments[1]
	if first.Y != lineHeight || first.Width != 45 || first.Break != BreakNatural {
		t.Errorf("unexpected second line %+v", first)
	}
	if len(first.Boxes) != 4 {
		t.Fatalf("expected word, space, word, collapsed space; got %d boxes", len(first.Boxes))
	}
	if bx := first.Boxes[2]; bx.X != 25 || bx.Width != 20 || bx.Y != lineHeight {
		t.Errorf("unexpected box %+v", bx)
	}

	last := doc.Pages[1].Fragments[0]
	if last.Y != 0 || last.Break != BreakEnd || len(last.Boxes) != 1 {
		t.Errorf("unexpected last line %+v", last)
	}
	if doc.Err() != nil {
		t.Errorf("unexpected warnings: %v", doc.Err())
	}
}

func TestLayout_MarginsIndentContent(t *testing.T) {
	b, root := newDoc(t, "margin-left: 10; margin-right: 5")
	quote := b.block(root, "margin-left: 7; margin-right: -20")
	b.sentence(quote, 40, 40)

	doc := mustLayout(t, New(b.a, PageConfig{Width: 100, Height: 100}))

	// content width is 100-10-5-7 = 78, so the two words (85) need two lines
	if diff := cmp.Diff([]int{2}, fragmentCounts(doc)); diff != "" {
		t.Fatalf("fragments per page mismatch (-want +got):\n%s", diff)
	}
	for _, f := range doc.Pages[0].Fragments {
		if f.X != 17 {
			t.Errorf("expected line at x=17, got %v", f.X)
		}
		if f.Block != quote {
			t.Errorf("expected line owned by the quote block, got %d", f.Block)
		}
	}
	if bx := doc.Pages[0].Fragments[1].Boxes[0]; bx.X != 17 {
		t.Errorf("expected box at x=17, got %v", bx.X)
	}
}

func TestLayout_KeepTogether(t *testing.T) {
	b, root := newDoc(t, "")
	b.block(root, "height: 15")
	keep := b.block(root, "keep-together: true")
	b.block(keep, "height: 10")
	inner := b.block(keep, "page-break-inside: avoid")
	b.word(inner, 10)

	doc := mustLayout(t, New(b.a, PageConfig{Width: 50, Height: 30}))
	if diff := cmp.Diff([]int{1, 2}, fragmentCounts(doc)); diff != "" {
		t.Errorf("fragments per page mismatch (-want +got):\n%s", diff)
	}
	if doc.Pages[1].Fragments[0].Type != FragmentSpacer {
		t.Errorf("expected spacer first on page 2, got %s", doc.Pages[1].Fragments[0].Type)
	}
}

func TestLayout_KeepTogetherOverflowWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b, root := newDoc(t, "")
	b.block(root, "height: 5")
	keep := b.block(root, "keep-together: yes")
	for i := 0; i < 15; i++ {
		b.block(keep, "height: 10")
	}
	b.block(root, "height: 5")

	doc := mustLayout(t, New(b.a, PageConfig{Width: 50, Height: 100}, WithLogger(zap.New(core))))
	if diff := cmp.Diff([]int{1, 15, 1}, fragmentCounts(doc)); diff != "" {
		t.Fatalf("fragments per page mismatch (-want +got):\n%s", diff)
	}
	if !doc.Pages[1].Overflow || doc.Pages[1].Height != 150 {
		t.Errorf("expected overflowing page of 150, got %+v", doc.Pages[1])
	}
	if !errors.Is(doc.Err(), paginate.ErrPageOverflow) {
		t.Errorf("expected overflow warning, got %v", doc.Err())
	}
	if logs.FilterMessage("page overflow").Len() != 1 {
		t.Errorf("expected one logged overflow, got %d", logs.Len())
	}
}

func TestLayout_ForcedPageBreaks(t *testing.T) {
	b, root := newDoc(t, "")
	b.block(root, "height: 5")
	b.block(root, "height: 5; page-break-before: always")
	b.block(root, "page-break-after: always") // empty, carries the break forward
	b.block(root, "height: 5")
	p := b.block(root, "")
	b.word(p, 10)
	b.attach(p, b.a.AddText("w", style.ParseInlineStyle("break-before: page"),
		tree.Metrics{MinWidth: 10, MaxWidth: 10, Height: lineHeight, Measured: true}))

	doc := mustLayout(t, New(b.a, PageConfig{Width: 50, Height: 100}))
	if diff := cmp.Diff([]int{1, 1, 2, 1}, fragmentCounts(doc)); diff != "" {
		t.Errorf("fragments per page mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout_InlineBoxHeight(t *testing.T) {
	b, root := newDoc(t, "")
	b.word(root, 10)
	box := b.inline(root, "width: 30")
	b.word(box, 20)
	b.word(box, 20)

	doc := mustLayout(t, New(b.a, PageConfig{Width: 100, Height: 100}))
	line := doc.Pages[0].Fragments[0]
	if line.Height != 20 {
		t.Errorf("expected line height from the two inner lines, got %v", line.Height)
	}
	bx := line.Boxes[1]
	if bx.Node != box || bx.Kind != tree.KindInline || bx.Width != 30 || bx.Height != 20 || bx.X != 10 {
		t.Errorf("unexpected inline box %+v", bx)
	}
	want := []Box{
		{Node: bx.Boxes[0].Node, Kind: tree.KindText, X: 10, Y: 0, Width: 20, Height: lineHeight},
		{Node: bx.Boxes[1].Node, Kind: tree.KindText, X: 10, Y: lineHeight, Width: 20, Height: lineHeight},
	}
	if diff := cmp.Diff(want, bx.Boxes); diff != "" {
		t.Errorf("inner lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout_InlineBoxExplicitHeightKeepsContent(t *testing.T) {
	b, root := newDoc(t, "")
	box := b.inline(root, "margin-left: 4; height: 50")
	inner := b.word(box, 20)

	doc := mustLayout(t, New(b.a, PageConfig{Width: 100, Height: 100}))
	bx := doc.Pages[0].Fragments[0].Boxes[0]
	if bx.Height != 50 {
		t.Errorf("expected explicit height, got %v", bx.Height)
	}
	if len(bx.Boxes) != 1 || bx.Boxes[0].Node != inner || bx.Boxes[0].X != 4 {
		t.Errorf("expected content placed after the margin, got %+v", bx.Boxes)
	}
}

func TestLayout_OrphansWidows(t *testing.T) {
	tests := []struct {
		name string
		css  string
		lead float64
		want []int
	}{
		{"one line left behind", "", 20, []int{2, 2}},
		{"orphans push the paragraph", "orphans: 2", 20, []int{1, 3}},
		{"one line carried over", "", 10, []int{3, 1}},
		{"widows carry two lines", "widows: 2", 10, []int{2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, root := newDoc(t, "")
			b.block(root, fmt.Sprintf("height: %g", tt.lead))
			p := b.block(root, tt.css)
			b.sentence(p, 20, 20, 20)

			doc := mustLayout(t, New(b.a, PageConfig{Width: 20, Height: 30}))
			if diff := cmp.Diff(tt.want, fragmentCounts(doc)); diff != "" {
				t.Errorf("fragments per page mismatch (-want +got):\n%s", diff)
			}
			for _, page := range doc.Pages {
				if page.Overflow {
					t.Errorf("page %d overflows", page.Number)
				}
			}
		})
	}
}

func TestLayout_WhitespaceOnlyParagraph(t *testing.T) {
	layoutWith := func(css string) *Document {
		b, root := newDoc(t, css)
		b.block(root, "height: 5")
		b.space(root, 5)
		b.block(root, "height: 5")
		return mustLayout(t, New(b.a, PageConfig{Width: 50, Height: 100}))
	}

	doc := layoutWith("")
	if diff := cmp.Diff([]int{2}, fragmentCounts(doc)); diff != "" {
		t.Fatalf("fragments per page mismatch (-want +got):\n%s", diff)
	}
	if h, y := doc.Pages[0].Height, doc.Pages[0].Fragments[1].Y; h != 10 || y != 5 {
		t.Errorf("collapsed white space must not add a line, height %v, second block at %v", h, y)
	}

	preserved := layoutWith("white-space: pre")
	if diff := cmp.Diff([]int{3}, fragmentCounts(preserved)); diff != "" {
		t.Errorf("preserved white space keeps its line (-want +got):\n%s", diff)
	}
}

func TestLayout_Image(t *testing.T) {
	b, root := newDoc(t, "")
	b.image(root, "width: 40", tree.Metrics{MaxWidth: 80, Height: 60, Measured: true})

	doc := mustLayout(t, New(b.a, PageConfig{Width: 100, Height: 100}))
	bx := doc.Pages[0].Fragments[0].Boxes[0]
	if bx.Width != 40 || bx.Height != 30 {
		t.Errorf("expected image scaled to 40x30, got %+v", bx)
	}
}

func TestLayout_PreserveWhitespaceFromOwner(t *testing.T) {
	layoutWith := func(css string) *Document {
		b, root := newDoc(t, css)
		b.word(root, 10)
		b.space(root, 5)
		b.word(root, 10)
		return mustLayout(t, New(b.a, PageConfig{Width: 20, Height: 100}))
	}

	collapsed := layoutWith("")
	if w := collapsed.Pages[0].Fragments[0].Width; w != 10 {
		t.Errorf("expected collapsed trailing space, width %v", w)
	}
	preserved := layoutWith("white-space: pre")
	if w := preserved.Pages[0].Fragments[0].Width; w != 15 {
		t.Errorf("expected preserved space, width %v", w)
	}
}

func TestLayout_UnresolvableWidth(t *testing.T) {
	b, root := newDoc(t, "")
	b.word(root, 10)
	bad := b.attach(root, b.a.AddText("?", nil, tree.Metrics{}))

	doc, err := New(b.a, PageConfig{Width: 100, Height: 100}).Layout(context.Background())
	if doc != nil {
		t.Error("no document may be returned on failure")
	}
	var uw *UnresolvableWidthError
	if !errors.As(err, &uw) || uw.Node != bad {
		t.Errorf("expected UnresolvableWidthError for %d, got %v", bad, err)
	}
	if errors.Is(err, ErrInterrupted) {
		t.Error("a failure is not an interruption")
	}
}

func TestLayout_NoRoot(t *testing.T) {
	_, err := New(tree.NewArena(), PageConfig{Width: 10, Height: 10}).Layout(context.Background())
	if !errors.Is(err, ErrNoRoot) {
		t.Errorf("expected ErrNoRoot, got %v", err)
	}
}

func TestLayout_Interrupted(t *testing.T) {
	b, root := newDoc(t, "")
	for i := 0; i < 20; i++ {
		b.sentence(b.block(root, ""), 10, 20, 30)
	}
	e := New(b.a, PageConfig{Width: 50, Height: 50})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc, err := e.Layout(ctx)
	if doc != nil {
		t.Error("no document may be returned when interrupted")
	}
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}

	// The engine stays usable.
	got := mustLayout(t, e)
	want := mustLayout(t, New(b.a, PageConfig{Width: 50, Height: 50}))
	if diff := cmp.Diff(want.Pages, got.Pages); diff != "" {
		t.Errorf("layout after interruption differs:\n%s", diff)
	}
}

func TestLayout_InterruptedWithCause(t *testing.T) {
	b, root := newDoc(t, "")
	var blocks []tree.Handle
	for i := 0; i < 50; i++ {
		blk := b.block(root, "")
		b.sentence(blk, 10, 20, 30)
		blocks = append(blocks, blk)
	}
	e := New(b.a, PageConfig{Width: 50, Height: 50})

	// Part of pass 1 completes before the cancellation.
	if _, err := e.Sizes(context.Background(), blocks[0]); err != nil {
		t.Fatalf("Sizes: %v", err)
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	stop := errors.New("stop")
	cancel(stop)

	_, err := e.Layout(ctx)
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, stop) {
		t.Errorf("expected interruption with cause, got %v", err)
	}
	if _, err := e.Sizes(context.Background(), blocks[0]); err != nil {
		t.Errorf("completed results must stay usable: %v", err)
	}
}

func TestLayout_Deterministic(t *testing.T) {
	build := func() *tree.Arena {
		b, root := newDoc(t, "margin: 0 3")
		for i := 0; i < 12; i++ {
			css := "orphans: 2; widows: 2"
			if i%4 == 3 {
				css += "; keep-together: true"
			}
			blk := b.block(root, css)
			b.sentence(blk, 12, 7, 25, 18, 9, 31, 4, 16)
			b.image(blk, "", tree.Metrics{MaxWidth: float64(10 + i), Height: 12, Measured: true})
		}
		return b.a
	}
	cfg := PageConfig{Width: 70, FirstHeight: 40, Height: 60}

	e := New(build(), cfg)
	first := mustLayout(t, e)
	second := mustLayout(t, e)
	fresh := mustLayout(t, New(build(), cfg))

	if diff := cmp.Diff(first.Pages, second.Pages); diff != "" {
		t.Errorf("second run differs:\n%s", diff)
	}
	if diff := cmp.Diff(first.Pages, fresh.Pages); diff != "" {
		t.Errorf("fresh engine differs:\n%s", diff)
	}
	if first.RenderID == second.RenderID {
		t.Error("every render gets its own id")
	}
}

func TestLayout_ReplaceChildrenReusesCaches(t *testing.T) {
	b, root := newDoc(t, "")
	stable := b.block(root, "")
	for i := 0; i < 4; i++ {
		b.word(stable, 40)
	}
	region := b.block(root, "")
	b.word(region, 40)
	b.word(region, 40)

	cfg := PageConfig{Width: 50, Height: 20}
	e := New(b.a, cfg)
	before := mustLayout(t, e)
	if diff := cmp.Diff([]int{2, 2, 2}, fragmentCounts(before)); diff != "" {
		t.Fatalf("fragments per page mismatch (-want +got):\n%s", diff)
	}
	stableProps := e.Properties(stable)

	e.ResetStats()
	err := e.ReplaceChildren(region, func(a *tree.Arena, parent tree.Handle) error {
		for i := 0; i < 3; i++ {
			w := a.AddText("w", nil, tree.Metrics{MinWidth: 40, MaxWidth: 40, Height: lineHeight, Measured: true})
			if err := a.AppendChild(parent, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReplaceChildren: %v", err)
	}
	after := mustLayout(t, e)

	stats := e.Stats()
	if stats.PropsResolved != 3 {
		t.Errorf("expected only the 3 new nodes to resolve properties, got %d", stats.PropsResolved)
	}
	if stats.SizesReused == 0 || stats.FlowsReused == 0 {
		t.Errorf("expected the stable block to be reused, got %+v", stats)
	}
	if stats.PagesReused == 0 {
		t.Errorf("expected leading pages to be reused, got %+v", stats)
	}
	if e.Properties(stable) != stableProps {
		t.Error("properties of untouched nodes must not change")
	}

	want := mustLayout(t, New(b.a, cfg))
	if diff := cmp.Diff(want.Pages, after.Pages); diff != "" {
		t.Errorf("incremental layout differs from a fresh one:\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 2, 2, 1}, fragmentCounts(after)); diff != "" {
		t.Errorf("fragments per page mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout_InvalidateAfterStyleChange(t *testing.T) {
	b, root := newDoc(t, "")
	blk := b.block(root, "")
	b.sentence(blk, 20, 20)

	e := New(b.a, PageConfig{Width: 50, Height: 100})
	if got := fragmentCounts(mustLayout(t, e)); got[0] != 1 {
		t.Fatalf("expected one line, got %v", got)
	}

	b.a.Node(blk).Style = style.ParseInlineStyle("margin-left: 20")
	e.Invalidate(blk)
	doc := mustLayout(t, e)
	if got := fragmentCounts(doc); got[0] != 2 {
		t.Errorf("expected the indented block to need two lines, got %v", got)
	}
	if x := doc.Pages[0].Fragments[0].X; x != 20 {
		t.Errorf("expected x=20, got %v", x)
	}
}

func TestLayout_ConcurrentRenders(t *testing.T) {
	defer goleak.VerifyNone(t)

	build := func(n int) *Engine {
		b, root := newDoc(t, "")
		for i := 0; i < 10+n; i++ {
			b.sentence(b.block(root, "orphans: 2"), 15, 25, 10, 30)
		}
		return New(b.a, PageConfig{Width: 60, Height: 45})
	}

	const renders = 8
	want := make([]*Document, renders)
	for i := range want {
		want[i] = mustLayout(t, build(i))
	}

	got := make([]*Document, renders)
	engines := make([]*Engine, renders)
	for i := range engines {
		engines[i] = build(i)
	}
	g, ctx := errgroup.WithContext(context.Background())
	for i := range engines {
		g.Go(func() error {
			doc, err := engines[i].Layout(ctx)
			if err != nil {
				return fmt.Errorf("render %d: %w", i, err)
			}
			got[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if diff := cmp.Diff(want[i].Pages, got[i].Pages); diff != "" {
			t.Errorf("render %d differs from sequential run:\n%s", i, diff)
		}
	}
}

func TestLayout_ReplaceChildrenRestoresOnFailure(t *testing.T) {
	b, root := newDoc(t, "")
	region := b.block(root, "")
	b.sentence(region, 20, 20)

	e := New(b.a, PageConfig{Width: 50, Height: 100})
	before := mustLayout(t, e)
	var old []tree.Handle
	for c := range b.a.Children(region) {
		old = append(old, c)
	}

	errNoData := errors.New("no data")
	err := e.ReplaceChildren(region, func(a *tree.Arena, parent tree.Handle) error {
		w := a.AddText("w", nil, tree.Metrics{MinWidth: 5, MaxWidth: 5, Height: lineHeight, Measured: true})
		if err := a.AppendChild(parent, w); err != nil {
			return err
		}
		return errNoData
	})
	if !errors.Is(err, errNoData) {
		t.Fatalf("expected the build error, got %v", err)
	}

	var now []tree.Handle
	for c := range b.a.Children(region) {
		now = append(now, c)
	}
	if diff := cmp.Diff(old, now); diff != "" {
		t.Errorf("children not restored (-want +got):\n%s", diff)
	}
	after := mustLayout(t, e)
	if diff := cmp.Diff(before.Pages, after.Pages); diff != "" {
		t.Errorf("layout changed after a failed replacement:\n%s", diff)
	}
}
