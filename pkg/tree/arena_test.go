package tree

import (
	"errors"
	"slices"
	"testing"

	"folio/pkg/style"
)

func makeTree(t *testing.T) (*Arena, Handle, Handle, Handle) {
	t.Helper()
	// block(span("hello"), image)
	a := NewArena()
	root := a.Add(KindBlock, nil)
	span := a.Add(KindInline, style.ParseInlineStyle("margin: 0 4"))
	img := a.Add(KindImage, nil)
	word := a.AddText("hello", nil, Metrics{MinWidth: 25, MaxWidth: 25, Height: 10, Measured: true})

	for _, link := range [][2]Handle{{root, span}, {span, word}, {root, img}} {
		if err := a.AppendChild(link[0], link[1]); err != nil {
			t.Fatalf("append %v: %v", link, err)
		}
	}
	return a, root, span, img
}

func TestAppendChildLinks(t *testing.T) {
	a, root, span, img := makeTree(t)

	if a.Root() != root {
		t.Errorf("expected root %d, got %d", root, a.Root())
	}
	kids := slices.Collect(a.Children(root))
	if !slices.Equal(kids, []Handle{span, img}) {
		t.Errorf("unexpected children %v", kids)
	}
	if a.Node(img).PrevSibling != span || a.Node(span).NextSibling != img {
		t.Error("sibling links not maintained")
	}
	if a.Node(span).Parent != root {
		t.Error("span.Parent should be root")
	}
}

func TestAppendChildRejectsCycles(t *testing.T) {
	a, root, span, _ := makeTree(t)

	inner := a.Add(KindInline, nil)
	if err := a.AppendChild(span, inner); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := a.AppendChild(inner, span); !errors.Is(err, ErrHasParent) {
		t.Errorf("expected ErrHasParent, got %v", err)
	}
	if err := a.AppendChild(inner, root); !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
	if err := a.AppendChild(inner, inner); err == nil {
		t.Error("self append should fail")
	}

	loose := a.Add(KindInline, nil)
	if err := a.AppendChild(loose, loose); !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle for self append, got %v", err)
	}
}

func TestAppendChildRejectsLeafParent(t *testing.T) {
	a, _, _, img := makeTree(t)
	child := a.Add(KindInline, nil)
	if err := a.AppendChild(img, child); !errors.Is(err, ErrLeafParent) {
		t.Errorf("expected ErrLeafParent, got %v", err)
	}
	if err := a.AppendChild(Handle(99), child); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestRemoveChildren(t *testing.T) {
	a, root, span, img := makeTree(t)

	removed := a.RemoveChildren(root)
	if !slices.Equal(removed, []Handle{span, img}) {
		t.Fatalf("unexpected removed %v", removed)
	}
	if got := slices.Collect(a.Children(root)); len(got) != 0 {
		t.Errorf("expected no children, got %v", got)
	}
	if !a.Detached(span) || a.Node(span).Parent != NoNode {
		t.Error("removed child should be detached")
	}

	// a detached node may be re-attached
	if err := a.AppendChild(root, img); err != nil {
		t.Errorf("re-append: %v", err)
	}
	if a.Detached(img) {
		t.Error("re-attached node still detached")
	}
}

func TestWalkAndAncestors(t *testing.T) {
	a, root, span, img := makeTree(t)

	var order []Kind
	a.Walk(root, func(h Handle) bool {
		order = append(order, a.Node(h).Kind)
		return true
	})
	want := []Kind{KindBlock, KindInline, KindText, KindImage}
	if !slices.Equal(order, want) {
		t.Errorf("walk order %v, want %v", order, want)
	}

	word := a.Node(span).FirstChild
	if got := slices.Collect(a.Ancestors(word)); !slices.Equal(got, []Handle{span, root}) {
		t.Errorf("ancestors %v", got)
	}

	var skipped int
	a.Walk(root, func(h Handle) bool {
		skipped++
		return h != span
	})
	if skipped != 3 {
		t.Errorf("expected walk to skip span's subtree, visited %d", skipped)
	}
	_ = img
}

func TestIsWhitespace(t *testing.T) {
	a := NewArena()
	tests := map[string]bool{" ": true, "\t\n": true, "": false, "a": false, " a ": false}
	for text, want := range tests {
		h := a.AddText(text, nil, Metrics{})
		if got := a.Node(h).IsWhitespace(); got != want {
			t.Errorf("%q: expected %v", text, want)
		}
	}
	if a.Node(a.Add(KindInline, nil)).IsWhitespace() {
		t.Error("boxes are never whitespace")
	}
}
