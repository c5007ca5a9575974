package layout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"folio/pkg/paginate"
	"folio/pkg/style"
	"folio/pkg/tree"
)

// PageConfig is the page content area.
type PageConfig struct {
	Width       float64
	FirstHeight float64 // zero means Height
	Height      float64
}

func (c PageConfig) pagination() paginate.Config {
	return paginate.Config{FirstHeight: c.FirstHeight, Height: c.Height}
}

// Stats counts cache activity; useful to check how much a re-layout reused.
type Stats struct {
	PropsResolved int
	SizesComputed int
	SizesReused   int
	FlowsBuilt    int
	FlowsReused   int
	PagesReused   int
}

type Option func(*Engine)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMode sets the width mode used when filling lines.
func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

// Engine runs the three layout passes over one document tree:
//  1. intrinsic sizing, bottom-up, cached per node
//  2. line breaking, top-down, cached per box and available width
//  3. pagination of the resulting unit stream, resumed from the first
//     page a change can affect
//
// Results of each pass are kept in separate tables keyed by node handle, so
// invalidating a subtree only drops what depends on it. An Engine is used by
// one goroutine at a time; independent documents get independent engines.
type Engine struct {
	arena *tree.Arena
	page  PageConfig
	mode  Mode
	log   *zap.Logger

	props map[tree.Handle]style.StaticBoxLayoutProperties
	sizes map[tree.Handle]Sizes
	flows map[tree.Handle]*flow

	pagination *paginate.Result
	stats      Stats
}

func New(arena *tree.Arena, page PageConfig, opts ...Option) *Engine {
	e := &Engine{
		arena: arena,
		page:  page,
		log:   zap.NewNop(),
		props: make(map[tree.Handle]style.StaticBoxLayoutProperties),
		sizes: make(map[tree.Handle]Sizes),
		flows: make(map[tree.Handle]*flow),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Arena() *tree.Arena { return e.arena }

func (e *Engine) Stats() Stats { return e.stats }

// ResetStats zeroes the counters, keeping every cache.
func (e *Engine) ResetStats() { e.stats = Stats{} }

// Properties returns the resolved layout properties of h, resolving them on
// first use. The snapshot is computed once per node and never modified;
// the returned copy may be shared freely.
func (e *Engine) Properties(h tree.Handle) style.StaticBoxLayoutProperties {
	if p, ok := e.props[h]; ok {
		return p
	}
	var raw *style.Style
	if n := e.arena.Node(h); n != nil {
		raw = n.Style
	}
	p := style.Resolve(raw)
	if p.MarginsClamped {
		e.log.Debug("negative margin clamped", zap.String("node", e.arena.Label(h)))
	}
	e.props[h] = p
	e.stats.PropsResolved++
	return p
}

// Sizes returns the pass-1 widths of h, computing them if needed.
func (e *Engine) Sizes(ctx context.Context, h tree.Handle) (Sizes, error) {
	return e.computeSizes(ctx, h)
}

// Layout runs all passes and returns the page geometry. Cached results of
// earlier runs are reused unless invalidated.
//
// An UnresolvableWidthError fails the render and no document is returned.
// Cancellation of ctx returns an error matching ErrInterrupted; caches built
// for nodes completed before the cancellation stay valid.
func (e *Engine) Layout(ctx context.Context) (*Document, error) {
	root := e.arena.Root()
	if n := e.arena.Node(root); n == nil || n.Kind != tree.KindBlock {
		return nil, ErrNoRoot
	}

	id := uuid.NewString()
	log := e.log.With(zap.String("render", id))
	started := time.Now()

	if _, err := e.computeSizes(ctx, root); err != nil {
		return nil, e.failed(ctx, log, "intrinsic sizing", err)
	}
	sized := time.Now()

	if _, err := e.layoutFlow(ctx, root, e.page.Width); err != nil {
		return nil, e.failed(ctx, log, "line breaking", err)
	}
	broken := time.Now()

	units, refs, err := e.collect(ctx, root)
	if err != nil {
		return nil, e.failed(ctx, log, "pagination", err)
	}
	res, first, err := paginate.Resume(ctx, e.pagination, units, e.page.pagination())
	if err != nil {
		return nil, e.failed(ctx, log, "pagination", err)
	}
	e.pagination = res
	e.stats.PagesReused += first

	doc := e.document(id, res, refs)
	for _, w := range doc.Warnings {
		log.Warn("page overflow", zap.Error(w))
	}
	log.Debug("layout done",
		zap.Duration("sizing", sized.Sub(started)),
		zap.Duration("breaking", broken.Sub(sized)),
		zap.Duration("pagination", time.Since(broken)),
		zap.Int("units", len(units)),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("pages_reused", first),
		zap.Int("sizes_reused", e.stats.SizesReused),
		zap.Int("flows_reused", e.stats.FlowsReused))
	return doc, nil
}

func (e *Engine) failed(ctx context.Context, log *zap.Logger, pass string, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrInterrupted) {
		err = interrupted(ctx)
	}
	log.Debug("layout aborted", zap.String("pass", pass), zap.Error(err))
	return fmt.Errorf("%s: %w", pass, err)
}

// Invalidate drops every derived result for the subtree of h and the sizes
// and flows of its ancestors. Call it after changing the style, text or
// metrics of nodes under h.
func (e *Engine) Invalidate(h tree.Handle) {
	e.arena.Walk(h, func(n tree.Handle) bool {
		e.forget(n)
		return true
	})
	e.invalidateAncestors(h)
}

// ReplaceChildren removes the children of parent and lets build attach new
// ones, as a repeating region does when its data changes. Only the removed
// subtrees and the ancestors of parent lose their cached results; parent
// keeps its resolved properties.
//
// When build fails, whatever it attached is removed again and the previous
// children are restored; only their cached results are lost.
func (e *Engine) ReplaceChildren(parent tree.Handle, build func(a *tree.Arena, parent tree.Handle) error) error {
	if e.arena.Node(parent) == nil {
		return fmt.Errorf("replace children of %d: %w", parent, tree.ErrInvalidHandle)
	}
	old := e.detachChildren(parent)
	delete(e.sizes, parent)
	delete(e.flows, parent)
	e.invalidateAncestors(parent)

	if build == nil {
		return nil
	}
	if err := build(e.arena, parent); err != nil {
		e.detachChildren(parent)
		for _, h := range old {
			err = multierr.Append(err, e.arena.AppendChild(parent, h))
		}
		return fmt.Errorf("replace children of %s (previous children restored): %w", e.arena.Label(parent), err)
	}
	return nil
}

// detachChildren removes the children of parent and forgets everything
// cached for their subtrees.
func (e *Engine) detachChildren(parent tree.Handle) []tree.Handle {
	removed := e.arena.RemoveChildren(parent)
	for _, old := range removed {
		e.arena.Walk(old, func(n tree.Handle) bool {
			e.forget(n)
			return true
		})
	}
	return removed
}

func (e *Engine) forget(h tree.Handle) {
	delete(e.props, h)
	delete(e.sizes, h)
	delete(e.flows, h)
}

func (e *Engine) invalidateAncestors(h tree.Handle) {
	for a := range e.arena.Ancestors(h) {
		delete(e.sizes, a)
		delete(e.flows, a)
	}
}
