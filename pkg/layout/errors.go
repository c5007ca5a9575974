package layout

import (
	"context"
	"errors"
	"fmt"

	"folio/pkg/tree"
)

var (
	// ErrInterrupted is returned when the caller cancelled the render. It is
	// a terminal condition distinct from processing failures.
	ErrInterrupted = errors.New("layout interrupted")
	// ErrUnresolvableWidth is returned when a node's content-chunk width is
	// unavailable. The render fails and no pages are returned.
	ErrUnresolvableWidth = errors.New("unresolvable width")
	// ErrNoRoot is returned when the arena has no root block.
	ErrNoRoot = errors.New("document has no root block")
)

// UnresolvableWidthError names the node whose width could not be resolved.
type UnresolvableWidthError struct {
	Node   tree.Handle
	Kind   tree.Kind
	Label  string
	Reason string
}

func (e *UnresolvableWidthError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrUnresolvableWidth, e.Label, e.Reason)
}

func (e *UnresolvableWidthError) Is(target error) bool {
	return target == ErrUnresolvableWidth
}

// interrupted checks ctx and converts cancellation into ErrInterrupted.
func interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}
