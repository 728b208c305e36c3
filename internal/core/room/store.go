package room

import (
	"context"

	"github.com/hay-kot/parley/internal/core/convo"
)

// Store defines persistence operations for room summaries.
type Store interface {
	// Get returns the summary for key. Returns convo.ErrNotFound if no summary
	// exists yet.
	Get(ctx context.Context, key convo.Key) (Summary, error)

	// MergePatch applies p to the summary for key, creating it first when
	// missing. Fields not touched by p keep their stored values.
	MergePatch(ctx context.Context, key convo.Key, p Patch) (Summary, error)

	// List returns every stored summary.
	List(ctx context.Context) ([]Summary, error)
}
