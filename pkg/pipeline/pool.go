package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"map_graph/pkg/chunk"
)

// MapOrdered runs fn over every range with at most workers in flight and
// returns the results indexed by Range.Index, whatever order the workers
// finish in. The first error cancels ranges that have not started yet.
func MapOrdered[T any](ctx context.Context, ranges []chunk.Range, workers int, fn func(ctx context.Context, r chunk.Range) (T, error)) ([]T, error) {
	for i, r := range ranges {
		if r.Index != i {
			return nil, errors.Errorf("range %d has index %d", i, r.Index)
		}
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]T, len(ranges))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, r := range ranges {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := fn(ctx, r)
			if err != nil {
				return errors.Wrapf(err, "chunk %d", r.Index)
			}
			results[r.Index] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
