// Package fetchpool drains a list of network work units across a fixed
// number of workers. A failing unit is logged and dropped; it never aborts
// its siblings or the call.
package fetchpool

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Work processes one unit. A non-nil error drops the unit from the result.
type Work[T, R any] func(ctx context.Context, unit T) (R, error)

// Run processes units with min(limit, len(units)) concurrent workers. Each
// worker claims the next unit from a shared atomic cursor until none remain.
// Result order is unspecified. Run returns only after every worker has
// exhausted the cursor.
//
// Cancelling ctx does not stop the workers; it is handed to every unit,
// which then fails like any other failed unit.
func Run[T, R any](ctx context.Context, units []T, limit int, work Work[T, R]) []R {
	if len(units) == 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}
	workers := min(limit, len(units))

	var (
		cursor  atomic.Int64
		mu      sync.Mutex
		results = make([]R, 0, len(units))
		failed  atomic.Int64
	)

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(units) {
					return nil
				}
				r, err := work(ctx, units[idx])
				if err != nil {
					failed.Add(1)
					log.Printf("fetch unit %d/%d skipped: %v", idx+1, len(units), err)
					continue
				}
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		})
	}
	// Workers never return an error.
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		log.Printf("fetch pool: %d/%d units succeeded, %d failed", len(results), len(units), n)
	}
	return results
}

type indexed[R any] struct {
	idx int
	val R
}

// RunOrdered is Run with results returned in input order. Failed units are
// still absent.
func RunOrdered[T, R any](ctx context.Context, units []T, limit int, work Work[T, R]) []R {
	idxs := make([]int, len(units))
	for i := range idxs {
		idxs[i] = i
	}

	tagged := Run(ctx, idxs, limit, func(ctx context.Context, i int) (indexed[R], error) {
		r, err := work(ctx, units[i])
		if err != nil {
			return indexed[R]{}, err
		}
		return indexed[R]{idx: i, val: r}, nil
	})

	sort.Slice(tagged, func(a, b int) bool { return tagged[a].idx < tagged[b].idx })
	out := make([]R, len(tagged))
	for i, t := range tagged {
		out[i] = t.val
	}
	return out
}
