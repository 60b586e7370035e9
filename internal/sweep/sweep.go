// Package sweep runs independent jobs concurrently with a bound on how many
// are in flight.
package sweep

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the number of jobs run at once when the caller passes zero.
const DefaultLimit = 8

// Run calls fn for every job, at most limit at a time, and returns the results
// in job order. Every job runs; fn sees ctx and decides what a cancelled job
// reports.
func Run[J, R any](ctx context.Context, jobs []J, limit int, fn func(context.Context, J) R) []R {
	results := make([]R, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(limitOrDefault(limit))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = fn(ctx, job)
			return nil
		})
	}
	g.Wait()
	return results
}

// Each calls fn for every job, at most limit at a time, and returns the first
// error. After a failure the context passed to running jobs is cancelled and
// jobs not yet started are skipped.
func Each[J any](ctx context.Context, jobs []J, limit int, fn func(context.Context, J) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limitOrDefault(limit))
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		job := job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, job)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// gctx is always done once Wait returns; only the caller's ctx says
	// whether jobs were skipped.
	return ctx.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
