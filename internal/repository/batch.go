package repository

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// batchConcurrency bounds how many publishes embed in parallel.
const batchConcurrency = 4

// BatchResult reports the outcome for one entry of a batch publish.
type BatchResult struct {
	ID  string
	Err error
}

// PublishBatch publishes a set of items, embedding concurrently. Results
// are positional: result i corresponds to params[i]. Individual failures
// do not stop the batch; a cancelled context fails the remaining entries.
func (r *Repository) PublishBatch(ctx context.Context, params []PublishParams) []BatchResult {
	results := make([]BatchResult, len(params))
	if len(params) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, p := range params {
		i, p := i, p
		g.Go(func() error {
			id, err := r.Publish(gctx, p)
			results[i] = BatchResult{ID: id, Err: err}
			// Per-item errors are reported positionally, not propagated,
			// so one bad item does not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()
	return results
}
