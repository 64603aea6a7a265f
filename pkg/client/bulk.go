package client

import (
	"context"
	"sync"
	"time"

	"github.com/veyra-labs/ledgerkit/pkg/accounts"
)

// batchResult carries one batch call's outcome back to the collector.
type batchResult struct {
	call    int
	records [][]byte
	err     error
}

// FetchBulkParallel reads a record population like FetchBulk but runs the
// batch calls through a bounded worker pool. Results come back in batch
// order. The first failed batch cancels the remaining workers and its error
// is returned; records from completed batches are discarded.
func (c *Client[C]) FetchBulkParallel(ctx context.Context, req BulkRequest, concurrency int, fetch BatchFetchFunc[C]) ([][]byte, error) {
	plan, err := accounts.PlanBatches(req.Type, req.Count, c.cfg.MaxResponseBytes)
	if err != nil {
		return nil, err
	}
	if concurrency <= 1 || plan.Calls <= 1 {
		return c.FetchBulk(ctx, req, fetch)
	}
	if concurrency > plan.Calls {
		concurrency = plan.Calls
	}

	start := time.Now()
	c.logger.Debug().
		Str("record_type", string(req.Type)).
		Int("calls", plan.Calls).
		Int("concurrency", concurrency).
		Msg("Starting parallel bulk fetch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	calls := make(chan int, plan.Calls)
	for i := 0; i < plan.Calls; i++ {
		calls <- i
	}
	close(calls)

	results := make(chan batchResult, plan.Calls)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for call := range calls {
				select {
				case <-ctx.Done():
					return
				default:
				}

				offset := call * plan.BatchSize
				limit := plan.BatchSize
				if remaining := req.Count - offset; remaining < limit {
					limit = remaining
				}

				records, err := c.executeBatch(ctx, req.Endpoint, offset, limit, fetch)
				results <- batchResult{call: call, records: records, err: err}
				if err != nil {
					// Stop the pool; remaining batches would fail the same way.
					cancel()
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	batches := make([][][]byte, plan.Calls)
	var firstErr error
	done := 0
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		batches[res.call] = res.records
		done++
	}
	if firstErr != nil {
		c.logger.Warn().
			Err(firstErr).
			Int("completed", done).
			Int("total", plan.Calls).
			Msg("Parallel bulk fetch aborted")
		return nil, firstErr
	}

	out := make([][]byte, 0, req.Count)
	for _, b := range batches {
		out = append(out, b...)
	}

	c.logger.Debug().
		Str("record_type", string(req.Type)).
		Int("records", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Parallel bulk fetch complete")
	return out, nil
}
