package coverage

import (
	"sync"

	"github.com/inodb/dirseq/internal/gff"
)

// WorkItem holds a parsed feature ready for aggregation.
type WorkItem struct {
	Seq     int
	Feature *gff.Feature
}

// WorkResult holds the aggregate for a single feature.
type WorkResult struct {
	Seq     int
	Feature *gff.Feature
	Result  *Result
	Err     error
}

// ParallelAggregate aggregates work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is below 1, a single worker is used.
func (a *Aggregator) ParallelAggregate(items <-chan WorkItem, workers int) <-chan WorkResult {
	workers = max(workers, 1)

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range items {
				res, err := a.Aggregate(item.Feature)
				results <- WorkResult{
					Seq:     item.Seq,
					Feature: item.Feature,
					Result:  res,
					Err:     err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order,
// holding back results that arrive ahead of their turn. Once fn fails, the
// remaining results are discarded so workers can exit, and the first error
// is returned after the channel closes.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	held := make(map[int]WorkResult)
	next := 0
	var firstErr error

	for r := range results {
		if firstErr != nil {
			continue
		}
		held[r.Seq] = r
		for ready, ok := held[next]; ok; ready, ok = held[next] {
			delete(held, next)
			next++
			if firstErr = fn(ready); firstErr != nil {
				break
			}
		}
	}

	return firstErr
}
