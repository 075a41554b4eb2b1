// Package workpool runs independent, index-addressed jobs on a bounded set of goroutines.
package workpool

import (
	"context"
	"runtime"
	"sync"
)

// DefaultConcurrency returns the worker count used when none is configured
func DefaultConcurrency() int {
	return runtime.GOMAXPROCS(0)
}

// Func computes the result for item i
type Func[T any] func(ctx context.Context, i int) (T, error)

type indexedResult[T any] struct {
	index  int
	result T
	err    error
}

// Map calls fn for every index in [0, n) using at most workers goroutines and
// returns the results in index order. The first error cancels outstanding work
// and is returned; results are then discarded.
func Map[T any](ctx context.Context, n, workers int, fn Func[T]) ([]T, error) {
	results := make([]T, n)
	if n == 0 {
		return results, nil
	}

	if workers <= 0 {
		workers = DefaultConcurrency()
	}
	if workers > n {
		workers = n
	}

	// single worker runs inline
	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := fn(ctx, i)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	itemChan := make(chan int, n)
	resultChan := make(chan indexedResult[T], n)

	var wg sync.WaitGroup
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go worker(workerCtx, &wg, fn, itemChan, resultChan)
	}

	go func() {
		defer close(itemChan)
		for i := 0; i < n; i++ {
			select {
			case <-workerCtx.Done():
				return
			case itemChan <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstErr error
	received := 0
	for res := range resultChan {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		results[res.index] = res.result
		received++
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if received < n {
		// cancelled by the caller before every item ran
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func worker[T any](
	ctx context.Context,
	wg *sync.WaitGroup,
	fn Func[T],
	items <-chan int,
	results chan<- indexedResult[T],
) {
	defer wg.Done()

	for i := range items {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := fn(ctx, i)
		results <- indexedResult[T]{index: i, result: res, err: err}
	}
}
