package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and returns its result.
type WorkerFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result pairs the outcome of one item with its position in the input.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run processes items with numWorkers goroutines. The returned slice has one
// entry per item, in input order. Items never started because ctx was
// cancelled carry ctx.Err().
func Run[T, R any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T, R]) []Result[R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	results := make([]Result[R], len(items))
	for i := range results {
		results[i].Index = i
	}

	var wg sync.WaitGroup
	taskChan := make(chan int, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					continue
				}
				v, err := workerFunc(ctx, items[idx])
				results[idx].Value = v
				results[idx].Err = err
			}
		}()
	}

	next := 0
OUT:
	for ; next < len(items); next++ {
		select {
		case taskChan <- next:
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	for ; next < len(items); next++ {
		results[next].Err = ctx.Err()
	}
	return results
}

// Errors returns the non-nil errors of results in input order.
func Errors[R any](results []Result[R]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
