package asyncx

import (
	"context"
	"sync"
)

// AsyncAll runs fn for every item concurrently and returns the results in
// input order. The first error cancels the context handed to the remaining
// calls and is returned once every goroutine has exited.
func AsyncAll[T any, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			result, err := fn(ctx, item)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = result
		}(i, item)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Result pairs a value with the error produced alongside it
type Result[R any] struct {
	Value R
	Err   error
}

// Settle runs fn for every item concurrently and reports every outcome in
// input order. It never short-circuits.
func Settle[T any, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	out := make([]Result[R], len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			v, err := fn(ctx, item)
			out[i] = Result[R]{Value: v, Err: err}
		}(i, item)
	}
	wg.Wait()
	return out
}
