package asyncx

import (
	"context"
	"fmt"
)

// ForEachGroup partitions items by key, runs the groups concurrently and the
// items of one group sequentially in input order. A failing item does not
// stop its group. Panics are recovered and reported as errors. The returned
// slice holds one entry per item, nil on success.
func ForEachGroup[T any, K comparable](ctx context.Context, items []T, key func(T) K, fn func(ctx context.Context, item T) error) []error {
	type indexed struct {
		i    int
		item T
	}

	var order []K
	groups := make(map[K][]indexed)
	for i, item := range items {
		k := key(item)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], indexed{i, item})
	}

	errs := make([]error, len(items))
	Settle(ctx, order, func(ctx context.Context, k K) (struct{}, error) {
		for _, it := range groups[k] {
			errs[it.i] = safeCall(ctx, it.item, fn)
		}
		return struct{}{}, nil
	})
	return errs
}

func safeCall[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
