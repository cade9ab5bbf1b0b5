// Package concurrent adapts the teacher's concurrency helpers
// (database/concurrent.go, util/util.go) from dumping DDL strings
// concurrently into two generic helpers: an order-preserving concurrent
// map and a sorted-key map iterator.
package concurrent

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"
)

type orderedOutput[T any] struct {
	order  int
	output T
}

// MapWithError runs f over inputs with bounded concurrency, preserving input
// order in the returned slice. concurrency <= 0 means unlimited; concurrency
// == 1 behaves sequentially. The first error cancels the remaining work and
// is returned.
func MapWithError[Tin any, Tout any](inputs []Tin, concurrency int, f func(Tin) (Tout, error)) ([]Tout, error) {
	eg, ctx := errgroup.WithContext(context.Background())
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}

	results := make([]orderedOutput[Tout], len(inputs))
	for i := range inputs {
		i, in := i, inputs[i]
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := f(in)
			if err != nil {
				return err
			}
			results[i] = orderedOutput[Tout]{order: i, output: out}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b orderedOutput[Tout]) int {
		return cmp.Compare(a.order, b.order)
	})

	out := make([]Tout, len(results))
	for i, r := range results {
		out[i] = r.output
	}
	return out, nil
}

// SortedKeys returns an iterator over m's entries in ascending key order,
// giving deterministic output (e.g. information_schema rows, YAML table
// enumeration) regardless of Go's randomized map iteration.
func SortedKeys[T any](m map[string]T) iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
