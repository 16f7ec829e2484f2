// Package fanout runs batches of independent remote calls and joins on all of them.
//
// A failing item never aborts the batch: its error is logged and the item is left out
// of the result. Callers can only observe failures as missing results.
package fanout

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	limit int
	label string
}

// Limit bounds the number of calls in flight. n < 1 means no limit.
func Limit(n int) Option {
	return optionFunc(func(c *config) {
		c.limit = n
	})
}

// Label names the batch in log messages
func Label(s string) Option {
	return optionFunc(func(c *config) {
		c.label = s
	})
}

func newConfig(opts []Option) config {
	c := config{limit: -1, label: "batch"}
	for _, o := range opts {
		o.apply(&c)
	}
	return c
}

// Collect calls fn for every item concurrently and returns the successful results once all
// calls have finished. Results are appended in completion order, not in input order.
func Collect[T, R any](ctx context.Context, logger *zap.SugaredLogger, items []T, fn func(context.Context, T) (R, error), opts ...Option) []R {
	cfg := newConfig(opts)

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]R, 0, len(items))
	)
	if cfg.limit > 0 {
		g.SetLimit(cfg.limit)
	}

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := call(ctx, fn, item)
			if err != nil {
				logger.Errorf("%s: item %d failed: %v", cfg.label, i, err)
				return nil
			}

			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}

	// per-item errors never reach the group
	_ = g.Wait()

	logger.Debugf("%s: %d of %d items succeeded", cfg.label, len(results), len(items))

	return results
}

// Each is Collect for calls without a result. It returns the number of successful calls.
func Each[T any](ctx context.Context, logger *zap.SugaredLogger, items []T, fn func(context.Context, T) error, opts ...Option) int {
	done := Collect(ctx, logger, items, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	}, opts...)
	return len(done)
}

// call turns a panic in fn into an error of that single item
func call[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, item)
}
