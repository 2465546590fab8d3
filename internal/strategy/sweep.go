package strategy

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Grid expands axes into every combination of their values. Keys are visited
// in sorted order and the last key varies fastest, so the result is
// deterministic. An empty grid yields one empty combination.
func Grid(axes map[string][]any) []Params {
	keys := make([]string, 0, len(axes))
	for k := range axes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []Params{{}}
	for _, k := range keys {
		next := make([]Params, 0, len(combos)*len(axes[k]))
		for _, c := range combos {
			for _, v := range axes[k] {
				p := c.With(Params{k: v})
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos
}

// Sweep evaluates req once per combination of axes, each combination
// overriding req.Params. Bars are loaded once and shared read-only; every
// evaluation owns its own strategy, engine and trackers. At most workers
// evaluations run at once (GOMAXPROCS when workers <= 0). Results are
// ordered by net profit, best first, and are not saved.
func (bt *Backtester) Sweep(ctx context.Context, req Request, axes map[string][]any, workers int) ([]*Result, error) {
	prices, err := bt.load(ctx, req)
	if err != nil {
		return nil, err
	}
	combos := Grid(axes)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	bt.log.Info("sweep started", "strategy", req.Strategy, "symbol", req.Symbol, "combinations", len(combos), "workers", workers)

	results := make([]*Result, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, combo := range combos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := req
			r.Params = req.Params.With(combo)
			res, err := bt.evaluate(prices, r)
			if err != nil {
				return fmt.Errorf("sweep %v: %w", combo, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// NaN profits sort last.
	slices.SortStableFunc(results, func(a, b *Result) int {
		return cmp.Compare(b.NetProfit(), a.NetProfit())
	})
	return results, nil
}
