// Package us gathers US equity daily bars from the Alpaca market data API.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"quantick/internal/domain"
	"quantick/internal/gather"
	"quantick/internal/store"
	"quantick/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// BarSource is the part of the Alpaca market data client the gatherer uses.
// *marketdata.Client satisfies it.
type BarSource interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// NewBarSource returns an Alpaca market data client.
func NewBarSource(apiKey, apiSecret, dataURL string) BarSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// Options configure a DailyBarGatherer.
type Options struct {
	Symbols         []string
	StartDate       string
	BatchSize       int // symbols per API call
	MaxWorkers      int // concurrent batches
	RateLimitPerMin int // API calls per minute, 0 for unlimited
	MaxRetries      int
	RetryDelay      time.Duration
	Feed            string // iex or sip
}

// ---------------------------------------------------------------------------
// DailyBarGatherer
// ---------------------------------------------------------------------------

// DailyBarGatherer brings the bar store up to date with daily bars for a
// fixed symbol list. Each symbol resumes from the day after its last stored
// bar, so repeated runs only fetch what is missing.
type DailyBarGatherer struct {
	source   BarSource
	calendar Calendar
	store    store.BarStore
	opts     Options
	limiter  *util.RateLimiter
	now      func() time.Time
	log      *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer. A nil calendar makes the
// previous UTC day the end of the range.
func NewDailyBarGatherer(source BarSource, cal Calendar, s store.BarStore, opts Options) *DailyBarGatherer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	return &DailyBarGatherer{
		source:   source,
		calendar: cal,
		store:    s,
		opts:     opts,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		now:      time.Now,
		log:      slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run gathers missing bars and logs the summary.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	sum, err := g.Gather(ctx)
	if err != nil {
		return err
	}
	g.log.Info("complete",
		"symbols", sum.Symbols,
		"bars", sum.Bars,
		"empty", len(sum.Empty),
		"failed", len(sum.Failed),
	)
	return nil
}

// Gather fetches every missing day up to the latest finished trading day.
// Batches that fail after retries are reported in the summary rather than
// aborting the pass.
func (g *DailyBarGatherer) Gather(ctx context.Context) (gather.Summary, error) {
	start, err := time.Parse(time.DateOnly, g.opts.StartDate)
	if err != nil {
		return gather.Summary{}, fmt.Errorf("parsing start date %q: %w", g.opts.StartDate, err)
	}
	end, err := g.endDate()
	if err != nil {
		return gather.Summary{}, fmt.Errorf("determining end date: %w", err)
	}
	sum := gather.Summary{Range: gather.DateRange{Start: start, End: end}}

	symbols := normalizeSymbols(g.opts.Symbols)
	sum.Symbols = len(symbols)
	if sum.Range.Empty() || len(symbols) == 0 {
		return sum, nil
	}

	batches, err := g.plan(ctx, symbols, sum.Range)
	if err != nil {
		return sum, err
	}
	g.log.Info("starting us-daily",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"symbols", len(symbols),
		"batches", len(batches),
	)

	var (
		mu  sync.Mutex
		grp errgroup.Group
	)
	grp.SetLimit(g.opts.MaxWorkers)
	for i, b := range batches {
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, empty, err := g.runBatch(ctx, b, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.log.Error("batch failed",
					"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
					"err", err,
				)
				sum.Failed = append(sum.Failed, b.symbols...)
				return nil
			}
			sum.Bars += n
			sum.Empty = append(sum.Empty, empty...)
			g.log.Debug("batch done",
				"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
				"bars", n,
				"empty", len(empty),
			)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return sum, err
	}

	slices.Sort(sum.Empty)
	slices.Sort(sum.Failed)
	return sum, nil
}

// batch is a set of symbols fetched from the same start day.
type batch struct {
	from    time.Time
	symbols []string
}

// plan groups symbols by the first day each one is missing and splits the
// groups into batches of at most BatchSize symbols.
func (g *DailyBarGatherer) plan(ctx context.Context, symbols []string, rng gather.DateRange) ([]batch, error) {
	groups := make(map[time.Time][]string)
	for _, sym := range symbols {
		existing, err := g.store.ReadBars(ctx, sym, string(domain.MarketUS), rng.Start, rng.End.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("reading stored bars for %s: %w", sym, err)
		}
		from := rng.Start
		if n := len(existing); n > 0 {
			last := existing[n-1].Timestamp.UTC()
			from = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		}
		if from.After(rng.End) {
			continue
		}
		groups[from] = append(groups[from], sym)
	}

	days := make([]time.Time, 0, len(groups))
	for d := range groups {
		days = append(days, d)
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	var out []batch
	for _, d := range days {
		syms := groups[d]
		for i := 0; i < len(syms); i += g.opts.BatchSize {
			out = append(out, batch{from: d, symbols: syms[i:min(i+g.opts.BatchSize, len(syms))]})
		}
	}
	return out, nil
}

// runBatch fetches and stores one batch, returning the number of bars
// written and the symbols that came back empty.
func (g *DailyBarGatherer) runBatch(ctx context.Context, b batch, end time.Time) (int, []string, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.MaxRetries, g.opts.RetryDelay, func() error {
		if !g.limiter.Allow() {
			g.log.Debug("rate limited", "symbols", len(b.symbols))
			if err := g.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
		}
		var err error
		bars, err = g.fetchMultiBars(b.symbols, b.from, end)
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	hit := make(map[string]bool, len(b.symbols))
	for _, bar := range bars {
		hit[bar.Symbol] = true
	}
	var empty []string
	for _, sym := range b.symbols {
		if !hit[sym] {
			empty = append(empty, sym)
		}
	}

	if err := g.store.WriteBars(ctx, bars); err != nil {
		return 0, nil, fmt.Errorf("writing bars: %w", err)
	}
	return len(bars), empty, nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.source.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		// Daily bars are stamped at midnight ET, after midnight UTC.
		End:  end.AddDate(0, 0, 1),
		Feed: marketdata.Feed(g.opts.Feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// endDate is the last day to fetch.
func (g *DailyBarGatherer) endDate() (time.Time, error) {
	if g.calendar != nil {
		return LatestFinishedTradingDay(g.calendar, g.now())
	}
	now := g.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1), nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
