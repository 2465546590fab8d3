package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"quantick/internal/domain"
	"quantick/internal/engine"
	"quantick/internal/metrics"
	"quantick/internal/series"
	"quantick/internal/store"
	"quantick/internal/tick"
)

// Options configure a single evaluation.
type Options struct {
	Execution  engine.Config
	Convention metrics.Convention
	// RiskFree is the per-tick risk-free return used by the return ratios.
	RiskFree float64
	Params   Params
}

// Result is the outcome of one evaluation.
type Result struct {
	ID         string
	Strategy   string
	Symbol     string
	Market     domain.Market
	Params     Params
	Execution  engine.Config
	Convention metrics.Convention

	Start time.Time
	End   time.Time
	Ticks int

	Metrics metrics.Snapshot
	Trades  []domain.Trade
	Curve   []domain.EquityPoint

	CreatedAt time.Time
}

// NetProfit returns the realized profit of the run.
func (r *Result) NetProfit() float64 { return r.Metrics.Performance.NetProfit }

// Record converts the result to its stored form.
func (r *Result) Record() *store.RunRecord {
	return &store.RunRecord{
		ID:             r.ID,
		Strategy:       r.Strategy,
		Symbol:         strings.ToUpper(r.Symbol),
		Market:         string(r.Market),
		Params:         map[string]any(r.Params),
		Continuous:     r.Execution.Continuous,
		OnBarClose:     r.Execution.OnBarClose,
		BuyWithEquity:  r.Execution.BuyWithEquity,
		InitialCapital: r.Execution.InitialCapital,
		Convention:     string(r.Convention),
		Start:          r.Start,
		End:            r.End,
		Ticks:          r.Ticks,
		Metrics:        metrics.Map(r.Metrics.Named()),
		Trades:         r.Trades,
		CreatedAt:      r.CreatedAt,
	}
}

// Evaluate replays prices through s and the execution engine. Every tick the
// strategy produces a signal, the engine applies it, and the metrics are
// refreshed from the engine's state.
func Evaluate(prices series.Series, s Strategy, opts Options) (*Result, error) {
	if opts.Convention == "" {
		opts.Convention = metrics.ConventionZero
	}
	cur := tick.NewCursor(prices.First(), prices.Last())
	clock := cur.Clock()

	if err := s.Init(clock, prices, opts.Params); err != nil {
		return nil, fmt.Errorf("%w: init %s: %w", ErrInvalidRequest, s.Name(), err)
	}
	e, err := engine.New(clock, prices, opts.Execution)
	if err != nil {
		return nil, err
	}
	tr := metrics.NewTracker(opts.Execution.InitialCapital, opts.RiskFree, opts.Convention)
	timed, _ := prices.(series.Timed)

	curve := make([]domain.EquityPoint, 0, cur.Len())
	for cur.Next() {
		snap := e.Step(s.Next())
		m := tr.Update(snap)

		pt := domain.EquityPoint{
			Tick:       snap.Tick,
			Equity:     snap.Equity,
			OpenProfit: snap.OpenProfit,
			Return:     m.Returns.Return,
			Drawdown:   m.Peaks.EquityMaxDrawdown,
		}
		if timed != nil {
			pt.Time = timed.Time(snap.Tick)
		}
		curve = append(curve, pt)
	}

	res := &Result{
		Strategy:   s.Name(),
		Params:     opts.Params,
		Execution:  opts.Execution,
		Convention: opts.Convention,
		Ticks:      len(curve),
		Metrics:    tr.Last(),
		Trades:     e.Ledger().Trades(),
		Curve:      curve,
	}
	if named, ok := prices.(interface{ Symbol() string }); ok {
		res.Symbol = named.Symbol()
	}
	if len(curve) > 0 {
		res.Start = curve[0].Time
		res.End = curve[len(curve)-1].Time
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Backtester
// ---------------------------------------------------------------------------

// Request describes one backtest over stored bars.
type Request struct {
	Strategy   string             `json:"strategy"`
	Symbol     string             `json:"symbol"`
	Market     domain.Market      `json:"market,omitempty"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Params     Params             `json:"params,omitempty"`
	Execution  engine.Config      `json:"execution"`
	Convention metrics.Convention `json:"convention,omitempty"`
	RiskFree   float64            `json:"risk_free,omitempty"`
}

// Validate checks the request before any data is loaded.
func (r Request) Validate() error {
	var errs []error
	if r.Strategy == "" {
		errs = append(errs, errors.New("strategy is required"))
	}
	if r.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if !r.End.IsZero() && r.End.Before(r.Start) {
		errs = append(errs, fmt.Errorf("end %s is before start %s", r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly)))
	}
	if err := r.Execution.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := metrics.ParseConvention(string(r.Convention)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Backtester replays stored bar data through registered strategies and
// records the results.
type Backtester struct {
	bars     store.BarStore
	registry *Registry
	runs     store.RunStore
	curves   store.CurveStore
	log      *slog.Logger
	now      func() time.Time
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry) *Backtester {
	return &Backtester{
		bars:     barStore,
		registry: registry,
		log:      slog.Default().With("component", "backtester"),
		now:      time.Now,
	}
}

// WithRunStore makes Run persist summaries to runs.
func (bt *Backtester) WithRunStore(runs store.RunStore) *Backtester {
	bt.runs = runs
	return bt
}

// WithCurveStore makes Run persist equity curves and ledgers to curves.
func (bt *Backtester) WithCurveStore(curves store.CurveStore) *Backtester {
	bt.curves = curves
	return bt
}

// WithLogger replaces the backtester's logger.
func (bt *Backtester) WithLogger(log *slog.Logger) *Backtester {
	bt.log = log
	return bt
}

// Registry returns the strategy registry.
func (bt *Backtester) Registry() *Registry { return bt.registry }

// Run loads the requested bars, evaluates the strategy and saves the result
// to the configured stores.
func (bt *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	res, err := bt.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := bt.Save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Evaluate is Run without saving.
func (bt *Backtester) Evaluate(ctx context.Context, req Request) (*Result, error) {
	prices, err := bt.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return bt.evaluate(prices, req)
}

// Save persists res to whichever stores are configured.
func (bt *Backtester) Save(ctx context.Context, res *Result) error {
	if bt.runs != nil {
		if err := bt.runs.SaveRun(ctx, res.Record()); err != nil {
			return fmt.Errorf("saving run %s: %w", res.ID, err)
		}
	}
	if bt.curves != nil {
		if err := bt.curves.WriteCurve(ctx, res.ID, res.Curve); err != nil {
			return fmt.Errorf("saving curve of run %s: %w", res.ID, err)
		}
		if err := bt.curves.WriteLedger(ctx, res.ID, res.Trades); err != nil {
			return fmt.Errorf("saving ledger of run %s: %w", res.ID, err)
		}
	}
	return nil
}

func (bt *Backtester) load(ctx context.Context, req Request) (series.Series, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !bt.registry.Has(req.Strategy) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy)
	}
	end := req.End
	if end.IsZero() {
		end = bt.now().UTC()
	}
	market := req.Market
	if market == "" {
		market = domain.MarketUS
	}
	return series.Load(ctx, bt.bars, req.Symbol, market, req.Start, end)
}

// evaluate runs one evaluation with a fresh strategy instance.
func (bt *Backtester) evaluate(prices series.Series, req Request) (*Result, error) {
	s, err := bt.registry.New(req.Strategy)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := Evaluate(prices, s, Options{
		Execution:  req.Execution,
		Convention: req.Convention,
		RiskFree:   req.RiskFree,
		Params:     req.Params,
	})
	if err != nil {
		return nil, err
	}

	res.ID = uuid.NewString()
	res.Market = req.Market
	if res.Market == "" {
		res.Market = domain.MarketUS
	}
	if res.Symbol == "" {
		res.Symbol = strings.ToUpper(req.Symbol)
	}
	res.CreatedAt = bt.now().UTC()

	perf := res.Metrics.Performance
	bt.log.Info("backtest finished",
		"id", res.ID,
		"strategy", res.Strategy,
		"symbol", res.Symbol,
		"ticks", res.Ticks,
		"trades", len(res.Trades),
		"net_profit", perf.NetProfit,
		"equity", perf.Equity,
		"elapsed", time.Since(started),
	)
	return res, nil
}
