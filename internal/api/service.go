// Package api serves backtests and stored runs over HTTP (gin) and gRPC.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quantick/internal/config"
	"quantick/internal/domain"
	"quantick/internal/store"
	"quantick/internal/strategy"
	"quantick/pkg/quantick"
)

// ErrUnavailable is returned when an endpoint needs a store the server was
// started without.
var ErrUnavailable = errors.New("not available on this server")

// Service is the transport-independent implementation behind both APIs.
type Service struct {
	bt       *strategy.Backtester
	runs     store.RunStore
	curves   store.CurveStore
	defaults config.Backtest
	log      *slog.Logger
}

// NewService creates a Service. runs and curves may be nil; endpoints that
// need them then fail with ErrUnavailable. The backtester should be wired to
// the same stores so that saved runs are visible.
func NewService(bt *strategy.Backtester, runs store.RunStore, curves store.CurveStore, defaults config.Backtest) *Service {
	return &Service{
		bt:       bt,
		runs:     runs,
		curves:   curves,
		defaults: defaults,
		log:      slog.Default().With("component", "api"),
	}
}

// Strategies returns the registered strategy names.
func (s *Service) Strategies() []string {
	return s.bt.Registry().List()
}

// ListRuns returns stored runs without trades, newest first.
func (s *Service) ListRuns(ctx context.Context, req quantick.ListRunsRequest) ([]quantick.Run, error) {
	if s.runs == nil {
		return nil, ErrUnavailable
	}
	recs, err := s.runs.ListRuns(ctx, store.RunFilter{
		Strategy: req.Strategy,
		Symbol:   req.Symbol,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]quantick.Run, len(recs))
	for i := range recs {
		out[i] = RunFromRecord(&recs[i])
	}
	return out, nil
}

// GetRun returns a stored run with its trades.
func (s *Service) GetRun(ctx context.Context, id string) (quantick.Run, error) {
	if s.runs == nil {
		return quantick.Run{}, ErrUnavailable
	}
	rec, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return quantick.Run{}, err
	}
	return RunFromRecord(rec), nil
}

// DeleteRun removes a stored run.
func (s *Service) DeleteRun(ctx context.Context, id string) error {
	if s.runs == nil {
		return ErrUnavailable
	}
	return s.runs.DeleteRun(ctx, id)
}

// Trades returns the full ledger of a stored run.
func (s *Service) Trades(ctx context.Context, id string) ([]quantick.Trade, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.curves == nil {
		return run.Trades, nil
	}
	trades, err := s.curves.ReadLedger(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading ledger of run %s: %w", id, err)
	}
	return tradesToWire(trades), nil
}

// Equity returns the per-tick equity curve of a stored run.
func (s *Service) Equity(ctx context.Context, id string) ([]quantick.EquityPoint, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	if s.curves == nil {
		return nil, ErrUnavailable
	}
	points, err := s.curves.ReadCurve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading curve of run %s: %w", id, err)
	}
	return curveToWire(points), nil
}

// Run evaluates req and, unless req.Save is false, stores the result.
func (s *Service) Run(ctx context.Context, req quantick.RunRequest) (quantick.Run, error) {
	r, err := s.request(req)
	if err != nil {
		return quantick.Run{}, err
	}

	var res *strategy.Result
	if req.Save == nil || *req.Save {
		res, err = s.bt.Run(ctx, r)
	} else {
		res, err = s.bt.Evaluate(ctx, r)
	}
	if err != nil {
		return quantick.Run{}, err
	}
	return RunFromRecord(res.Record()), nil
}

// Sweep evaluates the request across its axes and returns results best
// first, without trades.
func (s *Service) Sweep(ctx context.Context, req quantick.SweepRequest) ([]quantick.Run, error) {
	r, err := s.request(req.RunRequest)
	if err != nil {
		return nil, err
	}
	if len(req.Axes) == 0 {
		return nil, fmt.Errorf("%w: axes are required", strategy.ErrInvalidRequest)
	}
	workers := req.Workers
	if workers <= 0 {
		workers = s.defaults.Workers
	}

	results, err := s.bt.Sweep(ctx, r, req.Axes, workers)
	if err != nil {
		return nil, err
	}
	if req.Top > 0 && len(results) > req.Top {
		results = results[:req.Top]
	}

	out := make([]quantick.Run, len(results))
	for i, res := range results {
		rec := res.Record()
		rec.Trades = nil
		out[i] = RunFromRecord(rec)
	}
	return out, nil
}

// request resolves a wire request against the configured defaults.
func (s *Service) request(req quantick.RunRequest) (strategy.Request, error) {
	defaults := s.defaults
	if req.Convention != "" {
		defaults.Convention = req.Convention
	}
	if req.RiskFree != nil {
		defaults.RiskFreeRate = *req.RiskFree
	}
	r, err := config.RunDef{
		Name:           "request",
		Strategy:       req.Strategy,
		Symbol:         req.Symbol,
		Market:         req.Market,
		Start:          req.Start,
		End:            req.End,
		Params:         req.Params,
		Continuous:     req.Continuous,
		OnBarClose:     req.OnBarClose,
		InitialCapital: req.InitialCapital,
		BuyWithEquity:  req.BuyWithEquity,
	}.Request(defaults)
	if err != nil {
		return r, fmt.Errorf("%w: %w", strategy.ErrInvalidRequest, err)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Wire conversion
// ---------------------------------------------------------------------------

// RunFromRecord converts a stored run to its wire form.
func RunFromRecord(rec *store.RunRecord) quantick.Run {
	m := make(map[string]quantick.Float, len(rec.Metrics))
	for k, v := range rec.Metrics {
		m[k] = quantick.Float(v)
	}
	return quantick.Run{
		ID:             rec.ID,
		Strategy:       rec.Strategy,
		Symbol:         rec.Symbol,
		Market:         rec.Market,
		Params:         rec.Params,
		Continuous:     rec.Continuous,
		OnBarClose:     rec.OnBarClose,
		BuyWithEquity:  rec.BuyWithEquity,
		InitialCapital: quantick.Float(rec.InitialCapital),
		Convention:     rec.Convention,
		Start:          rec.Start,
		End:            rec.End,
		Ticks:          rec.Ticks,
		Metrics:        m,
		Trades:         tradesToWire(rec.Trades),
		CreatedAt:      rec.CreatedAt,
	}
}

func tradesToWire(trades []domain.Trade) []quantick.Trade {
	if trades == nil {
		return nil
	}
	out := make([]quantick.Trade, len(trades))
	for i, t := range trades {
		out[i] = quantick.Trade{
			Direction:  t.Direction.String(),
			Closed:     t.Closed,
			EntryTick:  t.EntryTick,
			EntryPrice: quantick.Float(t.EntryPrice),
			ExitTick:   t.ExitTick,
			ExitPrice:  quantick.Float(t.ExitPrice),
			Size:       quantick.Float(t.Size),
			PnL:        quantick.Float(t.RealizedPnL()),
		}
	}
	return out
}

func curveToWire(points []domain.EquityPoint) []quantick.EquityPoint {
	out := make([]quantick.EquityPoint, len(points))
	for i, p := range points {
		out[i] = quantick.EquityPoint{
			Tick:       p.Tick,
			Time:       p.Time,
			Equity:     quantick.Float(p.Equity),
			OpenProfit: quantick.Float(p.OpenProfit),
			Return:     quantick.Float(p.Return),
			Drawdown:   quantick.Float(p.Drawdown),
		}
	}
	return out
}
