// Package store defines storage interfaces for price bars, backtest runs,
// and the per-run equity curves and trade ledgers.
package store

import (
	"context"
	"errors"
	"time"

	"quantick/internal/domain"
)

// ErrRunNotFound is returned when a run ID is not present in a RunStore.
var ErrRunNotFound = errors.New("run not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// CurveStore persists the per-tick equity curve and full trade ledger of a
// run, keyed by run ID.
type CurveStore interface {
	WriteCurve(ctx context.Context, runID string, points []domain.EquityPoint) error
	ReadCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error)
	WriteLedger(ctx context.Context, runID string, trades []domain.Trade) error
	ReadLedger(ctx context.Context, runID string) ([]domain.Trade, error)
}

// RunStore persists backtest run summaries.
type RunStore interface {
	// SaveRun inserts or replaces a run with its metrics and trades.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun returns a run with metrics and trades, or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs matching filter, newest first. Trades are not
	// loaded.
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)

	// DeleteRun removes a run, or returns ErrRunNotFound.
	DeleteRun(ctx context.Context, id string) error
}

// RunRecord is the stored form of one backtest evaluation.
type RunRecord struct {
	ID       string         `json:"id"`
	Strategy string         `json:"strategy"`
	Symbol   string         `json:"symbol"`
	Market   string         `json:"market"`
	Params   map[string]any `json:"params,omitempty"`

	Continuous     bool    `json:"continuous"`
	OnBarClose     bool    `json:"on_bar_close"`
	BuyWithEquity  bool    `json:"buy_with_equity"`
	InitialCapital float64 `json:"initial_capital"`
	Convention     string  `json:"convention"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Ticks int       `json:"ticks"`

	// Metrics holds every named metric of the final tick. Values may be NaN
	// or infinite.
	Metrics map[string]float64 `json:"-"`
	Trades  []domain.Trade     `json:"trades,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Strategy string
	Symbol   string
	Limit    int
}
