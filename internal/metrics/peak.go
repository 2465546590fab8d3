package metrics

import (
	"math"

	"quantick/internal/engine"
)

// Peaks holds the running high-water marks of a run at one tick.
type Peaks struct {
	// PeakEquity is the highest equity seen so far.
	PeakEquity float64 `json:"peak_equity"`
	// EquityMaxDrawdown is the current distance below PeakEquity.
	EquityMaxDrawdown        float64 `json:"equity_max_drawdown"`
	EquityMaxDrawdownPercent float64 `json:"equity_max_drawdown_percent"`
	// LargestEquityDrawdown is the largest EquityMaxDrawdown seen so far.
	LargestEquityDrawdown        float64 `json:"largest_equity_drawdown"`
	LargestEquityDrawdownPercent float64 `json:"largest_equity_drawdown_percent"`

	TroughEquity    float64 `json:"trough_equity"`
	RunUp           float64 `json:"run_up"`
	MaxRunUp        float64 `json:"max_run_up"`
	MaxRunUpPercent float64 `json:"max_run_up_percent"`

	// PeakOpenProfit is the best mark of the current or most recent trade.
	PeakOpenProfit                   float64 `json:"peak_open_profit"`
	IntraTradeMaxDrawdown            float64 `json:"intra_trade_max_drawdown"`
	IntraTradeMaxDrawdownPercent     float64 `json:"intra_trade_max_drawdown_percent"`
	LargestIntraTradeDrawdownPercent float64 `json:"largest_intra_trade_drawdown_percent"`
}

// Named flattens the peaks.
func (p Peaks) Named() []Metric {
	return []Metric{
		{"peak_equity", p.PeakEquity},
		{"equity_max_drawdown", p.EquityMaxDrawdown},
		{"equity_max_drawdown_percent", p.EquityMaxDrawdownPercent},
		{"largest_equity_drawdown", p.LargestEquityDrawdown},
		{"largest_equity_drawdown_percent", p.LargestEquityDrawdownPercent},
		{"trough_equity", p.TroughEquity},
		{"run_up", p.RunUp},
		{"max_run_up", p.MaxRunUp},
		{"max_run_up_percent", p.MaxRunUpPercent},
		{"peak_open_profit", p.PeakOpenProfit},
		{"intra_trade_max_drawdown", p.IntraTradeMaxDrawdown},
		{"intra_trade_max_drawdown_percent", p.IntraTradeMaxDrawdownPercent},
		{"largest_intra_trade_drawdown_percent", p.LargestIntraTradeDrawdownPercent},
	}
}

// PeakTracker maintains the equity and intra-trade peaks of one run.
type PeakTracker struct {
	started bool
	p       Peaks
}

// NewPeakTracker returns an empty tracker. The first update seeds the peak
// and trough with that tick's equity.
func NewPeakTracker() *PeakTracker {
	return &PeakTracker{}
}

// Update folds one engine snapshot into the peaks.
func (t *PeakTracker) Update(s engine.Snapshot) Peaks {
	p := &t.p
	if !t.started {
		t.started = true
		p.PeakEquity = s.Equity
		p.TroughEquity = s.Equity
	}

	p.PeakEquity = math.Max(p.PeakEquity, s.Equity)
	p.EquityMaxDrawdown = p.PeakEquity - s.Equity
	p.EquityMaxDrawdownPercent = p.EquityMaxDrawdown / p.PeakEquity
	p.LargestEquityDrawdown = math.Max(p.LargestEquityDrawdown, p.EquityMaxDrawdown)
	p.LargestEquityDrawdownPercent = math.Max(p.LargestEquityDrawdownPercent, p.EquityMaxDrawdownPercent)

	p.TroughEquity = math.Min(p.TroughEquity, s.Equity)
	p.RunUp = s.Equity - p.TroughEquity
	p.MaxRunUp = math.Max(p.MaxRunUp, p.RunUp)
	p.MaxRunUpPercent = math.Max(p.MaxRunUpPercent, p.RunUp/p.TroughEquity)

	// Flat ticks, including a close without a re-entry, hold the last values.
	if s.InPosition {
		if s.Opened {
			p.PeakOpenProfit = s.OpenProfit
		}
		p.PeakOpenProfit = math.Max(p.PeakOpenProfit, s.OpenProfit)
		p.IntraTradeMaxDrawdown = p.PeakOpenProfit - s.OpenProfit
		p.IntraTradeMaxDrawdownPercent = p.IntraTradeMaxDrawdown / s.CapitalBase
		p.LargestIntraTradeDrawdownPercent = math.Max(p.LargestIntraTradeDrawdownPercent, p.IntraTradeMaxDrawdownPercent)
	}
	return *p
}

// Peaks returns the latest peaks.
func (t *PeakTracker) Peaks() Peaks { return t.p }
