package metrics

import (
	"math"

	"quantick/internal/domain"
)

// Performance is the trade statistics of a run at one tick. Percent fields
// are fractions of the initial capital.
type Performance struct {
	Equity     float64 `json:"equity"`
	OpenProfit float64 `json:"open_profit"`

	GrossProfit        float64 `json:"gross_profit"`
	GrossLoss          float64 `json:"gross_loss"`
	GrossProfitPercent float64 `json:"gross_profit_percent"`
	GrossLossPercent   float64 `json:"gross_loss_percent"`
	NetProfit          float64 `json:"net_profit"`
	NetProfitPercent   float64 `json:"net_profit_percent"`
	ProfitFactor       float64 `json:"profit_factor"`

	ClosedTrades      int     `json:"closed_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	PercentProfitable float64 `json:"percent_profitable"`

	AvgTrade        float64 `json:"avg_trade"`
	AvgWinningTrade float64 `json:"avg_winning_trade"`
	AvgLosingTrade  float64 `json:"avg_losing_trade"`
	AvgWinLossRatio float64 `json:"avg_winning_losing_trade_ratio"`

	LongNetProfit           float64 `json:"long_net_profit"`
	LongNetProfitPercent    float64 `json:"long_net_profit_percent"`
	ShortNetProfit          float64 `json:"short_net_profit"`
	ShortNetProfitPercent   float64 `json:"short_net_profit_percent"`
	LongShortNetProfitRatio float64 `json:"long_short_net_profit_ratio"`
}

// Named flattens the statistics.
func (p Performance) Named() []Metric {
	return []Metric{
		{"equity", p.Equity},
		{"open_profit", p.OpenProfit},
		{"gross_profit", p.GrossProfit},
		{"gross_loss", p.GrossLoss},
		{"gross_profit_percent", p.GrossProfitPercent},
		{"gross_loss_percent", p.GrossLossPercent},
		{"net_profit", p.NetProfit},
		{"net_profit_percent", p.NetProfitPercent},
		{"profit_factor", p.ProfitFactor},
		{"closed_trades", float64(p.ClosedTrades)},
		{"winning_trades", float64(p.WinningTrades)},
		{"losing_trades", float64(p.LosingTrades)},
		{"percent_profitable", p.PercentProfitable},
		{"avg_trade", p.AvgTrade},
		{"avg_winning_trade", p.AvgWinningTrade},
		{"avg_losing_trade", p.AvgLosingTrade},
		{"avg_winning_losing_trade_ratio", p.AvgWinLossRatio},
		{"long_net_profit", p.LongNetProfit},
		{"long_net_profit_percent", p.LongNetProfitPercent},
		{"short_net_profit", p.ShortNetProfit},
		{"short_net_profit_percent", p.ShortNetProfitPercent},
		{"long_short_net_profit_ratio", p.LongShortNetProfitRatio},
	}
}

// PerformanceTracker keeps running sums over closed trades so a snapshot is
// O(1) per tick.
type PerformanceTracker struct {
	initialCapital float64
	convention     Convention

	grossProfit float64
	grossLoss   float64
	longNet     float64
	shortNet    float64

	closed  int
	winning int
	losing  int
}

// NewPerformanceTracker creates a tracker for a run starting with
// initialCapital.
func NewPerformanceTracker(initialCapital float64, conv Convention) *PerformanceTracker {
	return &PerformanceTracker{initialCapital: initialCapital, convention: conv}
}

// OnTradeClosed adds a closed trade to the running sums. Trades that are
// still open are ignored.
func (p *PerformanceTracker) OnTradeClosed(t domain.Trade) {
	if !t.Closed {
		return
	}
	pnl := t.RealizedPnL()
	p.closed++
	if pnl > 0 {
		p.winning++
		p.grossProfit += pnl
	} else {
		p.losing++
		if !(pnl >= 0) {
			// Also true for NaN, which then carries into gross loss.
			p.grossLoss -= pnl
		}
	}
	switch t.Direction {
	case domain.Long:
		p.longNet += pnl
	case domain.Short:
		p.shortNet += pnl
	}
}

// Snapshot derives the statistics for the current equity and open profit.
func (p *PerformanceTracker) Snapshot(equity, openProfit float64) Performance {
	capital := p.initialCapital
	net := p.grossProfit - p.grossLoss
	closed := float64(p.closed)
	avgWin := div(p.grossProfit, float64(p.winning))
	avgLoss := div(p.grossLoss, float64(p.losing))

	return Performance{
		Equity:     equity,
		OpenProfit: openProfit,

		GrossProfit:        p.grossProfit,
		GrossLoss:          p.grossLoss,
		GrossProfitPercent: p.grossProfit / capital,
		GrossLossPercent:   p.grossLoss / capital,
		NetProfit:          net,
		NetProfitPercent:   net / capital,
		ProfitFactor:       p.convention.Ratio(p.grossProfit, p.grossLoss),

		ClosedTrades:      p.closed,
		WinningTrades:     p.winning,
		LosingTrades:      p.losing,
		PercentProfitable: div(float64(p.winning), closed),

		AvgTrade:        div(net, closed),
		AvgWinningTrade: avgWin,
		AvgLosingTrade:  avgLoss,
		AvgWinLossRatio: div(avgWin, avgLoss),

		LongNetProfit:           p.longNet,
		LongNetProfitPercent:    p.longNet / capital,
		ShortNetProfit:          p.shortNet,
		ShortNetProfitPercent:   p.shortNet / capital,
		LongShortNetProfitRatio: p.convention.Ratio(p.longNet, math.Abs(p.shortNet)),
	}
}

// ComputePerformance derives the statistics from a full ledger. It agrees
// with a PerformanceTracker fed the same trades as they closed.
func ComputePerformance(trades []domain.Trade, initialCapital float64, conv Convention, equity, openProfit float64) Performance {
	p := NewPerformanceTracker(initialCapital, conv)
	for _, t := range trades {
		p.OnTradeClosed(t)
	}
	return p.Snapshot(equity, openProfit)
}
