// Package domain defines the core value types shared across quantick: price
// bars, trade directions, per-tick signals, and trade records.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

// Market identifies the exchange family a price series belongs to. It is also
// the top-level directory of the bar store.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// ---------------------------------------------------------------------------
// Price data
// ---------------------------------------------------------------------------

// Bar is one OHLCV price record.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// ---------------------------------------------------------------------------
// Directions and signals
// ---------------------------------------------------------------------------

// Direction is the side of a trade.
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("direction(%d)", int8(d))
	}
}

// ParseDirection parses "long" or "short" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "l", "buy":
		return Long, nil
	case "short", "s", "sell":
		return Short, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Signal is the per-tick input of the execution engine: either absent or a
// request to be in the given direction.
type Signal int8

const (
	SignalNone  Signal = 0
	SignalLong  Signal = Signal(Long)
	SignalShort Signal = Signal(Short)
)

// SignalFor returns the signal requesting direction d.
func SignalFor(d Direction) Signal {
	return Signal(d)
}

// Direction returns the requested direction and whether the signal is present.
func (s Signal) Direction() (Direction, bool) {
	switch s {
	case SignalLong:
		return Long, true
	case SignalShort:
		return Short, true
	default:
		return 0, false
	}
}

func (s Signal) String() string {
	if d, ok := s.Direction(); ok {
		return d.String()
	}
	return "none"
}

// ParseSignal parses "long", "short", or an empty/"none"/"-" value.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "-", "n":
		return SignalNone, nil
	}
	d, err := ParseDirection(s)
	if err != nil {
		return SignalNone, fmt.Errorf("parsing signal: %w", err)
	}
	return SignalFor(d), nil
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// Trade is one position held between an entry fill and an optional exit fill.
// Exit fields are meaningful only once Closed is true.
type Trade struct {
	Direction  Direction `json:"direction"`
	Closed     bool      `json:"closed"`
	EntryTick  int       `json:"entry_tick"`
	EntryPrice float64   `json:"entry_price"`
	ExitTick   int       `json:"exit_tick,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	Size       float64   `json:"size"`
}

// PnL returns the profit of the trade marked at price.
func (t Trade) PnL(price float64) float64 {
	return (price - t.EntryPrice) * t.Size * t.Direction.Sign()
}

// RealizedPnL returns the profit at the exit price, or 0 for an open trade.
func (t Trade) RealizedPnL() float64 {
	if !t.Closed {
		return 0
	}
	return t.PnL(t.ExitPrice)
}

// Exit returns the exit fill and whether the trade has been closed.
func (t Trade) Exit() (tick int, price float64, ok bool) {
	if !t.Closed {
		return 0, 0, false
	}
	return t.ExitTick, t.ExitPrice, true
}

func (t Trade) String() string {
	if t.Closed {
		return fmt.Sprintf("%s %d@%g -> %d@%g x%g", t.Direction, t.EntryTick, t.EntryPrice, t.ExitTick, t.ExitPrice, t.Size)
	}
	return fmt.Sprintf("%s %d@%g open x%g", t.Direction, t.EntryTick, t.EntryPrice, t.Size)
}

// ---------------------------------------------------------------------------
// Equity history
// ---------------------------------------------------------------------------

// EquityPoint is the account state recorded at the end of one tick.
type EquityPoint struct {
	Tick       int       `json:"tick"`
	Time       time.Time `json:"time,omitempty"`
	Equity     float64   `json:"equity"`
	OpenProfit float64   `json:"open_profit"`
	Return     float64   `json:"return"`
	Drawdown   float64   `json:"drawdown"`
}
