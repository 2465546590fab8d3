// Package ledger holds the append-only trade history of one backtest run.
//
// Trades are kept in insertion order. Only the last trade may be open, and a
// trade changes exactly once after it is appended: when it is closed.
// Violating either rule is a caller bug and panics.
package ledger

import (
	"fmt"
	"slices"

	"quantick/internal/domain"
)

// Ledger is the trade history of one run. The zero value is empty and ready
// to use.
type Ledger struct {
	trades []domain.Trade
	closed int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Len returns the number of trades, open or closed.
func (l *Ledger) Len() int { return len(l.trades) }

// ClosedCount returns the number of closed trades.
func (l *Ledger) ClosedCount() int { return l.closed }

// Last returns the most recent trade, if any.
func (l *Ledger) Last() (domain.Trade, bool) {
	if len(l.trades) == 0 {
		return domain.Trade{}, false
	}
	return l.trades[len(l.trades)-1], true
}

// OpenTrade returns the open trade, if any.
func (l *Ledger) OpenTrade() (domain.Trade, bool) {
	last, ok := l.Last()
	if !ok || last.Closed {
		return domain.Trade{}, false
	}
	return last, true
}

// Open appends a new open trade filled at tick and price.
func (l *Ledger) Open(dir domain.Direction, tick int, price, size float64) domain.Trade {
	if t, ok := l.OpenTrade(); ok {
		panic(fmt.Sprintf("ledger: opening %s at tick %d while %s is open", dir, tick, t))
	}
	if last, ok := l.Last(); ok && tick < last.ExitTick {
		panic(fmt.Sprintf("ledger: opening at tick %d before last exit at %d", tick, last.ExitTick))
	}
	t := domain.Trade{
		Direction:  dir,
		EntryTick:  tick,
		EntryPrice: price,
		Size:       size,
	}
	l.trades = append(l.trades, t)
	return t
}

// Close closes the open trade at tick and price and returns it.
func (l *Ledger) Close(tick int, price float64) domain.Trade {
	t, ok := l.OpenTrade()
	if !ok {
		panic(fmt.Sprintf("ledger: closing at tick %d with no open trade", tick))
	}
	if tick <= t.EntryTick {
		panic(fmt.Sprintf("ledger: closing %s at tick %d, not after entry", t, tick))
	}
	t.Closed = true
	t.ExitTick = tick
	t.ExitPrice = price
	l.trades[len(l.trades)-1] = t
	l.closed++
	return t
}

// Trades returns a copy of every trade in insertion order.
func (l *Ledger) Trades() []domain.Trade {
	return slices.Clone(l.trades)
}

// Closed returns a copy of the closed trades in insertion order.
func (l *Ledger) Closed() []domain.Trade {
	n := l.closed
	return slices.Clone(l.trades[:n:n])
}
