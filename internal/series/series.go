// Package series provides the read-only price series a backtest is replayed
// against, addressable by tick index.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantick/internal/domain"
	"quantick/internal/store"
)

// ErrNoData is returned by Load when the store holds no bars for the request.
var ErrNoData = errors.New("no bars in range")

// Field selects one price of a bar.
type Field int

const (
	Open Field = iota
	High
	Low
	Close
)

func (f Field) String() string {
	switch f {
	case Open:
		return "open"
	case High:
		return "high"
	case Low:
		return "low"
	case Close:
		return "close"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Series is an indexed, read-only sequence of per-tick prices. Price panics
// for a tick outside [First, Last].
type Series interface {
	First() int
	Last() int
	Price(tick int, field Field) float64
}

// Timed is implemented by series that know the timestamp of each tick.
type Timed interface {
	Time(tick int) time.Time
}

// Compile-time interface checks.
var _ Series = (*Bars)(nil)
var _ Timed = (*Bars)(nil)

// Bars is an in-memory Series over a slice of bars. Tick i is bars[i].
type Bars struct {
	symbol string
	bars   []domain.Bar
}

// FromBars wraps bars, which must already be in time order.
func FromBars(bars []domain.Bar) *Bars {
	b := &Bars{bars: bars}
	if len(bars) > 0 {
		b.symbol = bars[0].Symbol
	}
	return b
}

// FromValues builds a series where every field of tick i equals values[i].
func FromValues(values []float64) *Bars {
	bars := make([]domain.Bar, len(values))
	for i, v := range values {
		bars[i] = domain.Bar{Open: v, High: v, Low: v, Close: v}
	}
	return &Bars{bars: bars}
}

// Load reads bars for symbol in [start, end] from bs.
func Load(ctx context.Context, bs store.BarStore, symbol string, market domain.Market, start, end time.Time) (*Bars, error) {
	bars, err := bs.ReadBars(ctx, symbol, string(market), start, end)
	if err != nil {
		return nil, fmt.Errorf("loading %s bars: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s..%s: %w", symbol, start.Format(time.DateOnly), end.Format(time.DateOnly), ErrNoData)
	}
	return FromBars(bars), nil
}

// Symbol returns the symbol of the first bar, if any.
func (b *Bars) Symbol() string { return b.symbol }

// Len returns the number of ticks.
func (b *Bars) Len() int { return len(b.bars) }

// First returns 0.
func (b *Bars) First() int { return 0 }

// Last returns the index of the final bar, or -1 for an empty series.
func (b *Bars) Last() int { return len(b.bars) - 1 }

// Bar returns the bar at tick.
func (b *Bars) Bar(tick int) domain.Bar {
	b.check(tick)
	return b.bars[tick]
}

// Price returns one field of the bar at tick.
func (b *Bars) Price(tick int, field Field) float64 {
	bar := b.Bar(tick)
	switch field {
	case Open:
		return bar.Open
	case High:
		return bar.High
	case Low:
		return bar.Low
	case Close:
		return bar.Close
	default:
		panic(fmt.Sprintf("series: unknown field %d", int(field)))
	}
}

// Time returns the timestamp of the bar at tick.
func (b *Bars) Time(tick int) time.Time {
	return b.Bar(tick).Timestamp
}

func (b *Bars) check(tick int) {
	if tick < 0 || tick >= len(b.bars) {
		panic(fmt.Sprintf("series: tick %d out of range [0, %d]", tick, len(b.bars)-1))
	}
}
