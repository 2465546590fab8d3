package builtins

import (
	"fmt"

	"quantick/internal/domain"
	"quantick/internal/series"
	"quantick/internal/strategy"
	"quantick/internal/tick"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Breakout)(nil)

// Breakout signals long when the close exceeds the highest high of the
// previous "period" bars and short when it falls below their lowest low.
type Breakout struct {
	clock   tick.Clock
	prices  series.Series
	channel *Channel
}

// NewBreakout returns an uninitialised Breakout.
func NewBreakout() *Breakout {
	return &Breakout{}
}

// Name returns "breakout".
func (b *Breakout) Name() string { return "breakout" }

// Init reads the "period" parameter (default 20).
func (b *Breakout) Init(clock tick.Clock, prices series.Series, params strategy.Params) error {
	period, err := params.Int("period", 20)
	if err != nil {
		return err
	}
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	b.clock = clock
	b.prices = prices
	b.channel = NewChannel(clock, prices, period)
	return nil
}

// Next compares the current close to the channel.
func (b *Breakout) Next() domain.Signal {
	high, low, ok := b.channel.Bounds()
	if !ok {
		return domain.SignalNone
	}
	c := b.prices.Price(b.clock.Current(), series.Close)
	switch {
	case c > high:
		return domain.SignalLong
	case c < low:
		return domain.SignalShort
	default:
		return domain.SignalNone
	}
}
