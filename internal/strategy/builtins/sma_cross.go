// Package builtins provides the strategy implementations that ship with
// quantick, and the indicators they read on the shared clock.
package builtins

import (
	"fmt"

	"quantick/internal/domain"
	"quantick/internal/series"
	"quantick/internal/strategy"
	"quantick/internal/tick"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It signals
// long when the fast SMA of closes crosses above the slow SMA, and short when
// it crosses below. It is silent on every other tick.
type SMACross struct {
	fast *SMA
	slow *SMA

	prev    float64
	hasPrev bool
}

// NewSMACross returns an uninitialised SMACross.
func NewSMACross() *SMACross {
	return &SMACross{}
}

// Name returns "sma_cross".
func (s *SMACross) Name() string {
	return "sma_cross"
}

// Init reads the "fast" (default 10) and "slow" (default 30) periods.
func (s *SMACross) Init(clock tick.Clock, prices series.Series, params strategy.Params) error {
	fast, err := params.Int("fast", 10)
	if err != nil {
		return err
	}
	slow, err := params.Int("slow", 30)
	if err != nil {
		return err
	}
	if fast <= 0 || slow <= fast {
		return fmt.Errorf("need 0 < fast < slow, got fast=%d slow=%d", fast, slow)
	}
	s.fast = NewSMA(clock, prices, series.Close, fast)
	s.slow = NewSMA(clock, prices, series.Close, slow)
	return nil
}

// Next returns a signal on the tick the fast SMA crosses the slow one.
func (s *SMACross) Next() domain.Signal {
	fast, ok := s.fast.Value()
	if !ok {
		return domain.SignalNone
	}
	slow, ok := s.slow.Value()
	if !ok {
		return domain.SignalNone
	}

	diff := fast - slow
	prev, hadPrev := s.prev, s.hasPrev
	s.prev, s.hasPrev = diff, true
	switch {
	case !hadPrev:
		return domain.SignalNone
	case prev <= 0 && diff > 0:
		return domain.SignalLong
	case prev >= 0 && diff < 0:
		return domain.SignalShort
	default:
		return domain.SignalNone
	}
}
