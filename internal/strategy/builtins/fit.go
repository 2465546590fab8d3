package builtins

import (
	"quantick/internal/series"
	"quantick/internal/strategy"
	"quantick/internal/tick"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Fit)(nil)

// Fit replays strategy.FitSignals for the series it is initialised with. It
// looks ahead, so its results bound what any strategy could earn with
// continuous next-bar-open execution.
type Fit struct {
	Scripted
}

// NewFit returns a Fit strategy.
func NewFit() *Fit { return &Fit{} }

// Name returns "fit".
func (f *Fit) Name() string { return "fit" }

// Init computes the signals. It takes no parameters.
func (f *Fit) Init(clock tick.Clock, prices series.Series, _ strategy.Params) error {
	f.clock = clock
	f.signals = strategy.FitSignals(prices)
	return nil
}
