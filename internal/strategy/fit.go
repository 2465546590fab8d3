package strategy

import (
	"quantick/internal/domain"
	"quantick/internal/series"
)

// FitSignals returns the hindsight-optimal signals for prices under
// continuous next-bar-open execution, one per tick from prices.First(). The
// signal at tick i is long when open(i+2) >= open(i+1), so the position
// filled at i+1 rides the next open-to-open move. Only changes of direction
// are emitted; the last two ticks get none.
func FitSignals(prices series.Series) []domain.Signal {
	first, last := prices.First(), prices.Last()
	if last < first {
		return nil
	}
	out := make([]domain.Signal, last-first+1)

	var prev domain.Signal
	for i := first; i+2 <= last; i++ {
		sig := domain.SignalShort
		if prices.Price(i+2, series.Open) >= prices.Price(i+1, series.Open) {
			sig = domain.SignalLong
		}
		if sig != prev {
			out[i-first] = sig
			prev = sig
		}
	}
	return out
}
