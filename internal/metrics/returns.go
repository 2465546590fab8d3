package metrics

import "math"

// Returns is the per-tick return statistics of a run. Statistics skip the
// first tick, whose return is 0 by definition.
type Returns struct {
	// Return is equity / previous equity - 1 for the latest tick.
	Return      float64 `json:"return"`
	Periods     int     `json:"periods"`
	Mean        float64 `json:"mean_return"`
	StdDev      float64 `json:"return_stddev"`
	DownsideDev float64 `json:"downside_deviation"`
	Ratios      Ratios  `json:"ratios"`
}

// Ratios are risk-adjusted return ratios against a per-tick risk-free rate.
type Ratios struct {
	Sharpe  float64 `json:"sharpe"`
	Sortino float64 `json:"sortino"`
	Omega   float64 `json:"omega"`
}

// Named flattens the statistics.
func (r Returns) Named() []Metric {
	return []Metric{
		{"mean_return", r.Mean},
		{"return_stddev", r.StdDev},
		{"downside_deviation", r.DownsideDev},
		{"sharpe_ratio", r.Ratios.Sharpe},
		{"sortino_ratio", r.Ratios.Sortino},
		{"omega_ratio", r.Ratios.Omega},
	}
}

// ReturnsTracker accumulates per-tick returns with Welford's running mean and
// variance.
type ReturnsTracker struct {
	riskFree   float64
	convention Convention

	started bool
	prev    float64

	n      int
	mean   float64
	m2     float64
	downSq float64
	gains  float64
	losses float64
}

// NewReturnsTracker creates a tracker measuring excess returns over riskFree
// per tick.
func NewReturnsTracker(riskFree float64, conv Convention) *ReturnsTracker {
	return &ReturnsTracker{riskFree: riskFree, convention: conv}
}

// Update folds the tick's equity into the statistics.
func (r *ReturnsTracker) Update(equity float64) Returns {
	if !r.started {
		r.started = true
		r.prev = equity
		return r.snapshot(0)
	}

	ret := equity/r.prev - 1
	r.prev = equity

	r.n++
	delta := ret - r.mean
	r.mean += delta / float64(r.n)
	r.m2 += delta * (ret - r.mean)

	excess := ret - r.riskFree
	switch {
	case excess > 0:
		r.gains += excess
	case excess < 0:
		r.downSq += excess * excess
		r.losses -= excess
	}
	return r.snapshot(ret)
}

func (r *ReturnsTracker) snapshot(ret float64) Returns {
	out := Returns{Return: ret, Periods: r.n, Mean: r.mean}
	if r.n > 1 {
		out.StdDev = math.Sqrt(r.m2 / float64(r.n-1))
	}
	if r.n > 0 {
		out.DownsideDev = math.Sqrt(r.downSq / float64(r.n))
	}
	excessMean := r.mean - r.riskFree
	if r.n > 0 {
		out.Ratios = Ratios{
			Sharpe:  r.convention.Ratio(excessMean, out.StdDev),
			Sortino: r.convention.Ratio(excessMean, out.DownsideDev),
			Omega:   r.convention.Ratio(r.gains, r.losses),
		}
	}
	return out
}
