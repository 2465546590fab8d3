// Package metrics derives trade statistics, equity peaks and return ratios
// from the engine's ledger and equity, refreshed once per tick.
package metrics

import (
	"fmt"
	"math"
	"strings"
)

// Convention selects what a ratio metric reports when its denominator is 0.
type Convention string

const (
	// ConventionZero reports 0.
	ConventionZero Convention = "zero"
	// ConventionIEEE reports the IEEE 754 quotient: +Inf, -Inf or NaN.
	ConventionIEEE Convention = "ieee"
	// ConventionNaN reports NaN.
	ConventionNaN Convention = "nan"
)

// ParseConvention parses a convention name. The empty string selects
// ConventionZero.
func ParseConvention(s string) (Convention, error) {
	switch c := Convention(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ConventionZero, nil
	case ConventionZero, ConventionIEEE, ConventionNaN:
		return c, nil
	default:
		return "", fmt.Errorf("unknown ratio convention %q", s)
	}
}

// Ratio returns num / den, applying the convention when den is 0.
func (c Convention) Ratio(num, den float64) float64 {
	if den != 0 {
		return num / den
	}
	switch c {
	case ConventionIEEE:
		return num / den
	case ConventionNaN:
		return math.NaN()
	default:
		return 0
	}
}

// div is num / den, or 0 when den is 0. Averages and rates use it
// regardless of the convention.
func div(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Metric is one named value, the flat form used for storage and reporting.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Map collects metric lists into a name -> value map. Later names win.
func Map(lists ...[]Metric) map[string]float64 {
	m := make(map[string]float64)
	for _, list := range lists {
		for _, v := range list {
			m[v.Name] = v.Value
		}
	}
	return m
}
