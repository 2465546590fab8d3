// Package gather fetches market data into the bar store that backtests read
// from.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches everything missing from the store and returns when done or
	// when ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents an inclusive day range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no days.
func (r DateRange) Empty() bool { return r.End.Before(r.Start) }

// Summary reports what a gathering pass did.
type Summary struct {
	Range   DateRange
	Symbols int
	Bars    int
	// Empty lists symbols for which the source returned no bars.
	Empty []string
	// Failed lists symbols whose batch could not be fetched or written.
	Failed []string
}
