// Package tick provides the shared clock that drives every per-tick
// computation of a backtest in lock-step.
//
// A single Cursor owns the tick index and is advanced by one driver. Engines,
// strategies and indicators hold the read-only Clock handle of that cursor, so
// they always observe the same tick without keeping iteration state of their
// own.
package tick

import (
	"fmt"
	"iter"
)

// Clock is the read-only view of a Cursor shared by dependent computations.
type Clock interface {
	// Current returns the tick being processed. It panics if the cursor has
	// not started.
	Current() int
	First() int
	Last() int
	// Check panics if tick lies outside [First, Last].
	Check(tick int)
}

// Compile-time interface check.
var _ Clock = (*Cursor)(nil)

// Cursor walks the inclusive range [first, last] exactly once, in increasing
// order. An empty range has last == first-1.
type Cursor struct {
	first   int
	last    int
	current int
	started bool
	done    bool
}

// NewCursor creates a Cursor over [first, last]. It panics if last < first-1.
func NewCursor(first, last int) *Cursor {
	if last < first-1 {
		panic(fmt.Sprintf("tick: invalid range [%d, %d]", first, last))
	}
	return &Cursor{first: first, last: last, current: first - 1}
}

// First returns the first tick of the range.
func (c *Cursor) First() int { return c.first }

// Last returns the last tick of the range.
func (c *Cursor) Last() int { return c.last }

// Len returns the number of ticks in the range.
func (c *Cursor) Len() int { return c.last - c.first + 1 }

// Current returns the tick being processed.
func (c *Cursor) Current() int {
	if !c.started {
		panic("tick: cursor read before first advance")
	}
	return c.current
}

// Next advances to the following tick and reports whether one exists. Once it
// returns false the cursor stays on its last tick and never advances again.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if c.current >= c.last {
		c.done = true
		return false
	}
	c.current++
	c.started = true
	return true
}

// Done reports whether the range has been exhausted.
func (c *Cursor) Done() bool { return c.done }

// Ticks advances the cursor through the remaining range, yielding each tick.
// The consumer must finish its work for a tick before pulling the next one.
func (c *Cursor) Ticks() iter.Seq[int] {
	return func(yield func(int) bool) {
		for c.Next() {
			if !yield(c.current) {
				return
			}
		}
	}
}

// Clock returns the shared read-only handle of the cursor. All handles of one
// cursor observe the same tick.
func (c *Cursor) Clock() Clock { return clock{c} }

// clock hides the advancing methods of a Cursor.
type clock struct{ c *Cursor }

func (k clock) Current() int { return k.c.Current() }
func (k clock) First() int   { return k.c.first }
func (k clock) Last() int    { return k.c.last }

func (k clock) Check(tick int) { k.c.Check(tick) }

// Check panics if tick lies outside [first, last].
func (c *Cursor) Check(tick int) {
	if tick < c.first || tick > c.last {
		panic(fmt.Sprintf("tick: index %d out of range [%d, %d]", tick, c.first, c.last))
	}
}
