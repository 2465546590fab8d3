package builtins

import (
	"math"

	"quantick/internal/series"
	"quantick/internal/tick"
)

// follower consumes ticks of a shared clock it does not advance. Indicators
// embed it to catch up lazily to whatever tick the driver has reached.
type follower struct {
	clock   tick.Clock
	next    int
	started bool
}

// upTo calls fn for every tick from the first one not yet consumed through
// end inclusive.
func (f *follower) upTo(end int, fn func(t int)) {
	if !f.started {
		f.started = true
		f.next = f.clock.First()
	}
	if end >= f.next {
		f.clock.Check(end)
	}
	for ; f.next <= end; f.next++ {
		fn(f.next)
	}
}

// Window is a fixed-size ring buffer of the most recent values.
type Window struct {
	buf  []float64
	head int
	n    int
	sum  float64
}

// NewWindow returns an empty window holding up to size values.
func NewWindow(size int) *Window {
	return &Window{buf: make([]float64, size)}
}

// Push appends v, evicting the oldest value when full.
func (w *Window) Push(v float64) {
	if w.n == len(w.buf) {
		w.sum -= w.buf[w.head]
	} else {
		w.n++
	}
	w.buf[w.head] = v
	w.sum += v
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of values held.
func (w *Window) Len() int { return w.n }

// Full reports whether the window holds size values.
func (w *Window) Full() bool { return w.n == len(w.buf) }

// Sum returns the sum of the values held.
func (w *Window) Sum() float64 { return w.sum }

// Max returns the largest value held, or -Inf when empty.
func (w *Window) Max() float64 {
	m := math.Inf(-1)
	for i := range w.n {
		m = math.Max(m, w.buf[i])
	}
	return m
}

// Min returns the smallest value held, or +Inf when empty.
func (w *Window) Min() float64 {
	m := math.Inf(1)
	for i := range w.n {
		m = math.Min(m, w.buf[i])
	}
	return m
}

// SMA is the simple moving average of one price field over the last period
// ticks, up to and including the clock's current tick.
type SMA struct {
	follower
	src    series.Series
	field  series.Field
	period int
	win    *Window
}

// NewSMA creates an SMA reading src on clock.
func NewSMA(clock tick.Clock, src series.Series, field series.Field, period int) *SMA {
	return &SMA{
		follower: follower{clock: clock},
		src:      src,
		field:    field,
		period:   period,
		win:      NewWindow(period),
	}
}

// Value returns the average at the current tick, and false until period
// ticks have been seen.
func (s *SMA) Value() (float64, bool) {
	s.upTo(s.clock.Current(), func(t int) {
		s.win.Push(s.src.Price(t, s.field))
	})
	if !s.win.Full() {
		return 0, false
	}
	return s.win.Sum() / float64(s.period), true
}

// Channel tracks the highest high and lowest low of the period ticks before
// the clock's current tick.
type Channel struct {
	follower
	src   series.Series
	highs *Window
	lows  *Window
}

// NewChannel creates a Channel reading src on clock.
func NewChannel(clock tick.Clock, src series.Series, period int) *Channel {
	return &Channel{
		follower: follower{clock: clock},
		src:      src,
		highs:    NewWindow(period),
		lows:     NewWindow(period),
	}
}

// Bounds returns the channel high and low, and false until period earlier
// ticks have been seen.
func (c *Channel) Bounds() (high, low float64, ok bool) {
	c.upTo(c.clock.Current()-1, func(t int) {
		c.highs.Push(c.src.Price(t, series.High))
		c.lows.Push(c.src.Price(t, series.Low))
	})
	if !c.highs.Full() {
		return 0, 0, false
	}
	return c.highs.Max(), c.lows.Min(), true
}
