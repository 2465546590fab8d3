// Package engine implements the execution state machine of a backtest: it
// turns one directional signal per tick into fills on a trade ledger and
// keeps equity and open profit marked to market.
package engine

import (
	"fmt"
	"log/slog"

	"quantick/internal/domain"
	"quantick/internal/ledger"
	"quantick/internal/series"
	"quantick/internal/tick"
)

// Config is the execution configuration of one run. Every field is required;
// defaults are applied by the caller.
type Config struct {
	// Continuous flips the position on an opposite signal. Otherwise an
	// opposite signal only closes and the run goes flat.
	Continuous bool `yaml:"continuous" json:"continuous"`
	// OnBarClose fills a signal at its own tick's close. Otherwise the signal
	// is held for one tick and fills at the next tick's open.
	OnBarClose bool `yaml:"on_bar_close" json:"on_bar_close"`
	// InitialCapital must be positive.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	// BuyWithEquity sizes each entry from current equity instead of the
	// initial capital.
	BuyWithEquity bool `yaml:"buy_with_equity" json:"buy_with_equity"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) {
		return fmt.Errorf("initial capital must be positive, got %v", c.InitialCapital)
	}
	return nil
}

// Snapshot is the engine state after one tick.
type Snapshot struct {
	Tick       int
	Equity     float64
	OpenProfit float64
	NetProfit  float64

	// InPosition reports whether OpenTrade holds the open trade.
	InPosition bool
	OpenTrade  domain.Trade
	// CapitalBase is the capital the open trade was sized from.
	CapitalBase float64

	// Opened and Closed report fills made on this tick. A flip sets both.
	Opened      bool
	Closed      bool
	ClosedTrade domain.Trade

	// Pending is the signal held for the next tick's open.
	Pending domain.Signal

	// Trades is a copy of the ledger. Only OnTick fills it.
	Trades []domain.Trade
}

// Engine is the execution state of one run. It is not safe for concurrent
// use; every run owns its own Engine.
type Engine struct {
	cfg    Config
	clock  tick.Clock
	prices series.Series
	ledger *ledger.Ledger
	log    *slog.Logger

	pending     domain.Signal
	netProfit   float64
	openProfit  float64
	equity      float64
	capitalBase float64

	lastTick int
	stepped  bool
}

// New creates an Engine reading the tick from clock and prices from prices.
func New(clock tick.Clock, prices series.Series, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Engine{
		cfg:    cfg,
		clock:  clock,
		prices: prices,
		ledger: ledger.New(),
		log:    slog.Default().With("component", "engine"),
		equity: cfg.InitialCapital,
	}, nil
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(log *slog.Logger) { e.log = log }

// OnTick processes sig for the clock's current tick and returns the new state
// including a copy of the ledger.
func (e *Engine) OnTick(sig domain.Signal) Snapshot {
	snap := e.Step(sig)
	snap.Trades = e.ledger.Trades()
	return snap
}

// Step processes sig for the clock's current tick. It panics if called twice
// for the same tick or for an earlier one.
func (e *Engine) Step(sig domain.Signal) Snapshot {
	t := e.clock.Current()
	if e.stepped && t <= e.lastTick {
		panic(fmt.Sprintf("engine: tick %d processed after tick %d", t, e.lastTick))
	}
	e.stepped = true
	e.lastTick = t

	snap := Snapshot{Tick: t}

	if e.cfg.OnBarClose {
		e.pending = sig
	}
	if dir, ok := e.pending.Direction(); ok {
		field := series.Open
		if e.cfg.OnBarClose {
			field = series.Close
		}
		e.fill(t, dir, e.prices.Price(t, field), &snap)
	}
	e.pending = domain.SignalNone
	if !e.cfg.OnBarClose {
		e.pending = sig
	}

	if open, ok := e.ledger.OpenTrade(); ok {
		e.openProfit = open.PnL(e.prices.Price(t, series.Close))
		snap.InPosition = true
		snap.OpenTrade = open
		snap.CapitalBase = e.capitalBase
	} else {
		e.openProfit = 0
	}
	e.equity = e.cfg.InitialCapital + e.netProfit + e.openProfit

	snap.Equity = e.equity
	snap.OpenProfit = e.openProfit
	snap.NetProfit = e.netProfit
	snap.Pending = e.pending
	return snap
}

// fill resolves a requested direction against the current position.
func (e *Engine) fill(t int, dir domain.Direction, price float64, snap *Snapshot) {
	last, ok := e.ledger.Last()
	if !ok {
		e.open(t, dir, price)
		snap.Opened = true
		return
	}

	reverse := !last.Closed && dir == last.Direction.Opposite()
	enter := last.Closed
	if e.cfg.Continuous {
		enter = reverse
	}

	if reverse {
		closed := e.ledger.Close(t, price)
		pnl := closed.PnL(price)
		e.netProfit += pnl
		e.openProfit = 0
		snap.Closed = true
		snap.ClosedTrade = closed
		e.log.Debug("close", "tick", t, "direction", closed.Direction, "price", price, "pnl", pnl, "closed_trades", e.ledger.ClosedCount())
	}
	if enter {
		e.open(t, dir, price)
		snap.Opened = true
	}
}

func (e *Engine) open(t int, dir domain.Direction, price float64) {
	base := e.cfg.capitalBase(e.netProfit, e.openProfit)
	trade := e.ledger.Open(dir, t, price, positionSize(base, price))
	e.capitalBase = base
	e.log.Debug("open", "tick", t, "direction", dir, "price", price, "size", trade.Size)
}

// Config returns the execution configuration.
func (e *Engine) Config() Config { return e.cfg }

// Equity returns initial capital plus realized and open profit.
func (e *Engine) Equity() float64 { return e.equity }

// OpenProfit returns the marked profit of the open trade, or 0 when flat.
func (e *Engine) OpenProfit() float64 { return e.openProfit }

// NetProfit returns the realized profit of all closed trades.
func (e *Engine) NetProfit() float64 { return e.netProfit }

// Pending returns the signal waiting for the next tick's open.
func (e *Engine) Pending() domain.Signal { return e.pending }

// Ledger returns the trade ledger. Callers must treat it as read-only.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }
