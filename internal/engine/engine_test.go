package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantick/internal/domain"
	"quantick/internal/series"
	"quantick/internal/tick"
)

// signals decodes one signal per tick: N none, L long, S short.
func signals(s string) []domain.Signal {
	out := make([]domain.Signal, len(s))
	for i, c := range s {
		switch c {
		case 'L':
			out[i] = domain.SignalLong
		case 'S':
			out[i] = domain.SignalShort
		}
	}
	return out
}

// run drives a fresh engine over prices and returns one snapshot per tick.
func run(t *testing.T, cfg Config, prices []float64, sigs []domain.Signal) []Snapshot {
	t.Helper()
	require.Len(t, sigs, len(prices), "one signal per tick")

	bars := series.FromValues(prices)
	cur := tick.NewCursor(bars.First(), bars.Last())
	e, err := New(cur.Clock(), bars, cfg)
	require.NoError(t, err)

	snaps := make([]Snapshot, 0, len(prices))
	for cur.Next() {
		snaps = append(snaps, e.OnTick(sigs[cur.Current()]))
	}
	return snaps
}

func approx(t *testing.T, want, got float64, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, want, got, 1e-6*math.Max(1, math.Abs(want)), msgAndArgs...)
}

type mark struct{ equity, openProfit float64 }

func assertMarks(t *testing.T, want []mark, snaps []Snapshot) {
	t.Helper()
	require.GreaterOrEqual(t, len(snaps), len(want))
	for i, w := range want {
		approx(t, w.equity, snaps[i].Equity, "equity at tick %d", i)
		approx(t, w.openProfit, snaps[i].OpenProfit, "open profit at tick %d", i)
	}
}

func repeat(m mark, n int) []mark {
	out := make([]mark, n)
	for i := range out {
		out[i] = m
	}
	return out
}

func marks(parts ...[]mark) []mark {
	var out []mark
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var withEquity = Config{InitialCapital: 1000, BuyWithEquity: true}

func (c Config) with(continuous, onBarClose bool) Config {
	c.Continuous = continuous
	c.OnBarClose = onBarClose
	return c
}

// ---------------------------------------------------------------------------
// Ledger traces
// ---------------------------------------------------------------------------

type fill struct {
	dir        domain.Direction
	closed     bool
	entryTick  int
	entryPrice float64
	exitTick   int
	exitPrice  float64
}

func assertLedger(t *testing.T, want []fill, got []domain.Trade) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		g := got[i]
		assert.Equal(t, w.dir, g.Direction, "trade %d direction", i)
		assert.Equal(t, w.closed, g.Closed, "trade %d closed", i)
		assert.Equal(t, w.entryTick, g.EntryTick, "trade %d entry tick", i)
		assert.Equal(t, w.entryPrice, g.EntryPrice, "trade %d entry price", i)
		if w.closed {
			assert.Equal(t, w.exitTick, g.ExitTick, "trade %d exit tick", i)
			assert.Equal(t, w.exitPrice, g.ExitPrice, "trade %d exit price", i)
		}
	}
}

func risingPrices(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = float64(i + 1)
	}
	return p
}

func TestContinuousOnBarCloseLedger(t *testing.T) {
	sigs := signals("NNSSLLLSLS" + "NSNSLLLLNS" + "NSNSLLNNL")
	snaps := run(t, withEquity.with(true, true), risingPrices(len(sigs)), sigs)

	assert.Empty(t, snaps[1].Trades)
	assertLedger(t, []fill{{dir: domain.Short, entryTick: 2, entryPrice: 3}}, snaps[2].Trades)
	assertLedger(t, []fill{{dir: domain.Short, entryTick: 2, entryPrice: 3}}, snaps[3].Trades)
	assertLedger(t, []fill{
		{domain.Short, true, 2, 3, 4, 5},
		{dir: domain.Long, entryTick: 4, entryPrice: 5},
	}, snaps[4].Trades)

	assertLedger(t, []fill{
		{domain.Short, true, 2, 3, 4, 5},
		{domain.Long, true, 4, 5, 7, 8},
		{domain.Short, true, 7, 8, 8, 9},
		{domain.Long, true, 8, 9, 9, 10},
		{dir: domain.Short, entryTick: 9, entryPrice: 10},
	}, snaps[9].Trades)

	// Repeated shorts while short are ignored; every later opposite signal flips.
	assertLedger(t, []fill{
		{domain.Short, true, 2, 3, 4, 5},
		{domain.Long, true, 4, 5, 7, 8},
		{domain.Short, true, 7, 8, 8, 9},
		{domain.Long, true, 8, 9, 9, 10},
		{domain.Short, true, 9, 10, 14, 15},
		{domain.Long, true, 14, 15, 19, 20},
		{domain.Short, true, 19, 20, 24, 25},
		{dir: domain.Long, entryTick: 24, entryPrice: 25},
	}, snaps[len(snaps)-1].Trades)

	flip := snaps[4]
	assert.True(t, flip.Opened)
	assert.True(t, flip.Closed)
	assert.Equal(t, domain.Short, flip.ClosedTrade.Direction)
}

func TestNextBarOpenFillsOneTickLater(t *testing.T) {
	sigs := signals("NNSSLLLSLS")
	snaps := run(t, withEquity.with(true, false), risingPrices(len(sigs)), sigs)

	assert.Empty(t, snaps[2].Trades, "signal must not fill on its own tick")
	assert.Equal(t, domain.SignalShort, snaps[2].Pending)
	assertLedger(t, []fill{{dir: domain.Short, entryTick: 3, entryPrice: 4}}, snaps[3].Trades)
	assertLedger(t, []fill{
		{domain.Short, true, 3, 4, 5, 6},
		{dir: domain.Long, entryTick: 5, entryPrice: 6},
	}, snaps[5].Trades)
}

// ---------------------------------------------------------------------------
// Equity traces
// ---------------------------------------------------------------------------

func TestContinuousOnBarCloseEquity(t *testing.T) {
	prices := []float64{1, 1, 1, 2, 4, 1, 0.5, 10, 12, 10, 6, 14, 15, 18, 4, 18, 20, 18, 6, 1, 8, 9, 10, 17, 11, 11, 15, 22, 6, 5, 7}
	sigs := signals("NNLNLNNNSN" + "SSNNNLNNSN" + "LSLSLNNLLS" + "S")
	snaps := run(t, withEquity.with(true, true), prices, sigs)

	assertMarks(t, marks(
		repeat(mark{1000, 0}, 3),
		[]mark{
			{2000, 1000}, {4000, 3000}, {1000, 0}, {500, -500}, {10000, 9000},
			{12000, 0}, {14000, 2000}, {18000, 6000}, {10000, -2000},
			{9000, -3000}, {6000, -6000}, {20000, 8000}, {6000, 0},
			{6666.666666, 666.666666}, {6000, 0}, {2000, 0}, {3666.6666666, 1666.66666},
			{1333.33334, 0}, {1500, 0}, {1333.333333, 0}, {2266.66666, 0},
			{3066.66666, 0}, {3066.66666, 0}, {4181.8181727, 1115.15151}, {6133.3333333, 3066.666666},
			{1672.72727, -1393.93939}, {1393.939391, 0}, {836.3636363636364, -557.5757564},
		},
	), snaps)
}

func TestIntermittentOnBarCloseEquity(t *testing.T) {
	prices := []float64{1, 1, 1, 2, 4, 1, 0.5, 10, 12, 10, 6, 14, 15, 18, 4, 18, 19, 18, 6, 1, 0.02, 0.01, 10, 17}
	sigs := signals("NNLNLNNLSNNNNNNLLNSNLSLS")
	snaps := run(t, withEquity.with(false, true), prices, sigs)

	assertMarks(t, marks(
		repeat(mark{1000, 0}, 3),
		[]mark{{2000, 1000}, {4000, 3000}, {1000, 0}, {500, -500}, {10000, 9000}},
		repeat(mark{12000, 0}, 8),
		[]mark{{12666.666666, 666.666666}, {12000, 0}},
		repeat(mark{4000, 0}, 3),
		repeat(mark{2000, 0}, 2),
		[]mark{{3400, 0}},
	), snaps)

	// An opposite signal while long only closes.
	assert.True(t, snaps[8].Closed)
	assert.False(t, snaps[8].Opened)
	assert.False(t, snaps[8].InPosition)
}

func TestContinuousNextBarOpenEquity(t *testing.T) {
	prices := []float64{1, 1, 1, 2, 4, 1, 0.5, 10, 12, 10, 6, 14, 15, 18, 4, 18, 19, 18, 6, 1, 0.02, 0.01, 10, 17, 11, 11, 15, 22, 6, 5, 7, 1, 11}
	sigs := signals("NNL" + "NNNNN" + "S" + "NNNNNN" + "LNNSNLSLSLNNLLSSSS")
	snaps := run(t, withEquity.with(true, false), prices, sigs)

	assertMarks(t, marks(
		repeat(mark{1000, 0}, 4),
		[]mark{
			{2000, 1000}, {500, -500}, {250, -750}, {5000, 4000},
			{6000, 5000}, {5000, 0}, {7000, 2000}, {3000, -2000},
			{2500, -2500}, {1000, -4000}, {8000, 3000}, {1000, -4000},
			{500, 0}, {473.6842106, -26.3157894}, {157.8947369, -342.1052631}, {26.31579, 0},
			{52.1052631, 25.78947}, {52.3684210526316, 0}, {52368.421052552, 0}, {15710.52631578948, 0},
			{10165.634674922605, 0}, {10165.634674922605, 0}, {13862.229102167188, 3696.5944272445836}, {20331.26934984521, 10165.634674922605},
			{5544.89164086687, -4620.743034055729545}, {4620.7430340, -5544.8916408668}, {6469.040247678022, 0},
			{12013.93188854, 5544.891640866876}, {2772.445820433438, -3696.594427244584},
		},
	), snaps)
}

func TestIntermittentNextBarOpenEquity(t *testing.T) {
	prices := []float64{
		1, 1, 1, 2, 4, 1, 0.5, 10, 12, 10, 6, 14, 15, 18, 4, 18, 5, 10, 6, 1, 2, 5, 10, 20, 10, 8,
		15, 34, 10, 5, 7, 1, 12, 4, -50, 11, 11, 11, 57, 8, 6, 2, 12, 8, 6, 4, 10, 5, 10, 6, 8, 2,
	}
	sigs := signals("NNLNLNNLS" + "NNNNNN" + "LLNSNLSLS" + "NNN" + "SNSNSL" + "NNNNN" + "SSNSNNSLNNSLSL")
	snaps := run(t, withEquity.with(false, false), prices, sigs)

	assertMarks(t, marks(
		repeat(mark{1000, 0}, 4),
		[]mark{{2000, 1000}, {500, -500}, {250, -750}, {5000, 4000}, {6000, 5000}},
		repeat(mark{5000, 0}, 8),
		[]mark{{10000, 5000}, {6000, 1000}},
		repeat(mark{1000, 0}, 3),
		repeat(mark{2000, 0}, 2),
		repeat(mark{1000, 0}, 5),
		[]mark{{1500, 500}, {1300, 300}, {1900, 900}, {800, -200}},
		repeat(mark{1600, 0}, 7),
		[]mark{{2000, 400}, {2800, 1200}, {800, -800}, {1600, 0}, {2000, 400}, {2400, 800}},
		repeat(mark{1200, 0}, 4),
		[]mark{{800, 0}, {800, 0}},
	), snaps)
}

func TestNoSignalsKeepsInitialCapital(t *testing.T) {
	for _, cfg := range []Config{
		withEquity.with(true, true),
		withEquity.with(true, false),
		withEquity.with(false, true),
		withEquity.with(false, false),
	} {
		snaps := run(t, cfg, []float64{1, 2, 3, 4, 5}, signals("NNNNN"))
		for i, s := range snaps {
			assert.Equal(t, 1000.0, s.Equity, "%+v tick %d", cfg, i)
			assert.Zero(t, s.OpenProfit)
			assert.Empty(t, s.Trades)
		}
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestRepeatedSignalsAreIgnored(t *testing.T) {
	snaps := run(t, withEquity.with(true, true), risingPrices(6), signals("LLLLLL"))
	last := snaps[len(snaps)-1]
	require.Len(t, last.Trades, 1)
	assert.Equal(t, 0, last.Trades[0].EntryTick)
	for _, s := range snaps[1:] {
		assert.False(t, s.Opened)
		assert.False(t, s.Closed)
	}
}

func TestOppositeSignalFlipsOrCloses(t *testing.T) {
	prices := []float64{10, 12, 11, 13}
	sigs := signals("LSNN")

	cont := run(t, withEquity.with(true, true), prices, sigs)
	require.Len(t, cont[3].Trades, 2)
	assert.True(t, cont[3].InPosition)
	assert.Equal(t, domain.Short, cont[3].OpenTrade.Direction)

	inter := run(t, withEquity.with(false, true), prices, sigs)
	require.Len(t, inter[3].Trades, 1)
	assert.False(t, inter[3].InPosition)
	approx(t, 1200, inter[3].Equity)
	approx(t, 200, inter[3].NetProfit)
}

func TestIntermittentReentersAfterFlat(t *testing.T) {
	// Flat again after the close, so the next signal opens in its own direction.
	snaps := run(t, withEquity.with(false, true), []float64{1, 2, 2, 4}, signals("LSSN"))
	assertLedger(t, []fill{
		{domain.Long, true, 0, 1, 1, 2},
		{dir: domain.Short, entryTick: 2, entryPrice: 2},
	}, snaps[3].Trades)
	approx(t, -2000, snaps[3].OpenProfit)
}

func TestSignalOnLastTickStaysPending(t *testing.T) {
	snaps := run(t, withEquity.with(true, false), []float64{1, 2, 3}, signals("NNL"))
	last := snaps[2]
	assert.Empty(t, last.Trades)
	assert.Equal(t, domain.SignalLong, last.Pending)
}

func TestSizingFromInitialCapital(t *testing.T) {
	prices := []float64{1, 2, 4, 2}
	sigs := signals("LSLN")

	fixed := run(t, Config{InitialCapital: 1000, Continuous: true, OnBarClose: true}, prices, sigs)
	trades := fixed[3].Trades
	require.Len(t, trades, 3)
	approx(t, 1000, trades[0].Size)
	approx(t, 500, trades[1].Size)
	approx(t, 250, trades[2].Size)
	approx(t, 0, fixed[3].NetProfit)
	approx(t, 500, fixed[3].Equity)
	approx(t, 1000, fixed[3].CapitalBase)

	compounding := run(t, withEquity.with(true, true), prices, sigs)
	trades = compounding[3].Trades
	approx(t, 1000, trades[1].Size)
	approx(t, -1000, compounding[3].NetProfit)
	approx(t, 0, compounding[3].Equity)
}

func TestDegeneratePricesPropagate(t *testing.T) {
	snaps := run(t, withEquity.with(true, true), []float64{0, 1}, signals("LN"))
	assert.True(t, math.IsInf(snaps[0].Trades[0].Size, 1))
	assert.True(t, math.IsInf(snaps[1].Equity, 1) || math.IsNaN(snaps[1].Equity))
}

func TestRunsAreReproducible(t *testing.T) {
	prices := []float64{1, 3, 2, 5, 4, 6, 2, 8}
	sigs := signals("LNSLNSSL")
	a := run(t, withEquity.with(true, false), prices, sigs)
	b := run(t, withEquity.with(true, false), prices, sigs)
	assert.Equal(t, a, b)
}

func TestLedgerSnapshotsArePrefixCompatible(t *testing.T) {
	sigs := signals("NLSLSNNLSS")
	snaps := run(t, withEquity.with(false, true), risingPrices(len(sigs)), sigs)
	for i := 1; i < len(snaps); i++ {
		prev, cur := snaps[i-1].Trades, snaps[i].Trades
		require.GreaterOrEqual(t, len(cur), len(prev))
		for j := range prev {
			if j == len(prev)-1 && !prev[j].Closed {
				assert.Equal(t, prev[j].EntryTick, cur[j].EntryTick)
				continue
			}
			assert.Equal(t, prev[j], cur[j], "tick %d trade %d", i, j)
		}
	}
}

func TestEquityIdentity(t *testing.T) {
	sigs := signals("NLSLSNNLSS")
	for _, s := range run(t, withEquity.with(true, false), risingPrices(len(sigs)), sigs) {
		approx(t, 1000+s.NetProfit+s.OpenProfit, s.Equity, "tick %d", s.Tick)
		if !s.InPosition {
			assert.Zero(t, s.OpenProfit)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	for _, c := range []float64{0, -1, math.NaN()} {
		_, err := New(tick.NewCursor(0, 0).Clock(), series.FromValues([]float64{1}), Config{InitialCapital: c})
		assert.Error(t, err, "capital %v", c)
	}
	assert.NoError(t, Config{InitialCapital: 1}.Validate())
}

func TestStepTwicePanics(t *testing.T) {
	cur := tick.NewCursor(0, 1)
	e, err := New(cur.Clock(), series.FromValues([]float64{1, 2}), withEquity)
	require.NoError(t, err)
	require.True(t, cur.Next())
	e.Step(domain.SignalNone)
	assert.Panics(t, func() { e.Step(domain.SignalLong) })
}
