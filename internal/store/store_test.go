package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quantick/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	// Test barPath produces the expected layout.
	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bp := ps.barPath("AAPL", "us", ts)

	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}
	if !strings.Contains(bp, "us") {
		t.Errorf("barPath should contain market segment 'us': %s", bp)
	}
	if !strings.Contains(bp, "AAPL") {
		t.Errorf("barPath should contain symbol 'AAPL': %s", bp)
	}
	if !strings.Contains(bp, "2024.parquet") {
		t.Errorf("barPath should contain year file '2024.parquet': %s", bp)
	}

	// Test runPath produces the expected layout.
	rp := ps.runPath("run-1", "equity")

	wantRunPath := filepath.Join("/data", "runs", "run-1", "equity.parquet")
	if rp != wantRunPath {
		t.Errorf("runPath mismatch:\n  got  %s\n  want %s", rp, wantRunPath)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
	}

	// Write bars.
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Read them back.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	// Write initial bar.
	bars1 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      400.0, High: 405.0, Low: 399.0, Close: 403.0,
			Volume: 30000000, TradeCount: 300000, VWAP: 402.0,
		},
	}
	if err := ps.WriteBars(ctx, bars1); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Write another bar for same symbol+year â€” should merge, not overwrite.
	bars2 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:      403.0, High: 410.0, Low: 402.0, Close: 408.0,
			Volume: 35000000, TradeCount: 350000, VWAP: 406.0,
		},
	}
	if err := ps.WriteBars(ctx, bars2); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	// Write bars for two symbols.
	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185.0, High: 186.0, Low: 184.0, Close: 185.5, Volume: 50000000},
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 140.0, High: 141.0, Low: 139.0, Close: 140.5, Volume: 20000000},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("ListSymbols returned %d symbols, want 2", len(symbols))
	}
	if symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func TestParquetStoreReadBarsAcrossYears(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "spy", Timestamp: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), Close: 1},
		{Symbol: "SPY", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 2},
		{Symbol: "SPY", Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Close: 3},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "SPY", "us",
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 1 || got[1].Close != 2 {
		t.Errorf("closes = [%v %v], want [1 2]", got[0].Close, got[1].Close)
	}
	if got[0].Symbol != "SPY" {
		t.Errorf("symbol = %q, want upper-cased SPY", got[0].Symbol)
	}

	// A symbol with no files yields no bars and no error.
	none, err := ps.ReadBars(ctx, "QQQ", "us", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(none) != 0 {
		t.Errorf("ReadBars(QQQ) = %d bars, %v; want 0, nil", len(none), err)
	}
}

func TestParquetStoreCurveAndLedger(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	points := []domain.EquityPoint{
		{Tick: 0, Time: ts, Equity: 1000},
		{Tick: 1, Time: ts.AddDate(0, 0, 1), Equity: 1100, OpenProfit: 100, Return: 0.1},
		{Tick: 2, Equity: 990, OpenProfit: -10, Return: -0.1, Drawdown: 110},
	}
	if err := ps.WriteCurve(ctx, "r1", points); err != nil {
		t.Fatalf("WriteCurve: %v", err)
	}
	gotPoints, err := ps.ReadCurve(ctx, "r1")
	if err != nil {
		t.Fatalf("ReadCurve: %v", err)
	}
	if len(gotPoints) != len(points) {
		t.Fatalf("ReadCurve returned %d points, want %d", len(gotPoints), len(points))
	}
	for i := range points {
		if !gotPoints[i].Time.Equal(points[i].Time) || gotPoints[i].Equity != points[i].Equity || gotPoints[i].Drawdown != points[i].Drawdown {
			t.Errorf("point %d = %+v, want %+v", i, gotPoints[i], points[i])
		}
	}

	trades := []domain.Trade{
		{Direction: domain.Short, Closed: true, EntryTick: 2, EntryPrice: 3, ExitTick: 4, ExitPrice: 5, Size: 333.5},
		{Direction: domain.Long, EntryTick: 4, EntryPrice: 5, Size: 100},
	}
	if err := ps.WriteLedger(ctx, "r1", trades); err != nil {
		t.Fatalf("WriteLedger: %v", err)
	}
	gotTrades, err := ps.ReadLedger(ctx, "r1")
	if err != nil {
		t.Fatalf("ReadLedger: %v", err)
	}
	if len(gotTrades) != 2 {
		t.Fatalf("ReadLedger returned %d trades, want 2", len(gotTrades))
	}
	for i := range trades {
		if gotTrades[i] != trades[i] {
			t.Errorf("trade %d = %+v, want %+v", i, gotTrades[i], trades[i])
		}
	}

	if _, err := ps.ReadCurve(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadCurve(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteStoreOpen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	// Verify the store is usable by pinging the database.
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}

	// Reopening an initialised database is a no-op migration.
	again, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening %q: %v", dbPath, err)
	}
	again.Close()
}

func newTestRun(id string, created time.Time) *RunRecord {
	return &RunRecord{
		ID:             id,
		Strategy:       "sma_cross",
		Symbol:         "AAPL",
		Market:         "us",
		Params:         map[string]any{"fast": float64(5), "slow": float64(20)},
		Continuous:     true,
		OnBarClose:     true,
		BuyWithEquity:  true,
		InitialCapital: 1000,
		Convention:     "zero",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Ticks:          124,
		Metrics: map[string]float64{
			"net_profit":    250.5,
			"profit_factor": math.NaN(),
			"closed_trades": 3,
		},
		Trades: []domain.Trade{
			{Direction: domain.Long, Closed: true, EntryTick: 3, EntryPrice: 10, ExitTick: 9, ExitPrice: 12, Size: 100},
			{Direction: domain.Short, EntryTick: 9, EntryPrice: 12, Size: 104.1875},
		},
		CreatedAt: created,
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	older := newTestRun("a", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	newer := newTestRun("b", time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC))
	newer.Symbol = "MSFT"
	for _, r := range []*RunRecord{older, newer} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s): %v", r.ID, err)
		}
	}

	got, err := s.GetRun(ctx, "a")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != "sma_cross" || !got.Continuous || got.InitialCapital != 1000 || got.Ticks != 124 {
		t.Errorf("GetRun header = %+v", got)
	}
	if !got.CreatedAt.Equal(older.CreatedAt) || !got.End.Equal(older.End) {
		t.Errorf("times = %v/%v, want %v/%v", got.CreatedAt, got.End, older.CreatedAt, older.End)
	}
	if got.Params["slow"] != float64(20) {
		t.Errorf("params = %v, want slow=20", got.Params)
	}
	if got.Metrics["net_profit"] != 250.5 || got.Metrics["closed_trades"] != 3 {
		t.Errorf("metrics = %v", got.Metrics)
	}
	if !math.IsNaN(got.Metrics["profit_factor"]) {
		t.Errorf("profit_factor = %v, want NaN preserved", got.Metrics["profit_factor"])
	}
	if len(got.Trades) != 2 || got.Trades[0] != older.Trades[0] || got.Trades[1] != older.Trades[1] {
		t.Errorf("trades = %+v, want %+v", got.Trades, older.Trades)
	}

	// Saving again replaces instead of duplicating.
	older.Metrics = map[string]float64{"net_profit": 1}
	older.Trades = nil
	if err := s.SaveRun(ctx, older); err != nil {
		t.Fatalf("SaveRun (replace): %v", err)
	}
	got, err = s.GetRun(ctx, "a")
	if err != nil {
		t.Fatalf("GetRun after replace: %v", err)
	}
	if len(got.Metrics) != 1 || len(got.Trades) != 0 {
		t.Errorf("after replace: %d metrics, %d trades; want 1, 0", len(got.Metrics), len(got.Trades))
	}

	all, err := s.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b" || all[1].ID != "a" {
		t.Fatalf("ListRuns order = %v, want [b a]", runIDs(all))
	}
	if all[0].Trades != nil {
		t.Error("ListRuns loaded trades")
	}

	msft, err := s.ListRuns(ctx, RunFilter{Symbol: "msft"})
	if err != nil {
		t.Fatalf("ListRuns(symbol): %v", err)
	}
	if len(msft) != 1 || msft[0].ID != "b" {
		t.Errorf("ListRuns(symbol=msft) = %v, want [b]", runIDs(msft))
	}

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns(limit): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListRuns(limit=1) returned %d runs", len(limited))
	}

	if err := s.DeleteRun(ctx, "a"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, "a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun after delete error = %v, want ErrRunNotFound", err)
	}
	if err := s.DeleteRun(ctx, "a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun error = %v, want ErrRunNotFound", err)
	}
}

func runIDs(runs []RunRecord) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
