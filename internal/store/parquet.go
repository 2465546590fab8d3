package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantick/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ CurveStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and CurveStore using Parquet files on disk.
// Bars written through the BarStore interface land under DefaultMarket.
type ParquetStore struct {
	DataDir       string
	DefaultMarket domain.Market
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, DefaultMarket: domain.MarketUS}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// EquityRecord is the Parquet schema for one point of a run's equity curve.
type EquityRecord struct {
	Tick       int64   `parquet:"tick"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, 0 when unknown
	Equity     float64 `parquet:"equity"`
	OpenProfit float64 `parquet:"open_profit"`
	Return     float64 `parquet:"return"`
	Drawdown   float64 `parquet:"drawdown"`
}

// LedgerRecord is the Parquet schema for one trade of a run's ledger.
type LedgerRecord struct {
	Seq        int64   `parquet:"seq"`
	Direction  int32   `parquet:"direction"` // +1 long, -1 short
	Closed     bool    `parquet:"closed"`
	EntryTick  int64   `parquet:"entry_tick"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitTick   int64   `parquet:"exit_tick"`
	ExitPrice  float64 `parquet:"exit_price"`
	Size       float64 `parquet:"size"`
	PnL        float64 `parquet:"pnl"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars merges bars into the yearly files of DefaultMarket.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	return s.WriteBarsForMarket(bars, string(s.DefaultMarket))
}

// WriteBarsForMarket merges bars into one file per symbol and year:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// A bar with the same symbol and timestamp as a stored one replaces it.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	if len(bars) == 0 {
		return nil
	}

	files := make(map[string][]BarRecord)
	for _, b := range bars {
		path := s.barPath(b.Symbol, market, b.Timestamp)
		files[path] = append(files[path], toBarRecord(b))
	}

	for path, records := range files {
		existing, _ := readParquetFile[BarRecord](path)
		if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
			return fmt.Errorf("writing bars to %s: %w", path, err)
		}
	}
	return nil
}

// ReadBars returns the bars of symbol with timestamps in [start, end], in
// time order. Missing year files are skipped.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(symbol, market, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			b := fromBarRecord(r)
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			bars = append(bars, b)
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     strings.ToUpper(b.Symbol),
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func fromBarRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// CurveStore implementation
// ---------------------------------------------------------------------------

// WriteCurve writes the equity curve of a run to
//
//	<DataDir>/runs/<runID>/equity.parquet
func (s *ParquetStore) WriteCurve(_ context.Context, runID string, points []domain.EquityPoint) error {
	records := make([]EquityRecord, len(points))
	for i, p := range points {
		records[i] = EquityRecord{
			Tick:       int64(p.Tick),
			Timestamp:  timeToMillis(p.Time),
			Equity:     p.Equity,
			OpenProfit: p.OpenProfit,
			Return:     p.Return,
			Drawdown:   p.Drawdown,
		}
	}
	if err := writeParquetFile(s.runPath(runID, "equity"), records); err != nil {
		return fmt.Errorf("writing equity curve for run %s: %w", runID, err)
	}
	return nil
}

// ReadCurve reads the equity curve of a run.
func (s *ParquetStore) ReadCurve(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	path := s.runPath(runID, "equity")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("equity curve for run %s: %w", runID, ErrRunNotFound)
	}
	records, err := readParquetFile[EquityRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading equity curve for run %s: %w", runID, err)
	}
	points := make([]domain.EquityPoint, len(records))
	for i, r := range records {
		points[i] = domain.EquityPoint{
			Tick:       int(r.Tick),
			Time:       millisToTime(r.Timestamp),
			Equity:     r.Equity,
			OpenProfit: r.OpenProfit,
			Return:     r.Return,
			Drawdown:   r.Drawdown,
		}
	}
	return points, nil
}

// WriteLedger writes the trade ledger of a run to
//
//	<DataDir>/runs/<runID>/trades.parquet
func (s *ParquetStore) WriteLedger(_ context.Context, runID string, trades []domain.Trade) error {
	records := make([]LedgerRecord, len(trades))
	for i, t := range trades {
		records[i] = LedgerRecord{
			Seq:        int64(i),
			Direction:  int32(t.Direction),
			Closed:     t.Closed,
			EntryTick:  int64(t.EntryTick),
			EntryPrice: t.EntryPrice,
			ExitTick:   int64(t.ExitTick),
			ExitPrice:  t.ExitPrice,
			Size:       t.Size,
			PnL:        t.RealizedPnL(),
		}
	}
	if err := writeParquetFile(s.runPath(runID, "trades"), records); err != nil {
		return fmt.Errorf("writing ledger for run %s: %w", runID, err)
	}
	return nil
}

// ReadLedger reads the trade ledger of a run in insertion order.
func (s *ParquetStore) ReadLedger(_ context.Context, runID string) ([]domain.Trade, error) {
	path := s.runPath(runID, "trades")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ledger for run %s: %w", runID, ErrRunNotFound)
	}
	records, err := readParquetFile[LedgerRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading ledger for run %s: %w", runID, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	trades := make([]domain.Trade, len(records))
	for i, r := range records {
		trades[i] = domain.Trade{
			Direction:  domain.Direction(r.Direction),
			Closed:     r.Closed,
			EntryTick:  int(r.EntryTick),
			EntryPrice: r.EntryPrice,
			ExitTick:   int(r.ExitTick),
			ExitPrice:  r.ExitPrice,
			Size:       r.Size,
		}
	}
	return trades, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the yearly bar file holding t.
func (s *ParquetStore) barPath(symbol, market string, t time.Time) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", t.UTC().Year()))
}

// runPath returns the filesystem path for a per-run Parquet file.
// Layout: <dataDir>/runs/<runID>/<name>.parquet
func (s *ParquetStore) runPath(runID, name string) string {
	return filepath.Join(s.DataDir, "runs", runID, name+".parquet")
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords merges the records of one bar file, keyed by timestamp.
// Incoming records replace existing ones; the result is in time order.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	byTS := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		byTS[r.Timestamp] = r
	}
	for _, r := range incoming {
		byTS[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(byTS))
	for _, r := range byTS {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
