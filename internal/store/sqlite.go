package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"quantick/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	strategy        TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	market          TEXT NOT NULL,
	params          TEXT NOT NULL,
	continuous      INTEGER NOT NULL,
	on_bar_close    INTEGER NOT NULL,
	buy_with_equity INTEGER NOT NULL,
	initial_capital REAL NOT NULL,
	convention      TEXT NOT NULL,
	start_ms        INTEGER NOT NULL,
	end_ms          INTEGER NOT NULL,
	ticks           INTEGER NOT NULL,
	created_ms      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created ON runs(created_ms);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  REAL,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS run_trades (
	run_id      TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	direction   INTEGER NOT NULL,
	closed      INTEGER NOT NULL,
	entry_tick  INTEGER NOT NULL,
	entry_price REAL,
	exit_tick   INTEGER NOT NULL,
	exit_price  REAL,
	size        REAL,
	PRIMARY KEY (run_id, seq)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under parallel sweeps.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode = WAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts or replaces a run together with its metrics and trades.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding params of run %s: %w", run.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := deleteRun(ctx, tx, run.ID); err != nil {
		return fmt.Errorf("replacing run %s: %w", run.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, symbol, market, params, continuous, on_bar_close,
			buy_with_equity, initial_capital, convention, start_ms, end_ms, ticks, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, run.Market, string(params),
		run.Continuous, run.OnBarClose, run.BuyWithEquity, run.InitialCapital, run.Convention,
		run.Start.UnixMilli(), run.End.UnixMilli(), run.Ticks, run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	metricStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_metrics (run_id, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer metricStmt.Close()
	for name, v := range run.Metrics {
		if _, err := metricStmt.ExecContext(ctx, run.ID, name, nullableFloat(v)); err != nil {
			return fmt.Errorf("inserting metric %s of run %s: %w", name, run.ID, err)
		}
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (run_id, seq, direction, closed, entry_tick, entry_price, exit_tick, exit_price, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()
	for i, t := range run.Trades {
		_, err := tradeStmt.ExecContext(ctx, run.ID, i, int(t.Direction), t.Closed,
			t.EntryTick, nullableFloat(t.EntryPrice), t.ExitTick, nullableFloat(t.ExitPrice), nullableFloat(t.Size))
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run with its metrics and trades.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	run := &runs[0]

	if run.Metrics, err = s.loadMetrics(ctx, id); err != nil {
		return nil, err
	}
	if run.Trades, err = s.loadTrades(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs matching filter, newest first, with metrics but
// without trades.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	query := selectRuns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_ms DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Metrics, err = s.loadMetrics(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// DeleteRun removes a run and everything stored with it.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n, err := deleteRun(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Row helpers
// ---------------------------------------------------------------------------

// deleteRun removes a run and its child rows, returning how many runs matched.
func deleteRun(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	for _, table := range []string{"run_metrics", "run_trades"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectRuns = `
	SELECT id, strategy, symbol, market, params, continuous, on_bar_close, buy_with_equity,
		initial_capital, convention, start_ms, end_ms, ticks, created_ms
	FROM runs`

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                         RunRecord
			params                    string
			startMS, endMS, createdMS int64
		)
		err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.Market, &params,
			&r.Continuous, &r.OnBarClose, &r.BuyWithEquity, &r.InitialCapital, &r.Convention,
			&startMS, &endMS, &r.Ticks, &createdMS)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("decoding params of run %s: %w", r.ID, err)
		}
		r.Start = time.UnixMilli(startMS).UTC()
		r.End = time.UnixMilli(endMS).UTC()
		r.CreatedAt = time.UnixMilli(createdMS).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) loadMetrics(ctx context.Context, id string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM run_metrics WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make(map[string]float64)
	for rows.Next() {
		var (
			name  string
			value sql.NullFloat64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metrics[name] = floatOrNaN(value)
	}
	return metrics, rows.Err()
}

func (s *SQLiteStore) loadTrades(ctx context.Context, id string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, closed, entry_tick, entry_price, exit_tick, exit_price, size
		FROM run_trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                 domain.Trade
			dir               int
			entry, exit, size sql.NullFloat64
		)
		if err := rows.Scan(&dir, &t.Closed, &t.EntryTick, &entry, &t.ExitTick, &exit, &size); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(dir)
		t.EntryPrice = floatOrNaN(entry)
		t.ExitPrice = floatOrNaN(exit)
		t.Size = floatOrNaN(size)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// nullableFloat stores NaN as NULL; floatOrNaN reverses it.
func nullableFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
