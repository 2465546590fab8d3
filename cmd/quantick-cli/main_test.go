package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"quantick/internal/api"
	"quantick/internal/config"
	"quantick/internal/domain"
	"quantick/internal/store"
	"quantick/internal/strategy"
	"quantick/internal/strategy/builtins"
	"quantick/pkg/quantick"
)

var day0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// setupData writes SPY daily bars and a config pointing at them, and returns
// the config path.
func setupData(t *testing.T) (cfgPath, dataDir string) {
	t.Helper()
	for _, k := range []string{"QUANTICK_CONFIG", "QUANTICK_RPCHOST", "DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "LOG_FORMAT", "BACKTEST_WORKERS"} {
		t.Setenv(k, "")
	}
	dataDir = t.TempDir()

	var spy []domain.Bar
	for i, c := range []float64{10, 11, 12, 13, 12, 11, 12, 14} {
		spy = append(spy, domain.Bar{
			Symbol: "SPY", Timestamp: day0.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c, Volume: 100,
		})
	}
	require.NoError(t, store.NewParquetStore(dataDir).WriteBars(context.Background(), spy))

	cfgPath = filepath.Join(dataDir, "quantick.yaml")
	cfg := fmt.Sprintf(`storage:
  data_dir: %s
  sqlite_path: %s
logging:
  level: error
backtest:
  initial_capital: 1000
`, dataDir, filepath.Join(dataDir, "runs.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, dataDir
}

// runApp runs the CLI with args and returns its standard output.
func runApp(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"quantick-cli", "--config", cfgPath}, args...))
	return out.String(), err
}

var spyFlags = []string{"--strategy", "scripted", "--symbol", "spy", "--start", "2024-01-01", "--end", "2024-01-31"}

func TestRunNoSave(t *testing.T) {
	cfgPath, _ := setupData(t)

	out, err := runApp(t, cfgPath, append([]string{"run", "--no-save", "--trades", "-p", "signals=L---S"}, spyFlags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "SPY (us)")
	assert.Contains(t, out, "8 ticks")
	assert.Regexp(t, `net_profit\s+200\.00`, out)
	assert.Regexp(t, `equity\s+1,200\.00`, out)
	assert.Contains(t, out, "long")

	out, err = runApp(t, cfgPath, "runs", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "scripted", "--no-save must not store the run")
}

func TestRunShowDelete(t *testing.T) {
	cfgPath, _ := setupData(t)

	out, err := runApp(t, cfgPath, append([]string{"run", "--json", "-p", "signals=L---S"}, spyFlags...)...)
	require.NoError(t, err)
	var run quantick.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), "output: %s", out)
	require.NotEmpty(t, run.ID)
	assert.InDelta(t, 200, float64(run.Metrics["net_profit"]), 1e-9)

	out, err = runApp(t, cfgPath, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, run.ID[:8])

	out, err = runApp(t, cfgPath, "runs", "show", "--trades", run.ID)
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)
	assert.Regexp(t, `net_profit\s+200\.00`, out)

	out, err = runApp(t, cfgPath, "runs", "delete", run.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+run.ID)

	_, err = runApp(t, cfgPath, "runs", "show", run.ID)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestSweepCommand(t *testing.T) {
	cfgPath, _ := setupData(t)

	out, err := runApp(t, cfgPath, append([]string{"sweep", "-a", "signals=S---L,L---S", "--top", "1"}, spyFlags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "signals=L---S")
	assert.NotContains(t, out, "signals=S---L")
	assert.Contains(t, out, "200.00")
}

func TestRunCommandErrors(t *testing.T) {
	cfgPath, _ := setupData(t)

	_, err := runApp(t, cfgPath, "run", "--symbol", "SPY")
	assert.Error(t, err, "strategy is required")

	_, err = runApp(t, cfgPath, "run", "--no-save", "--strategy", "sma_cross", "--symbol", "SPY",
		"--start", "2024-01-01", "-p", "fast=5", "-p", "slow=3")
	assert.ErrorIs(t, err, strategy.ErrInvalidRequest)
}

func TestRemoteRun(t *testing.T) {
	cfgPath, dataDir := setupData(t)

	bars := store.NewParquetStore(dataDir)
	runs, err := store.NewSQLiteStore(filepath.Join(dataDir, "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })
	bt := strategy.NewBacktester(bars, builtins.Registry()).WithRunStore(runs).WithCurveStore(bars)
	defaults := config.Default().Backtest
	defaults.InitialCapital = 1000

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	api.NewBacktestService(api.NewService(bt, runs, bars, defaults)).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	remote := []string{"remote", "--rpchost", lis.Addr().String()}

	out, err := runApp(t, cfgPath, append(append(remote, "run", "-p", "signals=L---S"), spyFlags...)...)
	require.NoError(t, err)
	assert.Regexp(t, `net_profit\s+200\.00`, out)

	out, err = runApp(t, cfgPath, append(remote, "runs")...)
	require.NoError(t, err)
	assert.Contains(t, out, "scripted")

	out, err = runApp(t, cfgPath, append(remote, "strategies")...)
	require.NoError(t, err)
	assert.Contains(t, out, "sma_cross")
}
