package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"quantick/internal/config"
	"quantick/internal/store"
	"quantick/internal/strategy"
	"quantick/internal/strategy/builtins"
	"quantick/internal/util"
)

const version = "0.1.0"

var (
	configPath string
	rpcHost    string
	timeout    time.Duration
)

const defaultTimeout = 2 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "quantick-cli: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "quantick-cli"
	app.Version = version
	app.Usage = "run and inspect bar-by-bar strategy backtests"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Value:       "config/quantick.yaml",
			Usage:       "path to the YAML configuration; a missing file means defaults",
			EnvVars:     []string{"QUANTICK_CONFIG"},
			Destination: &configPath,
		},
	}
	app.Commands = []*cli.Command{
		runCommand,
		sweepCommand,
		fetchCommand,
		runsCommand,
		strategiesCommand,
		remoteCommand,
	}
	return app
}

// env holds the stores and backtester shared by the local commands.
type env struct {
	cfg  *config.Config
	bars *store.ParquetStore
	runs *store.SQLiteStore
	bt   *strategy.Backtester
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	util.SetDefault(util.NewFormattedLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	bt := strategy.NewBacktester(bars, builtins.Registry()).
		WithRunStore(runs).
		WithCurveStore(bars)
	return &env{cfg: cfg, bars: bars, runs: runs, bt: bt}, nil
}

func (e *env) Close() error { return e.runs.Close() }
