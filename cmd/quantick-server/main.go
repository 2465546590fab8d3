package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"quantick/internal/api"
	"quantick/internal/config"
	"quantick/internal/store"
	"quantick/internal/strategy"
	"quantick/internal/strategy/builtins"
	"quantick/internal/util"
)

func main() {
	// Load config.
	cfgPath := "config/quantick.yaml"
	if p := os.Getenv("QUANTICK_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	// Setup logging.
	logger := util.NewFormattedLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Create stores and backtester.
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating storage directory: %v", err)
	}
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	registry := builtins.Registry()
	bt := strategy.NewBacktester(bars, registry).
		WithRunStore(runs).
		WithCurveStore(bars)

	svc := api.NewService(bt, runs, bars, cfg.Backtest)
	srv := api.NewServer(cfg.Server, svc)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("quantick-server starting",
		"data_dir", cfg.Storage.DataDir,
		"strategies", registry.List(),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("quantick-server stopped")
}
