package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"quantick/internal/domain"
	"quantick/internal/report"
	"quantick/internal/store"
	"quantick/pkg/quantick"
)

var remoteCommand = &cli.Command{
	Name:  "remote",
	Usage: "talk to a quantick-server over gRPC",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "rpchost",
			Value:       "localhost:9090",
			Usage:       "the gRPC host to connect to",
			EnvVars:     []string{"QUANTICK_RPCHOST"},
			Destination: &rpcHost,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "the context timeout for each request",
			Destination: &timeout,
		},
	},
	Subcommands: []*cli.Command{
		{
			Name:   "strategies",
			Usage:  "list the server's strategies",
			Action: remoteStrategies,
		},
		{
			Name:  "runs",
			Usage: "list the server's stored runs",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "strategy"},
				&cli.StringFlag{Name: "symbol"},
				&cli.IntFlag{Name: "limit", Value: 20},
			},
			Action: remoteRuns,
		},
		{
			Name:      "show",
			Usage:     "show a run stored on the server",
			ArgsUsage: "<id>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "trades", Usage: "print the trade ledger"},
			},
			Action: remoteShow,
		},
		{
			Name:  "run",
			Usage: "run a backtest on the server",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{Name: "no-save", Usage: "do not store the run"},
			}, backtestFlags...),
			Action: remoteRun,
		},
		{
			Name:   "sweep",
			Usage:  "run a parameter sweep on the server",
			Flags:  sweepFlags,
			Action: remoteSweep,
		},
	},
}

func setupClient(c *cli.Context) (*quantick.Client, context.CancelFunc, error) {
	client, err := quantick.Dial(rpcHost)
	if err != nil {
		return nil, nil, err
	}
	var cancel context.CancelFunc
	c.Context, cancel = context.WithTimeout(c.Context, timeout)
	return client, cancel, nil
}

func remoteStrategies(c *cli.Context) error {
	client, cancel, err := setupClient(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Close()

	names, err := client.ListStrategies(c.Context)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func remoteRuns(c *cli.Context) error {
	client, cancel, err := setupClient(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Close()

	runs, err := client.ListRuns(c.Context, quantick.ListRunsRequest{
		Strategy: c.String("strategy"),
		Symbol:   c.String("symbol"),
		Limit:    c.Int("limit"),
	})
	if err != nil {
		return err
	}
	return report.WriteRuns(c.App.Writer, recordsFromRuns(runs), false)
}

func remoteShow(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.ShowSubcommandHelp(c)
	}
	client, cancel, err := setupClient(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Close()

	run, err := client.GetRun(c.Context, id)
	if err != nil {
		return err
	}
	return writeRemoteRun(c, run, c.Bool("trades"))
}

func remoteRun(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	spec, err := specFromFlags(c, cfg)
	if err != nil {
		return err
	}
	req := spec.wire()
	if c.Bool("no-save") {
		save := false
		req.Save = &save
	}

	client, cancel, err := setupClient(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Close()

	run, err := client.RunBacktest(c.Context, req)
	if err != nil {
		return err
	}
	return writeRemoteRun(c, run, false)
}

func remoteSweep(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	spec, err := specFromFlags(c, cfg)
	if err != nil {
		return err
	}
	axes, err := axesFromFlags(c, spec)
	if err != nil {
		return err
	}

	client, cancel, err := setupClient(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Close()

	runs, err := client.Sweep(c.Context, quantick.SweepRequest{
		RunRequest: spec.wire(),
		Axes:       axes,
		Workers:    c.Int("workers"),
		Top:        c.Int("top"),
	})
	if err != nil {
		return err
	}
	return report.WriteRuns(c.App.Writer, recordsFromRuns(runs), true)
}

func writeRemoteRun(c *cli.Context, run *quantick.Run, trades bool) error {
	rec := recordFromRun(run)
	if err := report.WriteSummary(c.App.Writer, rec); err != nil {
		return err
	}
	if trades {
		fmt.Fprintln(c.App.Writer)
		return report.WriteTrades(c.App.Writer, rec.Trades)
	}
	return nil
}

// recordFromRun converts a wire run back to the stored form the report
// package renders.
func recordFromRun(run *quantick.Run) *store.RunRecord {
	m := make(map[string]float64, len(run.Metrics))
	for k, v := range run.Metrics {
		m[k] = float64(v)
	}
	trades := make([]domain.Trade, len(run.Trades))
	for i, t := range run.Trades {
		dir := domain.Long
		if t.Direction == domain.Short.String() {
			dir = domain.Short
		}
		trades[i] = domain.Trade{
			Direction:  dir,
			Closed:     t.Closed,
			EntryTick:  t.EntryTick,
			EntryPrice: float64(t.EntryPrice),
			ExitTick:   t.ExitTick,
			ExitPrice:  float64(t.ExitPrice),
			Size:       float64(t.Size),
		}
	}
	return &store.RunRecord{
		ID:             run.ID,
		Strategy:       run.Strategy,
		Symbol:         run.Symbol,
		Market:         run.Market,
		Params:         run.Params,
		Continuous:     run.Continuous,
		OnBarClose:     run.OnBarClose,
		BuyWithEquity:  run.BuyWithEquity,
		InitialCapital: float64(run.InitialCapital),
		Convention:     run.Convention,
		Start:          run.Start,
		End:            run.End,
		Ticks:          run.Ticks,
		Metrics:        m,
		Trades:         trades,
		CreatedAt:      run.CreatedAt,
	}
}

func recordsFromRuns(runs []quantick.Run) []store.RunRecord {
	out := make([]store.RunRecord, len(runs))
	for i := range runs {
		out[i] = *recordFromRun(&runs[i])
	}
	return out
}

