package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"quantick/internal/api"
	"quantick/internal/gather/us"
	"quantick/internal/report"
	"quantick/internal/store"
	"quantick/internal/strategy"
	"quantick/internal/strategy/builtins"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run one backtest over stored bars",
	ArgsUsage: " ",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "no-save", Usage: "do not store the run"},
		&cli.BoolFlag{Name: "trades", Usage: "print the trade ledger"},
		&cli.BoolFlag{Name: "json", Usage: "print the run record as JSON"},
	}, backtestFlags...),
	Action: runBacktest,
}

func runBacktest(c *cli.Context) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	spec, err := specFromFlags(c, e.cfg)
	if err != nil {
		return err
	}
	req, err := spec.request(e.cfg.Backtest)
	if err != nil {
		return err
	}

	var res *strategy.Result
	if c.Bool("no-save") {
		res, err = e.bt.Evaluate(c.Context, req)
	} else {
		res, err = e.bt.Run(c.Context, req)
	}
	if err != nil {
		return err
	}

	rec := res.Record()
	if c.Bool("json") {
		return jsonOutput(c, rec)
	}
	if err := report.WriteSummary(c.App.Writer, rec); err != nil {
		return err
	}
	if c.Bool("trades") {
		fmt.Fprintln(c.App.Writer)
		return report.WriteTrades(c.App.Writer, res.Trades)
	}
	return nil
}

var sweepCommand = &cli.Command{
	Name:      "sweep",
	Usage:     "evaluate a strategy over a parameter grid, best results first",
	ArgsUsage: " ",
	Flags:     sweepFlags,
	Action:    runSweep,
}

func runSweep(c *cli.Context) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	spec, err := specFromFlags(c, e.cfg)
	if err != nil {
		return err
	}
	axes, err := axesFromFlags(c, spec)
	if err != nil {
		return err
	}
	req, err := spec.request(e.cfg.Backtest)
	if err != nil {
		return err
	}
	workers := e.cfg.Backtest.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}

	results, err := e.bt.Sweep(c.Context, req, axes, workers)
	if err != nil {
		return err
	}
	if top := c.Int("top"); top > 0 && len(results) > top {
		results = results[:top]
	}

	recs := make([]store.RunRecord, len(results))
	for i, r := range results {
		recs[i] = *r.Record()
	}
	return report.WriteRuns(c.App.Writer, recs, true)
}

var fetchCommand = &cli.Command{
	Name:      "fetch",
	Usage:     "bring stored daily bars up to date from Alpaca",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "symbols", Usage: "symbols to fetch (default from config)"},
		&cli.StringFlag{Name: "start", Usage: "first day for symbols with no stored bars, YYYY-MM-DD"},
		&cli.BoolFlag{Name: "no-calendar", Usage: "end at the previous UTC day instead of asking the Alpaca calendar"},
	},
	Action: runFetch,
}

func runFetch(c *cli.Context) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	fc := e.cfg.Fetch
	if c.IsSet("symbols") {
		fc.Symbols = c.StringSlice("symbols")
	}
	if c.IsSet("start") {
		fc.StartDate = c.String("start")
	}
	if len(fc.Symbols) == 0 {
		return fmt.Errorf("no symbols configured; set fetch.symbols or pass --symbols")
	}

	ac := e.cfg.Alpaca
	var cal us.Calendar
	if !c.Bool("no-calendar") {
		cal = us.NewCalendar(ac.APIKey, ac.APISecret, "")
	}
	g := us.NewDailyBarGatherer(us.NewBarSource(ac.APIKey, ac.APISecret, ac.DataURL), cal, e.bars, us.Options{
		Symbols:         fc.Symbols,
		StartDate:       fc.StartDate,
		BatchSize:       fc.BatchSize,
		MaxWorkers:      max(e.cfg.Backtest.Workers, 1),
		RateLimitPerMin: fc.RateLimitPerMin,
		MaxRetries:      fc.MaxRetries,
		Feed:            ac.Feed,
	})

	sum, err := g.Gather(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s .. %s: %s bars for %d symbols\n",
		sum.Range.Start.Format("2006-01-02"), sum.Range.End.Format("2006-01-02"),
		report.FormatInt(sum.Bars), sum.Symbols)
	if len(sum.Empty) > 0 {
		fmt.Fprintf(c.App.Writer, "no data: %s\n", strings.Join(sum.Empty, " "))
	}
	if len(sum.Failed) > 0 {
		return fmt.Errorf("failed to fetch: %s", strings.Join(sum.Failed, " "))
	}
	return nil
}

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "inspect stored runs",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list stored runs, newest first",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "strategy"},
				&cli.StringFlag{Name: "symbol"},
				&cli.IntFlag{Name: "limit", Value: 20},
			},
			Action: listRuns,
		},
		{
			Name:      "show",
			Usage:     "show a stored run",
			ArgsUsage: "<id>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "trades", Usage: "print the trade ledger"},
				&cli.BoolFlag{Name: "json", Usage: "print the run record as JSON"},
			},
			Action: showRun,
		},
		{
			Name:      "delete",
			Usage:     "delete a stored run",
			ArgsUsage: "<id>",
			Action:    deleteRun,
		},
	},
}

func listRuns(c *cli.Context) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	recs, err := e.runs.ListRuns(c.Context, store.RunFilter{
		Strategy: c.String("strategy"),
		Symbol:   c.String("symbol"),
		Limit:    c.Int("limit"),
	})
	if err != nil {
		return err
	}
	return report.WriteRuns(c.App.Writer, recs, false)
}

func showRun(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.ShowSubcommandHelp(c)
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	rec, err := e.runs.GetRun(c.Context, id)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return jsonOutput(c, rec)
	}
	if err := report.WriteSummary(c.App.Writer, rec); err != nil {
		return err
	}
	if c.Bool("trades") {
		fmt.Fprintln(c.App.Writer)
		return report.WriteTrades(c.App.Writer, rec.Trades)
	}
	return nil
}

func deleteRun(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.ShowSubcommandHelp(c)
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.runs.DeleteRun(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
	return nil
}

var strategiesCommand = &cli.Command{
	Name:  "strategies",
	Usage: "list the builtin strategies",
	Action: func(c *cli.Context) error {
		for _, name := range builtins.Registry().List() {
			fmt.Fprintln(c.App.Writer, name)
		}
		return nil
	},
}

// jsonOutput prints v as indented JSON. Non-finite metrics are written as
// strings.
func jsonOutput(c *cli.Context, v any) error {
	if rec, ok := v.(*store.RunRecord); ok {
		v = api.RunFromRecord(rec)
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", " ")
	return enc.Encode(v)
}
