package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"quantick/internal/config"
	"quantick/internal/strategy"
	"quantick/pkg/quantick"
)

var backtestFlags = []cli.Flag{
	&cli.StringFlag{Name: "name", Usage: "start from a named run in the config's runs section"},
	&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "registered strategy name"},
	&cli.StringFlag{Name: "symbol", Usage: "ticker symbol"},
	&cli.StringFlag{Name: "market", Usage: "market of the symbol (default from config)"},
	&cli.StringFlag{Name: "start", Usage: "first day, YYYY-MM-DD"},
	&cli.StringFlag{Name: "end", Usage: "last day, YYYY-MM-DD (default today)"},
	&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "strategy parameter key=value, repeatable"},
	&cli.BoolFlag{Name: "continuous", Usage: "opposite signals reverse the position instead of closing it"},
	&cli.BoolFlag{Name: "on-bar-close", Usage: "fill on the signalling bar's close instead of the next open"},
	&cli.Float64Flag{Name: "capital", Usage: "initial capital"},
	&cli.BoolFlag{Name: "buy-with-equity", Usage: "size entries from current equity instead of initial capital"},
	&cli.StringFlag{Name: "convention", Usage: "zero-denominator rule for ratios: zero, ieee or nan"},
	&cli.Float64Flag{Name: "risk-free", Usage: "per-tick risk-free return for the return ratios"},
}

var sweepFlags = append([]cli.Flag{
	&cli.StringSliceFlag{Name: "axis", Aliases: []string{"a"}, Usage: "sweep axis key=v1,v2,..., repeatable"},
	&cli.IntFlag{Name: "workers", Usage: "parallel evaluations (default from config)"},
	&cli.IntFlag{Name: "top", Usage: "show only the best N results"},
}, backtestFlags...)

// runSpec is a run definition assembled from an optional named run and the
// command-line flags. Execution pointers are set only when given.
type runSpec struct {
	def        config.RunDef
	convention string
	riskFree   *float64
}

func specFromFlags(c *cli.Context, cfg *config.Config) (runSpec, error) {
	var spec runSpec
	if name := c.String("name"); name != "" {
		def, ok := cfg.Run(name)
		if !ok {
			return spec, fmt.Errorf("no run named %q in the config", name)
		}
		spec.def = def
	}
	def := &spec.def

	for flag, dst := range map[string]*string{
		"strategy": &def.Strategy,
		"symbol":   &def.Symbol,
		"market":   &def.Market,
		"start":    &def.Start,
		"end":      &def.End,
	} {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}

	params, err := strategy.ParseParams(c.StringSlice("param"))
	if err != nil {
		return spec, err
	}
	def.Params = strategy.Params(def.Params).With(params)

	for flag, dst := range map[string]**bool{
		"continuous":      &def.Continuous,
		"on-bar-close":    &def.OnBarClose,
		"buy-with-equity": &def.BuyWithEquity,
	} {
		if c.IsSet(flag) {
			v := c.Bool(flag)
			*dst = &v
		}
	}
	if c.IsSet("capital") {
		v := c.Float64("capital")
		def.InitialCapital = &v
	}
	if c.IsSet("convention") {
		spec.convention = c.String("convention")
	}
	if c.IsSet("risk-free") {
		v := c.Float64("risk-free")
		spec.riskFree = &v
	}

	if def.Strategy == "" || def.Symbol == "" {
		return spec, fmt.Errorf("--strategy and --symbol are required (or --name)")
	}
	return spec, nil
}

// request resolves the run against the configured backtest defaults.
func (s runSpec) request(defaults config.Backtest) (strategy.Request, error) {
	if s.convention != "" {
		defaults.Convention = s.convention
	}
	if s.riskFree != nil {
		defaults.RiskFreeRate = *s.riskFree
	}
	return s.def.Request(defaults)
}

// wire converts the run to a server request, leaving unset fields to the
// server's defaults.
func (s runSpec) wire() quantick.RunRequest {
	return quantick.RunRequest{
		Strategy:       s.def.Strategy,
		Symbol:         s.def.Symbol,
		Market:         s.def.Market,
		Start:          s.def.Start,
		End:            s.def.End,
		Params:         s.def.Params,
		Continuous:     s.def.Continuous,
		OnBarClose:     s.def.OnBarClose,
		InitialCapital: s.def.InitialCapital,
		BuyWithEquity:  s.def.BuyWithEquity,
		Convention:     s.convention,
		RiskFree:       s.riskFree,
	}
}

// axesFromFlags merges the named run's sweep grid with --axis values.
// "fast=5,10" and the comma-split form "fast=5" "10" are equivalent.
func axesFromFlags(c *cli.Context, spec runSpec) (map[string][]any, error) {
	axes := make(map[string][]any, len(spec.def.Sweep))
	for k, v := range spec.def.Sweep {
		axes[k] = v
	}

	flagAxes, err := parseAxes(c.StringSlice("axis"))
	if err != nil {
		return nil, err
	}
	for k, v := range flagAxes {
		axes[k] = v
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("at least one --axis is required")
	}
	return axes, nil
}

func parseAxes(items []string) (map[string][]any, error) {
	axes := make(map[string][]any)
	key := ""
	for _, item := range items {
		for _, tok := range strings.Split(item, ",") {
			if k, v, ok := strings.Cut(tok, "="); ok {
				if k == "" {
					return nil, fmt.Errorf("axis %q: want key=v1,v2", item)
				}
				key, tok = k, v
			} else if key == "" {
				return nil, fmt.Errorf("axis %q: want key=v1,v2", item)
			}
			p, err := strategy.ParseParams([]string{key + "=" + tok})
			if err != nil {
				return nil, err
			}
			axes[key] = append(axes[key], p[key])
		}
	}
	return axes, nil
}
