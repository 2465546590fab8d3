package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"quantick/internal/domain"
	"quantick/internal/store"
)

// kind selects how a metric is displayed.
type kind int

const (
	money kind = iota
	percent
	count
	ratio
)

type row struct {
	name string
	kind kind
}

type section struct {
	title string
	rows  []row
}

// summary lists the metrics printed by WriteSummary, in order.
var summary = []section{
	{"Performance", []row{
		{"equity", money},
		{"net_profit", money},
		{"net_profit_percent", percent},
		{"open_profit", money},
		{"gross_profit", money},
		{"gross_loss", money},
		{"profit_factor", ratio},
		{"long_net_profit", money},
		{"short_net_profit", money},
		{"long_short_net_profit_ratio", ratio},
	}},
	{"Trades", []row{
		{"closed_trades", count},
		{"winning_trades", count},
		{"losing_trades", count},
		{"percent_profitable", percent},
		{"avg_trade", money},
		{"avg_winning_trade", money},
		{"avg_losing_trade", money},
		{"avg_winning_losing_trade_ratio", ratio},
	}},
	{"Drawdown", []row{
		{"peak_equity", money},
		{"equity_max_drawdown", money},
		{"equity_max_drawdown_percent", percent},
		{"max_run_up", money},
		{"max_run_up_percent", percent},
		{"intra_trade_max_drawdown", money},
		{"largest_intra_trade_drawdown_percent", percent},
	}},
	{"Returns", []row{
		{"mean_return", percent},
		{"return_stddev", percent},
		{"downside_deviation", percent},
		{"sharpe_ratio", ratio},
		{"sortino_ratio", ratio},
		{"omega_ratio", ratio},
	}},
}

func formatMetric(v float64, k kind) string {
	switch k {
	case money:
		return FormatMoney(v)
	case percent:
		return FormatPercent(v)
	case count:
		if _, ok := nonFinite(v); ok {
			return FormatFloat(v, 0)
		}
		return FormatInt(int(v))
	default:
		return FormatFloat(v, 3)
	}
}

// WriteSummary writes the run header and its headline metrics. Metrics
// missing from the record are skipped.
func WriteSummary(w io.Writer, rec *store.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Run\t%s\n", rec.ID)
	fmt.Fprintf(tw, "Strategy\t%s %s\n", rec.Strategy, FormatParams(rec.Params))
	fmt.Fprintf(tw, "Symbol\t%s (%s)\n", rec.Symbol, rec.Market)
	fmt.Fprintf(tw, "Range\t%s .. %s, %s ticks\n", day(rec.Start), day(rec.End), FormatInt(rec.Ticks))
	fmt.Fprintf(tw, "Execution\t%s\n", execution(rec))
	fmt.Fprintf(tw, "Initial capital\t%s\n", FormatMoney(rec.InitialCapital))

	for _, sec := range summary {
		fmt.Fprintf(tw, "\n%s\t\n", sec.title)
		for _, r := range sec.rows {
			v, ok := rec.Metrics[r.name]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\n", r.name, formatMetric(v, r.kind))
		}
	}
	return tw.Flush()
}

// WriteTrades writes one line per ledger entry.
func WriteTrades(w io.Writer, trades []domain.Trade) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tDir\tEntry tick\tEntry price\tExit tick\tExit price\tSize\tPnL\t")
	for i, t := range trades {
		exitTick, exitPrice := "open", "-"
		pnl := "-"
		if tick, price, ok := t.Exit(); ok {
			exitTick = FormatInt(tick)
			exitPrice = FormatFloat(price, 2)
			pnl = FormatMoney(t.RealizedPnL())
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			i+1, t.Direction, t.EntryTick, FormatFloat(t.EntryPrice, 2),
			exitTick, exitPrice, FormatFloat(t.Size, 4), pnl)
	}
	return tw.Flush()
}

// WriteRuns writes one line per run. withParams adds the parameter column
// used for sweep results.
func WriteRuns(w io.Writer, runs []store.RunRecord, withParams bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "ID\tStrategy\tSymbol\tRange\tTicks\tNet profit\tTrades\tMax DD\t"
	if withParams {
		header += "Params\t"
	}
	fmt.Fprintln(tw, header)
	for i := range runs {
		r := &runs[i]
		line := fmt.Sprintf("%s\t%s\t%s\t%s..%s\t%s\t%s\t%s\t%s\t",
			shortID(r.ID), r.Strategy, r.Symbol, day(r.Start), day(r.End),
			FormatInt(r.Ticks),
			FormatMoney(r.Metrics["net_profit"]),
			formatMetric(r.Metrics["closed_trades"], count),
			FormatPercent(r.Metrics["equity_max_drawdown_percent"]),
		)
		if withParams {
			line += FormatParams(r.Params) + "\t"
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// FormatParams renders params as sorted key=value pairs.
func FormatParams(p map[string]any) string {
	if len(p) == 0 {
		return ""
	}
	keys := slices.Sorted(maps.Keys(p))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}

func execution(rec *store.RunRecord) string {
	var parts []string
	if rec.Continuous {
		parts = append(parts, "continuous")
	} else {
		parts = append(parts, "flat between trades")
	}
	if rec.OnBarClose {
		parts = append(parts, "fill on bar close")
	} else {
		parts = append(parts, "fill on next open")
	}
	if rec.BuyWithEquity {
		parts = append(parts, "size from equity")
	}
	if rec.Convention != "" {
		parts = append(parts, "convention "+rec.Convention)
	}
	return strings.Join(parts, ", ")
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateOnly)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
