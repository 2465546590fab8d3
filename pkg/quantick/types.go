// Package quantick is the Go SDK for quantick-server. It holds the wire types
// shared by the HTTP and gRPC APIs and a gRPC client.
package quantick

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Float is a float64 whose JSON form carries NaN and infinities as the
// strings "NaN", "+Inf" and "-Inf".
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("quantick: float %q: %w", s, err)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// RunRequest asks the server for one backtest. Nil execution fields take the
// server's configured defaults. Dates are YYYY-MM-DD.
type RunRequest struct {
	Strategy string         `json:"strategy"`
	Symbol   string         `json:"symbol"`
	Market   string         `json:"market,omitempty"`
	Start    string         `json:"start,omitempty"`
	End      string         `json:"end,omitempty"`
	Params   map[string]any `json:"params,omitempty"`

	Continuous     *bool    `json:"continuous,omitempty"`
	OnBarClose     *bool    `json:"on_bar_close,omitempty"`
	InitialCapital *float64 `json:"initial_capital,omitempty"`
	BuyWithEquity  *bool    `json:"buy_with_equity,omitempty"`
	Convention     string   `json:"convention,omitempty"`
	RiskFree       *float64 `json:"risk_free,omitempty"`

	// Save persists the run. Nil means true.
	Save *bool `json:"save,omitempty"`
}

// SweepRequest evaluates RunRequest once per combination of Axes. Sweep
// results are never saved.
type SweepRequest struct {
	RunRequest
	Axes    map[string][]any `json:"axes"`
	Workers int              `json:"workers,omitempty"`
	// Top keeps only the best results. 0 keeps all.
	Top int `json:"top,omitempty"`
}

// ListRunsRequest filters stored runs.
type ListRunsRequest struct {
	Strategy string `json:"strategy,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// GetRunRequest names a stored run.
type GetRunRequest struct {
	ID string `json:"id"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// Run is a backtest summary with its final metrics.
type Run struct {
	ID       string         `json:"id"`
	Strategy string         `json:"strategy"`
	Symbol   string         `json:"symbol"`
	Market   string         `json:"market"`
	Params   map[string]any `json:"params,omitempty"`

	Continuous     bool   `json:"continuous"`
	OnBarClose     bool   `json:"on_bar_close"`
	BuyWithEquity  bool   `json:"buy_with_equity"`
	InitialCapital Float  `json:"initial_capital"`
	Convention     string `json:"convention"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Ticks int       `json:"ticks"`

	Metrics map[string]Float `json:"metrics"`
	Trades  []Trade          `json:"trades,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Trade is one ledger entry. PnL is zero while the trade is open.
type Trade struct {
	Direction  string `json:"direction"`
	Closed     bool   `json:"closed"`
	EntryTick  int    `json:"entry_tick"`
	EntryPrice Float  `json:"entry_price"`
	ExitTick   int    `json:"exit_tick,omitempty"`
	ExitPrice  Float  `json:"exit_price,omitempty"`
	Size       Float  `json:"size"`
	PnL        Float  `json:"pnl"`
}

// EquityPoint is one tick of a run's equity curve.
type EquityPoint struct {
	Tick       int       `json:"tick"`
	Time       time.Time `json:"time"`
	Equity     Float     `json:"equity"`
	OpenProfit Float     `json:"open_profit"`
	Return     Float     `json:"return"`
	Drawdown   Float     `json:"drawdown"`
}

// ListRunsResponse wraps the stored runs.
type ListRunsResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// SweepResponse holds sweep results, best first.
type SweepResponse struct {
	Runs []Run `json:"runs"`
}

// StrategiesResponse lists registered strategy names.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// ---------------------------------------------------------------------------
// structpb bridging
// ---------------------------------------------------------------------------

// ToStruct encodes v through its JSON form. v must encode to a JSON object.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
