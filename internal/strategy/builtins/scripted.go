package builtins

import (
	"fmt"
	"strings"

	"quantick/internal/domain"
	"quantick/internal/series"
	"quantick/internal/strategy"
	"quantick/internal/tick"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Scripted)(nil)

// Scripted replays a fixed list of signals, one per tick from the first
// tick. Ticks past the end of the list get no signal.
type Scripted struct {
	clock   tick.Clock
	signals []domain.Signal
}

// NewScripted returns a Scripted strategy. Signals given here are used when
// Init receives no "signals" parameter.
func NewScripted(signals ...domain.Signal) *Scripted {
	return &Scripted{signals: signals}
}

// Name returns "scripted".
func (s *Scripted) Name() string { return "scripted" }

// Init reads the "signals" parameter: either a compact string such as
// "--L-S" (L long, S short, anything else none) or a list of signal names.
func (s *Scripted) Init(clock tick.Clock, _ series.Series, params strategy.Params) error {
	s.clock = clock
	raw, ok := params["signals"]
	if !ok {
		return nil
	}
	sigs, err := parseSignals(raw)
	if err != nil {
		return fmt.Errorf("param signals: %w", err)
	}
	s.signals = sigs
	return nil
}

// Next returns the scripted signal for the current tick.
func (s *Scripted) Next() domain.Signal {
	i := s.clock.Current() - s.clock.First()
	if i < len(s.signals) {
		return s.signals[i]
	}
	return domain.SignalNone
}

func parseSignals(raw any) ([]domain.Signal, error) {
	switch v := raw.(type) {
	case string:
		out := make([]domain.Signal, 0, len(v))
		for _, c := range strings.ToUpper(v) {
			switch c {
			case 'L':
				out = append(out, domain.SignalLong)
			case 'S':
				out = append(out, domain.SignalShort)
			default:
				out = append(out, domain.SignalNone)
			}
		}
		return out, nil
	case []string:
		out := make([]domain.Signal, len(v))
		for i, name := range v {
			sig, err := domain.ParseSignal(name)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = sig
		}
		return out, nil
	case []any:
		out := make([]domain.Signal, len(v))
		for i, item := range v {
			name, ok := item.(string)
			if !ok && item != nil {
				return nil, fmt.Errorf("item %d: want string, got %T", i, item)
			}
			sig, err := domain.ParseSignal(name)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = sig
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
}
