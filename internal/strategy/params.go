package strategy

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Params are strategy parameters as decoded from YAML, JSON or the command
// line. Numbers may arrive as int, int64, float64 or string.
type Params map[string]any

// Int returns the named integer parameter, or def when it is absent.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("param %s: %v is not an integer", name, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", name, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T", name, v)
	}
}

// Float returns the named numeric parameter, or def when it is absent.
func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T", name, v)
	}
}

// String returns the named string parameter, or def when it is absent.
func (p Params) String(name, def string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %s: want string, got %T", name, v)
	}
	return s, nil
}

// With returns a copy of p with every entry of override applied.
func (p Params) With(override Params) Params {
	out := make(Params, len(p)+len(override))
	maps.Copy(out, p)
	maps.Copy(out, override)
	return out
}

// ParseParams parses key=value pairs. Values that parse as finite numbers are
// stored as float64, the rest as strings, so "nan" and "inf" stay text.
func ParseParams(pairs []string) (Params, error) {
	p := make(Params, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("param %q: want key=value", kv)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			p[k] = f
		} else {
			p[k] = v
		}
	}
	return p, nil
}
