package builtins

import "quantick/internal/strategy"

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register("sma_cross", func() strategy.Strategy { return NewSMACross() })
	r.Register("scripted", func() strategy.Strategy { return NewScripted() })
	r.Register("breakout", func() strategy.Strategy { return NewBreakout() })
	r.Register("fit", func() strategy.Strategy { return NewFit() })
}

// Registry returns a new registry holding the builtin strategies.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
