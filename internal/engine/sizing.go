package engine

// capitalBase returns the capital a new entry is sized from: current equity
// when buying with equity, the initial capital otherwise.
func (c Config) capitalBase(netProfit, openProfit float64) float64 {
	if c.BuyWithEquity {
		return c.InitialCapital + netProfit + openProfit
	}
	return c.InitialCapital
}

// positionSize converts a capital base to units at price. Zero or negative
// prices are not rejected; the result carries Inf or a negative size into
// the marks.
func positionSize(base, price float64) float64 {
	return base / price
}
