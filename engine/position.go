package engine

import "math"

// ApplyFill merges a fill into the position state and returns the realized
// PnL delta (0 for BUY fills). A fill without quantity falls back to its USD
// notional at the fill price; with neither, the position is untouched.
//
// BUY: weighted-average cost merge. SELL: quantity is capped at the held
// position (no short positions in the simulation); realized delta is
// (fill price - average cost) * sold quantity.
func (s *GridSession) ApplyFill(f *Fill) float64 {
	qty := f.Quantity
	if qty <= 0 && f.NotionalUSD > 0 && f.Price > 0 {
		qty = f.NotionalUSD / f.Price
	}
	if qty <= 0 {
		return 0
	}

	p := &s.Position
	switch f.Side {
	case SideBuy:
		newQty := p.PositionQty + qty
		if newQty > 0 {
			p.AvgCost = (p.PositionQty*p.AvgCost + qty*f.Price) / newQty
		}
		p.PositionQty = newQty
		return 0

	case SideSell:
		sellQty := math.Min(qty, p.PositionQty)
		if sellQty <= 0 {
			return 0
		}
		delta := (f.Price - p.AvgCost) * sellQty
		p.PositionQty -= sellQty
		if p.PositionQty <= 1e-12 {
			p.PositionQty = 0
			p.AvgCost = 0
		}
		p.RealizedPnL += delta
		return delta
	}
	return 0
}

// Mark recomputes the mark-to-market fields against the given price. Must be
// called after every tick and every fill-driven position change.
func (s *GridSession) Mark(lastPrice float64) {
	p := &s.Position
	if lastPrice > 0 && !math.IsNaN(lastPrice) && !math.IsInf(lastPrice, 0) {
		p.LastPrice = lastPrice
	}

	if p.PositionQty > 0 && p.LastPrice > 0 {
		p.UnrealizedPnL = (p.LastPrice - p.AvgCost) * p.PositionQty
	} else {
		p.UnrealizedPnL = 0
	}
	p.TotalPnL = p.RealizedPnL + p.UnrealizedPnL

	p.EquityUSD = p.InitialCapitalUSD + p.TotalPnL
	if p.InitialCapitalUSD > 0 {
		p.PnLPct = p.TotalPnL / p.InitialCapitalUSD * 100
	}
}
