package engine

import (
	"math"
	"time"
)

// TickResult reports what one tick did
type TickResult struct {
	Filled   int     `json:"filled"`
	NewFills []Fill  `json:"new_fills"`
	Price    float64 `json:"price"`
	NoPrice  bool    `json:"no_price"`
}

// Tick advances simulated time by one observation. price may be nil: the
// tick counter still advances but no fills are evaluated. When a historical
// series is attached it takes precedence over the supplied price; the cursor
// saturates at the series end (exhausted series behaves like a missing
// price). The caller must serialize Tick with every other mutation on the
// session.
func (s *GridSession) Tick(price *float64) TickResult {
	s.TickCount++
	s.UpdatedAt = time.Now()

	next, ok := s.nextPrice(price)
	if !ok {
		return TickResult{NoPrice: true, Price: s.CurrentPrice}
	}

	res := TickResult{Price: next}
	now := time.Now()

	for _, o := range s.Orders {
		if o.Status != OrderOpen {
			continue
		}
		// Jump-through fill policy: a price at or past the trigger fills the
		// order even without a genuine crossing since the last tick. The
		// order fills at the observed price, not its trigger price.
		filled := (o.Side == SideBuy && next <= o.Price) ||
			(o.Side == SideSell && next >= o.Price)
		if !filled {
			continue
		}

		o.Status = OrderFilled
		ts := now
		o.FilledAt = &ts

		fill := Fill{
			OrderID:      o.ID,
			Side:         o.Side,
			Level:        o.Level,
			TriggerPrice: o.Price,
			Price:        next,
			Time:         now,
			Quantity:     o.Quantity,
			NotionalUSD:  o.NotionalUSD,
		}

		// Filled BUY orders consume their locked funds; they are not
		// released back to available.
		if o.USDLocked > 0 {
			s.Budget.LockedUSD -= o.USDLocked
			if s.Budget.LockedUSD < 0 {
				s.Budget.LockedUSD = 0
			}
			o.USDLocked = 0
		}

		fill.PnLDelta = s.ApplyFill(&fill)
		fill.Applied = true

		s.Fills = append(s.Fills, fill)
		res.NewFills = append(res.NewFills, fill)
		res.Filled++
	}

	s.CurrentPrice = next
	s.Mark(next)
	s.trimHistory()
	return res
}

// nextPrice resolves the price for this tick. Returns false when the tick
// should only advance the counter.
func (s *GridSession) nextPrice(price *float64) (float64, bool) {
	if len(s.Series) > 0 {
		if s.SeriesCursor >= len(s.Series) {
			return 0, false
		}
		p := s.Series[s.SeriesCursor]
		s.SeriesCursor++
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, false
		}
		return p, true
	}
	if price == nil {
		return 0, false
	}
	p := *price
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}

// AttachSeries replaces the session's deterministic price series and resets
// the cursor.
func (s *GridSession) AttachSeries(series []float64) {
	s.Series = series
	s.SeriesCursor = 0
}

// SeriesExhausted reports whether an attached series has been fully consumed
func (s *GridSession) SeriesExhausted() bool {
	return len(s.Series) > 0 && s.SeriesCursor >= len(s.Series)
}

// trimHistory bounds fills and closed orders to the retention window.
// Open orders are never dropped.
func (s *GridSession) trimHistory() {
	if len(s.Fills) > s.Retention {
		s.Fills = append(s.Fills[:0:0], s.Fills[len(s.Fills)-s.Retention:]...)
	}

	closed := 0
	for _, o := range s.Orders {
		if o.Status != OrderOpen {
			closed++
		}
	}
	if closed <= s.Retention {
		return
	}

	drop := closed - s.Retention
	kept := make([]*Order, 0, len(s.Orders)-drop)
	for _, o := range s.Orders {
		if o.Status != OrderOpen && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, o)
	}
	s.Orders = kept
}
