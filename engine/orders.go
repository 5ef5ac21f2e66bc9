package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// budgetEpsilon absorbs float noise when comparing a notional against the
// available budget.
const budgetEpsilon = 1e-9

// AddManualOrder creates an OPEN order outside the lattice. BUY orders with
// a USD notional reserve that amount from the wallet budget; SELL orders are
// quantity-denominated and never touch the lock. Validation failures leave
// the session unchanged.
func (s *GridSession) AddManualOrder(side Side, price, qty, usdNotional float64) (*Order, error) {
	if s.Stopped {
		return nil, ErrSessionStopped
	}
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: price must be a positive finite number", ErrInvalidOrder)
	}
	if qty < 0 || usdNotional < 0 {
		return nil, fmt.Errorf("%w: quantity and usd notional must not be negative", ErrInvalidOrder)
	}
	if qty == 0 && usdNotional == 0 {
		return nil, fmt.Errorf("%w: either quantity or usd notional is required", ErrInvalidOrder)
	}
	if side == SideSell && qty == 0 {
		return nil, fmt.Errorf("%w: SELL orders require a quantity", ErrInvalidOrder)
	}

	o := &Order{
		ID:        uuid.New().String(),
		Side:      side,
		Price:     price,
		Status:    OrderOpen,
		Level:     ManualLevel,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}

	if side == SideBuy && usdNotional > 0 {
		if usdNotional > s.Budget.AvailableUSD+budgetEpsilon {
			return nil, fmt.Errorf("%w: need %.2f, available %.2f",
				ErrInsufficientBudget, usdNotional, s.Budget.AvailableUSD)
		}
		s.Budget.AvailableUSD -= usdNotional
		s.Budget.LockedUSD += usdNotional
		o.NotionalUSD = usdNotional
		o.USDLocked = usdNotional
		if o.Quantity == 0 {
			o.Quantity = usdNotional / price
		}
	}

	s.Orders = append(s.Orders, o)
	s.UpdatedAt = time.Now()
	return o, nil
}

// CancelOrder cancels a single OPEN order by id, releasing any locked budget
// back to available.
func (s *GridSession) CancelOrder(id string) error {
	o := s.FindOrder(id)
	if o == nil {
		return ErrOrderNotFound
	}
	if o.Status != OrderOpen {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotFound, id, o.Status)
	}
	s.cancel(o)
	s.trimHistory()
	return nil
}

// CancelMatching cancels the first OPEN order matching side and trigger
// price (within tolerance). Returns false when nothing matched.
func (s *GridSession) CancelMatching(side Side, price float64) bool {
	for _, o := range s.Orders {
		if o.Status == OrderOpen && o.Side == side && math.Abs(o.Price-price) < 1e-9 {
			s.cancel(o)
			s.trimHistory()
			return true
		}
	}
	return false
}

// CancelAll cancels every OPEN order and returns how many were cancelled
func (s *GridSession) CancelAll() int {
	n := 0
	for _, o := range s.Orders {
		if o.Status == OrderOpen {
			s.cancel(o)
			n++
		}
	}
	if n > 0 {
		s.trimHistory()
	}
	return n
}

func (s *GridSession) cancel(o *Order) {
	o.Status = OrderCancelled
	ts := time.Now()
	o.CancelledAt = &ts

	// Cancelled locks flow back to available; the release happens exactly
	// once because USDLocked is zeroed here.
	if o.USDLocked > 0 {
		s.Budget.LockedUSD -= o.USDLocked
		if s.Budget.LockedUSD < 0 {
			s.Budget.LockedUSD = 0
		}
		s.Budget.AvailableUSD += o.USDLocked
		o.USDLocked = 0
	}
	s.UpdatedAt = ts
}

// Stop cancels every open order, releases their budget locks and marks the
// session stopped. A stopped session stays inspectable.
func (s *GridSession) Stop() int {
	n := s.CancelAll()
	s.Running = false
	s.Stopped = true
	s.UpdatedAt = time.Now()
	return n
}

// ClearHistory drops closed orders; with all=true it also drops the fill
// history. Open orders are always kept.
func (s *GridSession) ClearHistory(all bool) {
	kept := make([]*Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.Status == OrderOpen {
			kept = append(kept, o)
		}
	}
	s.Orders = kept
	if all {
		s.Fills = nil
	}
	s.UpdatedAt = time.Now()
}
