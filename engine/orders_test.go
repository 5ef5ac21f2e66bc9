package engine

import (
	"errors"
	"math"
	"testing"
)

func budgetSession() *GridSession {
	s := NewSession(&GridConfig{
		Item:               "BTC",
		BasePrice:          100,
		OrderMode:          OrderModeManual,
		TotalInvestmentUSD: 1000,
	}, 500)
	s.DiscardLattice()
	return s
}

func TestAddManualOrderValidation(t *testing.T) {
	s := budgetSession()

	tests := []struct {
		name     string
		side     Side
		price    float64
		qty      float64
		notional float64
	}{
		{"bad side", "HOLD", 100, 1, 0},
		{"zero price", SideBuy, 0, 1, 0},
		{"negative price", SideBuy, -1, 1, 0},
		{"nan price", SideBuy, math.NaN(), 1, 0},
		{"negative quantity", SideBuy, 100, -1, 0},
		{"negative notional", SideBuy, 100, 0, -10},
		{"neither quantity nor notional", SideBuy, 100, 0, 0},
		{"sell without quantity", SideSell, 100, 0, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddManualOrder(tt.side, tt.price, tt.qty, tt.notional)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("err = %v, want ErrInvalidOrder", err)
			}
		})
	}

	if len(s.Orders) != 0 {
		t.Errorf("rejected orders must not be appended, got %d orders", len(s.Orders))
	}
	if s.Budget.AvailableUSD != 1000 || s.Budget.LockedUSD != 0 {
		t.Errorf("rejected orders must not touch the budget: %+v", s.Budget)
	}
}

func TestAddManualOrderBudgetLock(t *testing.T) {
	s := budgetSession()

	o, err := s.AddManualOrder(SideBuy, 100, 0, 400)
	if err != nil {
		t.Fatal(err)
	}
	if s.Budget.AvailableUSD != 600 || s.Budget.LockedUSD != 400 {
		t.Errorf("budget after lock: %+v, want available 600 locked 400", s.Budget)
	}
	if o.USDLocked != 400 {
		t.Errorf("USDLocked = %v, want 400", o.USDLocked)
	}
	if math.Abs(o.Quantity-4) > 1e-9 {
		t.Errorf("derived quantity = %v, want notional/price = 4", o.Quantity)
	}

	// Over-committing the remaining budget is rejected
	if _, err := s.AddManualOrder(SideBuy, 100, 0, 601); !errors.Is(err, ErrInsufficientBudget) {
		t.Errorf("err = %v, want ErrInsufficientBudget", err)
	}

	// Exactly the remaining budget is fine
	if _, err := s.AddManualOrder(SideBuy, 100, 0, 600); err != nil {
		t.Errorf("committing the exact remainder failed: %v", err)
	}
	if s.Budget.AvailableUSD != 0 || s.Budget.LockedUSD != 1000 {
		t.Errorf("budget fully locked: %+v", s.Budget)
	}
}

func TestAddManualOrderSellNeverLocks(t *testing.T) {
	s := budgetSession()
	if _, err := s.AddManualOrder(SideSell, 100, 3, 0); err != nil {
		t.Fatal(err)
	}
	if s.Budget.LockedUSD != 0 || s.Budget.AvailableUSD != 1000 {
		t.Errorf("SELL orders must not touch the budget: %+v", s.Budget)
	}
}

func TestCancelOrderReleasesLockOnce(t *testing.T) {
	s := budgetSession()
	o, err := s.AddManualOrder(SideBuy, 100, 0, 400)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CancelOrder(o.ID); err != nil {
		t.Fatal(err)
	}
	if s.Budget.AvailableUSD != 1000 || s.Budget.LockedUSD != 0 {
		t.Errorf("budget after cancel: %+v, want fully available", s.Budget)
	}
	if o.Status != OrderCancelled || o.CancelledAt == nil {
		t.Errorf("order not marked cancelled: %+v", o)
	}

	// Cancelling again must not double-release
	if err := s.CancelOrder(o.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("second cancel: err = %v, want ErrOrderNotFound", err)
	}
	if s.Budget.AvailableUSD != 1000 {
		t.Errorf("double release: AvailableUSD = %v", s.Budget.AvailableUSD)
	}
}

func TestCancelOrderUnknownID(t *testing.T) {
	s := budgetSession()
	if err := s.CancelOrder("nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestCancelMatching(t *testing.T) {
	s := budgetSession()
	if _, err := s.AddManualOrder(SideBuy, 95, 1, 0); err != nil {
		t.Fatal(err)
	}

	if !s.CancelMatching(SideBuy, 95) {
		t.Error("expected a match at BUY 95")
	}
	if s.CancelMatching(SideBuy, 95) {
		t.Error("cancelled order must not match again")
	}
	if s.CancelMatching(SideSell, 95) {
		t.Error("no SELL at 95 exists")
	}
}

func TestStop(t *testing.T) {
	s := budgetSession()
	if _, err := s.AddManualOrder(SideBuy, 100, 0, 300); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddManualOrder(SideSell, 110, 1, 0); err != nil {
		t.Fatal(err)
	}

	n := s.Stop()
	if n != 2 {
		t.Errorf("Stop cancelled %d orders, want 2", n)
	}
	if !s.Stopped || s.Running {
		t.Error("session should be stopped")
	}
	if s.Budget.AvailableUSD != 1000 || s.Budget.LockedUSD != 0 {
		t.Errorf("budget after stop: %+v, want all released", s.Budget)
	}

	// A stopped session rejects new orders but stays inspectable
	if _, err := s.AddManualOrder(SideBuy, 100, 1, 0); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("err = %v, want ErrSessionStopped", err)
	}
	if len(s.Orders) != 2 {
		t.Errorf("order history lost on stop: %d orders", len(s.Orders))
	}
}

func TestClearHistory(t *testing.T) {
	s := budgetSession()
	open, err := s.AddManualOrder(SideBuy, 95, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	closed, err := s.AddManualOrder(SideBuy, 96, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelOrder(closed.ID); err != nil {
		t.Fatal(err)
	}
	s.Fills = append(s.Fills, Fill{OrderID: "f1"})

	s.ClearHistory(false)
	if len(s.Orders) != 1 || s.Orders[0].ID != open.ID {
		t.Errorf("expected only the open order to survive, got %d", len(s.Orders))
	}
	if len(s.Fills) != 1 {
		t.Error("fills must survive ClearHistory(false)")
	}

	s.ClearHistory(true)
	if len(s.Fills) != 0 {
		t.Error("fills must be dropped by ClearHistory(true)")
	}
	if len(s.Orders) != 1 {
		t.Error("open orders must survive ClearHistory(true)")
	}
}

// available + locked is conserved through add and cancel, and only shrinks
// when a fill consumes its lock.
func TestBudgetConservation(t *testing.T) {
	s := budgetSession()
	total := func() float64 { return s.Budget.AvailableUSD + s.Budget.LockedUSD }

	o1, _ := s.AddManualOrder(SideBuy, 100, 0, 250)
	o2, _ := s.AddManualOrder(SideBuy, 90, 0, 250)
	if math.Abs(total()-1000) > 1e-9 {
		t.Errorf("total = %v after locks, want 1000", total())
	}

	s.CancelOrder(o1.ID)
	if math.Abs(total()-1000) > 1e-9 {
		t.Errorf("total = %v after cancel, want 1000", total())
	}

	s.Tick(ptr(89)) // fills o2, consuming its 250 lock
	if o2.Status != OrderFilled {
		t.Fatal("expected o2 to fill at 89")
	}
	if math.Abs(total()-750) > 1e-9 {
		t.Errorf("total = %v after fill, want 750", total())
	}
}
