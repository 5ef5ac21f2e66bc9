// Package engine implements the grid simulation core: lattice construction,
// fill detection, position accounting, fee computation and budget locking.
// Types are plain data; all mutation goes through methods that the session
// manager calls under a per-session lock.
package engine

import (
	"time"
)

// Side of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus transitions one-way: OPEN -> FILLED or OPEN -> CANCELLED
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Mode selects the default lattice parameters
type Mode string

const (
	ModeSafe       Mode = "SAFE"
	ModeAggressive Mode = "AGGRESSIVE"
)

// OrderMode controls whether the session starts with the generated lattice
// or with no orders at all (orders added manually by the caller)
type OrderMode string

const (
	OrderModeAuto   OrderMode = "AUTO"
	OrderModeManual OrderMode = "MANUAL"
)

// ManualLevel marks an order created outside the lattice. Lattice levels are
// signed and never zero (negative = buy leg, positive = sell leg).
const ManualLevel = 0

// GridConfig holds the immutable creation parameters of a session
type GridConfig struct {
	Item               string    `json:"item"`
	Wallet             string    `json:"wallet"`
	Mode               Mode      `json:"mode"`
	OrderMode          OrderMode `json:"order_mode"`
	BasePrice          float64   `json:"base_price"`
	StepPct            float64   `json:"step_pct"`
	LevelsPerSide      int       `json:"levels_per_side"`
	TakeProfitPct      float64   `json:"take_profit_pct"`
	StopLossPct        float64   `json:"stop_loss_pct"`
	TotalInvestmentUSD float64   `json:"total_investment_usd"` // 0 = no budget
	CreatedAt          time.Time `json:"created_at"`
}

// Order is one lattice rung or a manually added order
type Order struct {
	ID          string      `json:"id"`
	Side        Side        `json:"side"`
	Price       float64     `json:"price"` // trigger price
	Status      OrderStatus `json:"status"`
	Level       int         `json:"level"`
	Quantity    float64     `json:"quantity,omitempty"`
	NotionalUSD float64     `json:"notional_usd,omitempty"`
	USDLocked   float64     `json:"usd_locked,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	FilledAt    *time.Time  `json:"filled_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

// Fill is the immutable record of an order transitioning to FILLED
type Fill struct {
	OrderID      string    `json:"order_id"`
	Side         Side      `json:"side"`
	Level        int       `json:"level"`
	TriggerPrice float64   `json:"trigger_price"`
	Price        float64   `json:"price"` // observed price, not the trigger
	Time         time.Time `json:"time"`
	Quantity     float64   `json:"quantity,omitempty"`
	NotionalUSD  float64   `json:"notional_usd,omitempty"`
	PnLDelta     float64   `json:"pnl_delta"`
	Applied      bool      `json:"applied"`
}

// PositionState is the average-cost position and PnL sub-state of a session.
// Invariant: PositionQty == 0 <=> AvgCost == 0.
type PositionState struct {
	PositionQty       float64 `json:"position_qty"`
	AvgCost           float64 `json:"avg_cost"`
	RealizedPnL       float64 `json:"realized_pnl"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
	TotalPnL          float64 `json:"total_pnl"`
	LastPrice         float64 `json:"last_price"`
	InitialCapitalUSD float64 `json:"initial_capital_usd"`
	EquityUSD         float64 `json:"equity_usd"`
	PnLPct            float64 `json:"pnl_pct"`
}

// WalletBudget tracks USD reserved for open manual BUY orders.
// Both fields stay >= 0; available+locked is conserved except on fill,
// where locked funds are consumed into the cost basis.
type WalletBudget struct {
	AvailableUSD float64 `json:"wallet_available_usd"`
	LockedUSD    float64 `json:"wallet_locked_usd"`
}

// GridSession is the aggregate root for one tradable item
type GridSession struct {
	Item         string        `json:"item"`
	Wallet       string        `json:"wallet"`
	Config       *GridConfig   `json:"config"`
	CurrentPrice float64       `json:"current_price"`
	TickCount    int64         `json:"tick_count"`
	Orders       []*Order      `json:"orders"`
	Fills        []Fill        `json:"fills"`
	Running      bool          `json:"running"`
	Stopped      bool          `json:"stopped"`
	Position     PositionState `json:"position"`
	Budget       WalletBudget  `json:"budget"`

	// Optional deterministic price series for backtesting
	Series       []float64 `json:"series,omitempty"`
	SeriesCursor int       `json:"series_cursor,omitempty"`

	// Bounded history window for closed orders and fills
	Retention int `json:"retention"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenOrders returns the orders still in OPEN status
func (s *GridSession) OpenOrders() []*Order {
	open := make([]*Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.Status == OrderOpen {
			open = append(open, o)
		}
	}
	return open
}

// FindOrder returns the order with the given id, or nil
func (s *GridSession) FindOrder(id string) *Order {
	for _, o := range s.Orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Clone returns a deep copy safe to read or marshal while the original keeps
// mutating under its owner's lock.
func (s *GridSession) Clone() *GridSession {
	cp := *s
	cp.Orders = make([]*Order, len(s.Orders))
	for i, o := range s.Orders {
		oc := *o
		cp.Orders[i] = &oc
	}
	cp.Fills = append([]Fill(nil), s.Fills...)
	cp.Series = append([]float64(nil), s.Series...)
	if s.Config != nil {
		cfg := *s.Config
		cp.Config = &cfg
	}
	return &cp
}
