package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DefaultInitialCapitalUSD is the demo capital used when no investment
// budget is configured.
const DefaultInitialCapitalUSD = 10000

// ApplyDefaults fills unset config fields from the mode presets and
// normalizes the base price. A non-finite or non-positive base price is
// substituted with 1.0 rather than rejected; the session then simply
// tracks relative moves around 1.0.
func (c *GridConfig) ApplyDefaults() {
	if c.Mode != ModeAggressive {
		c.Mode = ModeSafe
	}
	if c.OrderMode != OrderModeManual {
		c.OrderMode = OrderModeAuto
	}

	if c.BasePrice <= 0 || math.IsNaN(c.BasePrice) || math.IsInf(c.BasePrice, 0) {
		c.BasePrice = 1.0
	}

	if c.Mode == ModeAggressive {
		if c.StepPct <= 0 {
			c.StepPct = 0.25
		}
		if c.LevelsPerSide <= 0 {
			c.LevelsPerSide = 12
		}
		if c.TakeProfitPct <= 0 {
			c.TakeProfitPct = 30
		}
		if c.StopLossPct <= 0 {
			c.StopLossPct = 15
		}
	} else {
		if c.StepPct <= 0 {
			c.StepPct = 0.5
		}
		if c.LevelsPerSide <= 0 {
			c.LevelsPerSide = 10
		}
		if c.TakeProfitPct <= 0 {
			c.TakeProfitPct = 50
		}
		if c.StopLossPct <= 0 {
			c.StopLossPct = 20
		}
	}
}

// NewSession builds a session with the full symmetric lattice:
// for level i in 1..LevelsPerSide a BUY at base*(1-step/100*i) and a SELL at
// base*(1+step/100*i), all OPEN. The constructor is mode-agnostic; MANUAL
// sessions get their lattice discarded by the caller.
func NewSession(cfg *GridConfig, retention int) *GridSession {
	cfg.ApplyDefaults()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if retention <= 0 {
		retention = 500
	}

	now := time.Now()
	s := &GridSession{
		Item:      cfg.Item,
		Wallet:    cfg.Wallet,
		Config:    cfg,
		Running:   true,
		Retention: retention,
		CreatedAt: now,
		UpdatedAt: now,
	}

	initial := cfg.TotalInvestmentUSD
	if initial <= 0 {
		initial = DefaultInitialCapitalUSD
	}
	s.Position.InitialCapitalUSD = initial
	s.Budget.AvailableUSD = initial

	perBuyUSD := 0.0
	if cfg.TotalInvestmentUSD > 0 {
		perBuyUSD = cfg.TotalInvestmentUSD / float64(cfg.LevelsPerSide)
	}

	for i := 1; i <= cfg.LevelsPerSide; i++ {
		buyPrice := cfg.BasePrice * (1 - cfg.StepPct/100*float64(i))
		sellPrice := cfg.BasePrice * (1 + cfg.StepPct/100*float64(i))

		buy := &Order{
			ID:        uuid.New().String(),
			Side:      SideBuy,
			Price:     buyPrice,
			Status:    OrderOpen,
			Level:     -i,
			CreatedAt: now,
		}
		if perBuyUSD > 0 && buyPrice > 0 {
			buy.Quantity = perBuyUSD / buyPrice
			buy.NotionalUSD = perBuyUSD
		}

		sell := &Order{
			ID:        uuid.New().String(),
			Side:      SideSell,
			Price:     sellPrice,
			Status:    OrderOpen,
			Level:     i,
			CreatedAt: now,
		}

		s.Orders = append(s.Orders, buy, sell)
	}

	s.CurrentPrice = cfg.BasePrice
	s.Mark(cfg.BasePrice)
	return s
}

// DiscardLattice removes all orders; used for MANUAL sessions where the
// caller supplies every order itself.
func (s *GridSession) DiscardLattice() {
	s.Orders = s.Orders[:0]
}
