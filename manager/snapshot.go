package manager

import (
	"time"

	"gridsim/engine"
)

// SessionSnapshot is a read-only view of one session, taken under the
// session lock so it never shows a half-applied fill.
type SessionSnapshot struct {
	Item         string               `json:"item"`
	Wallet       string               `json:"wallet"`
	Running      bool                 `json:"running"`
	Stopped      bool                 `json:"stopped"`
	CurrentPrice float64              `json:"current_price"`
	TickCount    int64                `json:"tick_count"`
	OpenOrders   int                  `json:"open_orders"`
	Orders       []engine.Order       `json:"orders"`
	Fills        []engine.Fill        `json:"fills"`
	Position     engine.PositionState `json:"position"`
	Budget       engine.WalletBudget  `json:"budget"`
	Config       *engine.GridConfig   `json:"config,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (m *SessionManager) snapshotOf(h *sessionHandle) *SessionSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshotLocked(h.sess)
}

// snapshotLocked copies the session state; caller holds the session lock
func snapshotLocked(s *engine.GridSession) *SessionSnapshot {
	snap := &SessionSnapshot{
		Item:         s.Item,
		Wallet:       s.Wallet,
		Running:      s.Running,
		Stopped:      s.Stopped,
		CurrentPrice: s.CurrentPrice,
		TickCount:    s.TickCount,
		Position:     s.Position,
		Budget:       s.Budget,
		UpdatedAt:    s.UpdatedAt,
	}
	snap.Orders = make([]engine.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.Status == engine.OrderOpen {
			snap.OpenOrders++
		}
		snap.Orders = append(snap.Orders, *o)
	}
	snap.Fills = append([]engine.Fill(nil), s.Fills...)
	if s.Config != nil {
		cfg := *s.Config
		snap.Config = &cfg
	}
	return snap
}
