// Package manager owns the live grid sessions: registry keyed by item id,
// per-session serialization of mutations, autorun supervision and
// best-effort persistence snapshotting.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gridsim/alert"
	"gridsim/engine"
	"gridsim/logger"
	"gridsim/market"
	"gridsim/metrics"
	"gridsim/store"
)

// SessionPersister is the storage contract: best-effort whole-state dump
// with atomic replace. Failures never crash the engine.
type SessionPersister interface {
	SaveAll(sessions map[string]*engine.GridSession, configs map[string]*engine.GridConfig) error
	LoadAll() (map[string]*engine.GridSession, map[string]*engine.GridConfig, error)
	DeleteItem(item string) error
}

// ProfitRecorder records realized-PnL events idempotently
type ProfitRecorder interface {
	RecordEvent(wallet, item string, f engine.Fill, delta float64, tier engine.FeeTier) (store.LedgerResult, error)
	GetState(wallet string) (*store.ProfitState, error)
}

// sessionHandle pairs a session with its exclusive lock and autorun task.
// The handle mutex serializes every mutation on the session; fill detection,
// PnL, ledger and snapshot for one tick happen as a single critical section.
type sessionHandle struct {
	mu      sync.Mutex
	sess    *engine.GridSession
	autorun *autorunTask
}

type autorunTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a SessionManager
type Options struct {
	HistoryRetention int
	FeeTier          engine.FeeTier
	AutorunInterval  time.Duration
	Notifier         *alert.Notifier
}

// SessionManager is the aggregate registry of grid sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionHandle

	// autorunMu serializes autorun stop-and-replace across SetAutorun,
	// StopSession, ResetSession and Shutdown
	autorunMu sync.Mutex

	persister SessionPersister
	profits   ProfitRecorder
	prices    market.PriceSource

	retention       int
	feeTier         engine.FeeTier
	autorunInterval time.Duration
	notifier        *alert.Notifier
}

// NewSessionManager creates the session registry. persister and profits may
// be nil (no persistence / no ledger), prices may be nil (autorun disabled).
func NewSessionManager(persister SessionPersister, profits ProfitRecorder, prices market.PriceSource, opts Options) *SessionManager {
	if opts.HistoryRetention <= 0 {
		opts.HistoryRetention = 500
	}
	if opts.FeeTier.Rate == 0 && opts.FeeTier.ThresholdUSD == 0 {
		opts.FeeTier = engine.DefaultFeeTier()
	}
	if opts.AutorunInterval <= 0 {
		opts.AutorunInterval = 15 * time.Second
	}
	return &SessionManager{
		sessions:        make(map[string]*sessionHandle),
		persister:       persister,
		profits:         profits,
		prices:          prices,
		retention:       opts.HistoryRetention,
		feeTier:         opts.FeeTier,
		autorunInterval: opts.AutorunInterval,
		notifier:        opts.Notifier,
	}
}

// Load restores persisted sessions. Autorun is always off after a restart.
func (m *SessionManager) Load() error {
	if m.persister == nil {
		return nil
	}
	sessions, configs, err := m.persister.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for item, sess := range sessions {
		if sess.Config == nil {
			sess.Config = configs[item]
		}
		if sess.Retention <= 0 {
			sess.Retention = m.retention
		}
		m.sessions[item] = &sessionHandle{sess: sess}
	}
	logger.Infof("✅ Restored %d grid session(s)", len(m.sessions))
	m.updateActiveGauge()
	return nil
}

// StartSession creates a session from the config and registers it. An item
// with a running session is rejected; a stopped session is replaced.
func (m *SessionManager) StartSession(cfg *engine.GridConfig) (*SessionSnapshot, error) {
	if cfg == nil || cfg.Item == "" {
		return nil, fmt.Errorf("%w: item is required", engine.ErrInvalidOrder)
	}
	if cfg.Wallet != "" && !common.IsHexAddress(cfg.Wallet) {
		return nil, fmt.Errorf("%w: wallet %q is not a valid address", engine.ErrInvalidOrder, cfg.Wallet)
	}

	m.mu.Lock()
	if h, ok := m.sessions[cfg.Item]; ok && !h.sess.Stopped {
		m.mu.Unlock()
		return nil, engine.ErrSessionExists
	}

	sess := engine.NewSession(cfg, m.retention)
	if cfg.OrderMode == engine.OrderModeManual {
		// MANUAL sessions start empty; the lattice is policy, not engine
		sess.DiscardLattice()
	}
	h := &sessionHandle{sess: sess}
	m.sessions[cfg.Item] = h
	m.updateActiveGauge()
	m.mu.Unlock()

	logger.Infof("🚀 Grid session started: item=%s mode=%s orders=%d base=%.4f",
		cfg.Item, cfg.Mode, len(sess.Orders), cfg.BasePrice)

	m.persist()
	snap := m.snapshotOf(h)
	return snap, nil
}

// Tick advances one session by one price observation. price may be nil.
func (m *SessionManager) Tick(item string, price *float64) (*engine.TickResult, *SessionSnapshot, error) {
	h := m.handle(item)
	if h == nil {
		return nil, nil, engine.ErrSessionNotFound
	}

	h.mu.Lock()
	if h.sess.Stopped {
		h.mu.Unlock()
		return nil, nil, engine.ErrSessionStopped
	}

	res := h.sess.Tick(price)
	metrics.Tick(item)

	for _, f := range res.NewFills {
		metrics.Fill(item, string(f.Side))
		m.recordRealizedLocked(h.sess, f)
	}
	snap := snapshotLocked(h.sess)
	h.mu.Unlock()

	if res.Filled > 0 {
		m.notifier.Notify(fmt.Sprintf("gridsim %s: %d fill(s) at %.4f, total PnL %.2f USD",
			item, res.Filled, res.Price, snap.Position.TotalPnL))
	}

	m.persist()
	return &res, snap, nil
}

// recordRealizedLocked pushes a fill's realized delta into the profit
// ledger. Bookkeeping failure must not undo the fill; the idempotent event
// id lets a later retry complete it.
func (m *SessionManager) recordRealizedLocked(sess *engine.GridSession, f engine.Fill) {
	if m.profits == nil || f.PnLDelta <= 0 || sess.Wallet == "" {
		return
	}
	res, err := m.profits.RecordEvent(sess.Wallet, sess.Item, f, f.PnLDelta, m.feeTier)
	if err != nil {
		metrics.LedgerEvent("error")
		logger.Errorf("ledger record failed item=%s fill=%s: %v", sess.Item, f.OrderID, err)
		return
	}
	if res.AlreadyRecorded {
		metrics.LedgerEvent("duplicate")
		return
	}
	metrics.LedgerEvent("recorded")
	metrics.FeeCharged(res.Fee)
	if res.Fee > 0 {
		logger.Infof("💰 Realized %.2f USD on %s (fee %.2f, lifetime %.2f)",
			f.PnLDelta, sess.Item, res.Fee, res.LifetimeProfitUSD)
	}
}

// RecordRealizedPnl records an externally observed realized-PnL event.
// Retried requests with the same fill id are no-ops.
func (m *SessionManager) RecordRealizedPnl(wallet, item string, f engine.Fill, delta float64) (store.LedgerResult, error) {
	if m.profits == nil {
		return store.LedgerResult{}, fmt.Errorf("profit ledger not configured")
	}
	if wallet == "" || !common.IsHexAddress(wallet) {
		return store.LedgerResult{}, fmt.Errorf("%w: wallet %q is not a valid address", engine.ErrInvalidOrder, wallet)
	}
	res, err := m.profits.RecordEvent(wallet, item, f, delta, m.feeTier)
	if err != nil {
		metrics.LedgerEvent("error")
		return res, err
	}
	if res.AlreadyRecorded {
		metrics.LedgerEvent("duplicate")
	} else if res.Recorded {
		metrics.LedgerEvent("recorded")
		metrics.FeeCharged(res.Fee)
	}
	return res, nil
}

// AddManualOrder creates an order outside the lattice, enforcing the wallet
// budget lock for USD-denominated BUYs.
func (m *SessionManager) AddManualOrder(item string, side engine.Side, price, qty, usdNotional float64) (*engine.Order, error) {
	h := m.handle(item)
	if h == nil {
		return nil, engine.ErrSessionNotFound
	}

	h.mu.Lock()
	o, err := h.sess.AddManualOrder(side, price, qty, usdNotional)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.persist()
	cp := *o
	return &cp, nil
}

// CancelOrder cancels one OPEN order by id
func (m *SessionManager) CancelOrder(item, orderID string) error {
	h := m.handle(item)
	if h == nil {
		return engine.ErrSessionNotFound
	}

	h.mu.Lock()
	err := h.sess.CancelOrder(orderID)
	h.mu.Unlock()
	if err != nil {
		return err
	}

	m.persist()
	return nil
}

// CancelMatching cancels the first OPEN order with the given side and
// trigger price. Returns ErrOrderNotFound when nothing matched.
func (m *SessionManager) CancelMatching(item string, side engine.Side, price float64) error {
	h := m.handle(item)
	if h == nil {
		return engine.ErrSessionNotFound
	}

	h.mu.Lock()
	ok := h.sess.CancelMatching(side, price)
	h.mu.Unlock()
	if !ok {
		return engine.ErrOrderNotFound
	}

	m.persist()
	return nil
}

// CancelAll cancels every OPEN order of a session
func (m *SessionManager) CancelAll(item string) (int, error) {
	h := m.handle(item)
	if h == nil {
		return 0, engine.ErrSessionNotFound
	}

	h.mu.Lock()
	n := h.sess.CancelAll()
	h.mu.Unlock()

	m.persist()
	return n, nil
}

// StopSession cancels all open orders, releases locked budget and marks the
// session stopped. The autorun task is fully stopped first.
func (m *SessionManager) StopSession(item string) error {
	h := m.handle(item)
	if h == nil {
		return engine.ErrSessionNotFound
	}

	m.stopAutorun(item)

	h.mu.Lock()
	cancelled := h.sess.Stop()
	h.mu.Unlock()

	m.mu.Lock()
	m.updateActiveGauge()
	m.mu.Unlock()

	logger.Infof("🛑 Grid session stopped: item=%s cancelled=%d", item, cancelled)
	m.notifier.Notify(fmt.Sprintf("gridsim %s: session stopped, %d order(s) cancelled", item, cancelled))
	m.persist()
	return nil
}

// ClearHistory drops closed orders; with all=true also the fill history
func (m *SessionManager) ClearHistory(item string, all bool) error {
	h := m.handle(item)
	if h == nil {
		return engine.ErrSessionNotFound
	}

	h.mu.Lock()
	h.sess.ClearHistory(all)
	h.mu.Unlock()

	m.persist()
	return nil
}

// ResetSession deletes the session and its config entirely, stopping any
// autorun task first.
func (m *SessionManager) ResetSession(item string) error {
	m.mu.RLock()
	_, ok := m.sessions[item]
	m.mu.RUnlock()
	if !ok {
		return engine.ErrSessionNotFound
	}

	m.stopAutorun(item)

	m.mu.Lock()
	delete(m.sessions, item)
	m.updateActiveGauge()
	m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.DeleteItem(item); err != nil {
			logger.Warnf("⚠️ Failed to delete persisted session %s: %v", item, err)
		}
	}
	m.persist()
	logger.Infof("🗑️ Grid session reset: item=%s", item)
	return nil
}

// AttachSeries attaches a deterministic price series for backtesting
func (m *SessionManager) AttachSeries(item string, series []float64) error {
	h := m.handle(item)
	if h == nil {
		return engine.ErrSessionNotFound
	}

	h.mu.Lock()
	h.sess.AttachSeries(series)
	h.mu.Unlock()

	m.persist()
	return nil
}

// GetBudget returns the wallet budget sub-state of a session
func (m *SessionManager) GetBudget(item string) (engine.WalletBudget, error) {
	h := m.handle(item)
	if h == nil {
		return engine.WalletBudget{}, engine.ErrSessionNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess.Budget, nil
}

// GetProfitState returns the lifetime profit aggregate for a wallet
func (m *SessionManager) GetProfitState(wallet string) (*store.ProfitState, error) {
	if m.profits == nil {
		return nil, fmt.Errorf("profit ledger not configured")
	}
	return m.profits.GetState(wallet)
}

// GetSession returns a consistent snapshot of one session
func (m *SessionManager) GetSession(item string) (*SessionSnapshot, error) {
	h := m.handle(item)
	if h == nil {
		return nil, engine.ErrSessionNotFound
	}
	return m.snapshotOf(h), nil
}

// ListSessions returns snapshots of all sessions
func (m *SessionManager) ListSessions() []*SessionSnapshot {
	m.mu.RLock()
	handles := make([]*sessionHandle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	snaps := make([]*SessionSnapshot, 0, len(handles))
	for _, h := range handles {
		snaps = append(snaps, m.snapshotOf(h))
	}
	return snaps
}

// Shutdown stops every autorun task and writes a final snapshot
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	items := make([]string, 0, len(m.sessions))
	for item := range m.sessions {
		items = append(items, item)
	}
	m.mu.RUnlock()

	for _, item := range items {
		m.stopAutorun(item)
	}
	m.persist()
	logger.Info("✅ Session manager shut down")
}

func (m *SessionManager) handle(item string) *sessionHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[item]
}

// persist writes the whole-state snapshot; failures are logged and swallowed
func (m *SessionManager) persist() {
	if m.persister == nil {
		return
	}

	m.mu.RLock()
	handles := make(map[string]*sessionHandle, len(m.sessions))
	for item, h := range m.sessions {
		handles[item] = h
	}
	m.mu.RUnlock()

	sessions := make(map[string]*engine.GridSession, len(handles))
	configs := make(map[string]*engine.GridConfig, len(handles))
	for item, h := range handles {
		h.mu.Lock()
		cp := h.sess.Clone()
		h.mu.Unlock()
		sessions[item] = cp
		if cp.Config != nil {
			configs[item] = cp.Config
		}
	}

	if err := m.persister.SaveAll(sessions, configs); err != nil {
		logger.Warnf("⚠️ Snapshot persistence failed: %v", err)
	}
}

// updateActiveGauge must be called with m.mu held
func (m *SessionManager) updateActiveGauge() {
	n := 0
	for _, h := range m.sessions {
		if !h.sess.Stopped {
			n++
		}
	}
	metrics.SessionsActive(n)
}
