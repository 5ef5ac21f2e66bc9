package manager

import (
	"context"
	"time"

	"gridsim/engine"
	"gridsim/logger"
	"gridsim/market"
)

// SetAutorun enables or disables the background tick loop for an item. The
// previous task for the item, if any, is cancelled and awaited before a new
// one starts, so two loops never overlap on the same session. autorunMu
// serializes the whole stop-and-replace: concurrent calls can never both
// observe no prior task and each spawn a loop.
func (m *SessionManager) SetAutorun(item string, enabled bool, interval time.Duration) error {
	h := m.handle(item)
	if h == nil {
		return engine.ErrSessionNotFound
	}

	m.autorunMu.Lock()
	defer m.autorunMu.Unlock()
	m.stopAutorunLocked(item)

	if !enabled {
		return nil
	}
	if m.prices == nil {
		return engine.ErrInvalidOrder
	}

	h.mu.Lock()
	stopped := h.sess.Stopped
	h.mu.Unlock()
	if stopped {
		return engine.ErrSessionStopped
	}

	if interval <= 0 {
		interval = m.autorunInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &autorunTask{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	h.autorun = task
	m.mu.Unlock()

	go m.autorunLoop(ctx, item, interval, task)
	logger.Infof("▶️ Autorun enabled: item=%s interval=%s", item, interval)
	return nil
}

// stopAutorun cancels and joins the autorun task for an item
func (m *SessionManager) stopAutorun(item string) {
	m.autorunMu.Lock()
	defer m.autorunMu.Unlock()
	m.stopAutorunLocked(item)
}

// stopAutorunLocked does the cancel-and-join; caller holds autorunMu
func (m *SessionManager) stopAutorunLocked(item string) {
	m.mu.Lock()
	h := m.sessions[item]
	var task *autorunTask
	if h != nil {
		task = h.autorun
		h.autorun = nil
	}
	m.mu.Unlock()

	if task == nil {
		return
	}
	task.cancel()
	<-task.done
	logger.Infof("⏹️ Autorun stopped: item=%s", item)
}

// autorunLoop drives ticks from the price source. A failed fetch skips the
// tick; it never stalls the loop.
func (m *SessionManager) autorunLoop(ctx context.Context, item string, interval time.Duration, task *autorunTask) {
	defer close(task.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, market.FetchTimeout)
		price, err := m.prices.Price(fetchCtx, item)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("⚠️ Autorun price fetch failed item=%s: %v", item, err)
			continue
		}

		if _, _, err := m.Tick(item, &price); err != nil {
			if err == engine.ErrSessionStopped || err == engine.ErrSessionNotFound {
				logger.Infof("Autorun exiting: item=%s (%v)", item, err)
				return
			}
			logger.Warnf("⚠️ Autorun tick failed item=%s: %v", item, err)
		}
	}
}
