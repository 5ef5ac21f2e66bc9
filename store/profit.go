package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"gridsim/engine"
)

// ProfitState is the per-wallet lifetime aggregate. Both fields are
// monotonic: only positive realized deltas that produced a new ledger entry
// ever increase them.
type ProfitState struct {
	Wallet             string    `json:"wallet"`
	LifetimeProfitUSD  float64   `json:"lifetime_profit_usd"`
	LifetimeFeePaidUSD float64   `json:"lifetime_fee_paid_usd"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// LedgerEntry is one idempotency-keyed realized-PnL event
type LedgerEntry struct {
	EventID  string    `json:"event_id"`
	Wallet   string    `json:"wallet"`
	Item     string    `json:"item"`
	Side     string    `json:"side"`
	PnLDelta float64   `json:"pnl_delta"`
	FillID   string    `json:"fill_id"`
	FilledAt time.Time `json:"filled_at"`
}

// LedgerResult reports the outcome of RecordEvent
type LedgerResult struct {
	EventID            string  `json:"event_id"`
	AlreadyRecorded    bool    `json:"already_recorded"`
	Recorded           bool    `json:"recorded"`
	Fee                float64 `json:"fee"`
	Taxable            float64 `json:"taxable"`
	LifetimeProfitUSD  float64 `json:"lifetime_profit_usd"`
	LifetimeFeePaidUSD float64 `json:"lifetime_fee_paid_usd"`
}

// ProfitStore persists the realized-PnL ledger and per-wallet profit state
type ProfitStore struct {
	db *sql.DB
}

func (s *ProfitStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profit_ledger (
			event_id TEXT PRIMARY KEY,
			wallet TEXT NOT NULL,
			item TEXT NOT NULL,
			side TEXT NOT NULL DEFAULT '',
			pnl_delta REAL NOT NULL,
			fill_id TEXT NOT NULL DEFAULT '',
			filled_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create profit_ledger table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profit_state (
			wallet TEXT PRIMARY KEY,
			lifetime_profit_usd REAL NOT NULL DEFAULT 0,
			lifetime_fee_paid_usd REAL NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create profit_state table: %w", err)
	}

	indices := []string{
		`CREATE INDEX IF NOT EXISTS idx_profit_ledger_wallet ON profit_ledger(wallet)`,
		`CREATE INDEX IF NOT EXISTS idx_profit_ledger_item ON profit_ledger(wallet, item)`,
	}
	for _, idx := range indices {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// EventID derives the idempotency key for a realized-PnL event. With a fill
// id the key is stable across retries of the same fill; without one a
// deterministic fallback over side, fill time and the rounded delta is used.
func EventID(wallet, item string, f engine.Fill, delta float64) string {
	var payload string
	if f.OrderID != "" {
		payload = fmt.Sprintf("%s|%s|%s", wallet, item, f.OrderID)
	} else {
		payload = fmt.Sprintf("%s|%s|%s|%d|%.6f", wallet, item, f.Side, f.Time.UnixMilli(), delta)
	}
	sum := sha3.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// RecordEvent inserts a realized-PnL event at most once. On the first insert
// with delta > 0 it charges the tiered fee against the wallet's lifetime
// profit and updates the profit state in the same transaction. A duplicate
// event id is a no-op reported via AlreadyRecorded. Non-positive deltas are
// never recorded.
func (s *ProfitStore) RecordEvent(wallet, item string, f engine.Fill, delta float64, tier engine.FeeTier) (LedgerResult, error) {
	res := LedgerResult{EventID: EventID(wallet, item, f, delta)}

	if delta <= 0 {
		return res, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.Exec(`
		INSERT INTO profit_ledger (event_id, wallet, item, side, pnl_delta, fill_id, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, res.EventID, wallet, item, string(f.Side), delta, f.OrderID, f.Time.Format(time.RFC3339))
	if err != nil {
		return res, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	rows, _ := insert.RowsAffected()
	if rows == 0 {
		res.AlreadyRecorded = true
		state, err := s.getStateTx(tx, wallet)
		if err == nil && state != nil {
			res.LifetimeProfitUSD = state.LifetimeProfitUSD
			res.LifetimeFeePaidUSD = state.LifetimeFeePaidUSD
		}
		return res, tx.Commit()
	}

	if _, err := tx.Exec(`
		INSERT INTO profit_state (wallet, lifetime_profit_usd, lifetime_fee_paid_usd)
		VALUES (?, 0, 0)
		ON CONFLICT(wallet) DO NOTHING
	`, wallet); err != nil {
		return res, fmt.Errorf("failed to init profit state: %w", err)
	}

	state, err := s.getStateTx(tx, wallet)
	if err != nil {
		return res, err
	}

	fee, taxable := tier.FeeForDelta(state.LifetimeProfitUSD, delta)
	res.Fee = fee
	res.Taxable = taxable
	res.LifetimeProfitUSD = state.LifetimeProfitUSD + delta
	res.LifetimeFeePaidUSD = state.LifetimeFeePaidUSD + fee

	if _, err := tx.Exec(`
		UPDATE profit_state
		SET lifetime_profit_usd = lifetime_profit_usd + ?,
			lifetime_fee_paid_usd = lifetime_fee_paid_usd + ?,
			updated_at = ?
		WHERE wallet = ?
	`, delta, fee, time.Now().Format(time.RFC3339), wallet); err != nil {
		return res, fmt.Errorf("failed to update profit state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit ledger event: %w", err)
	}
	res.Recorded = true
	return res, nil
}

func (s *ProfitStore) getStateTx(tx *sql.Tx, wallet string) (*ProfitState, error) {
	state := &ProfitState{Wallet: wallet}
	var updated sql.NullString
	err := tx.QueryRow(`
		SELECT lifetime_profit_usd, lifetime_fee_paid_usd, updated_at
		FROM profit_state WHERE wallet = ?
	`, wallet).Scan(&state.LifetimeProfitUSD, &state.LifetimeFeePaidUSD, &updated)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profit state: %w", err)
	}
	if updated.Valid {
		state.UpdatedAt, _ = time.Parse(time.RFC3339, updated.String)
	}
	return state, nil
}

// GetState returns the profit state for a wallet, zero-valued when the
// wallet has never realized profit.
func (s *ProfitStore) GetState(wallet string) (*ProfitState, error) {
	state := &ProfitState{Wallet: wallet}
	var updated sql.NullString
	err := s.db.QueryRow(`
		SELECT lifetime_profit_usd, lifetime_fee_paid_usd, updated_at
		FROM profit_state WHERE wallet = ?
	`, wallet).Scan(&state.LifetimeProfitUSD, &state.LifetimeFeePaidUSD, &updated)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profit state: %w", err)
	}
	if updated.Valid {
		state.UpdatedAt, _ = time.Parse(time.RFC3339, updated.String)
	}
	return state, nil
}

// RecentEntries returns the latest ledger entries for a wallet
func (s *ProfitStore) RecentEntries(wallet string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT event_id, wallet, item, side, pnl_delta, fill_id, filled_at
		FROM profit_ledger
		WHERE wallet = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var filledAt sql.NullString
		if err := rows.Scan(&e.EventID, &e.Wallet, &e.Item, &e.Side, &e.PnLDelta, &e.FillID, &filledAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if filledAt.Valid {
			e.FilledAt, _ = time.Parse(time.RFC3339, filledAt.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
