package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gridsim/engine"
)

// SessionStore persists whole-session snapshots keyed by item id. The
// contract is a best-effort full dump with atomic replace; the in-memory
// state stays authoritative for the process lifetime.
type SessionStore struct {
	db *sql.DB
}

func (s *SessionStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS grid_sessions (
			item TEXT PRIMARY KEY,
			wallet TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create grid_sessions table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS grid_configs (
			item TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create grid_configs table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_grid_sessions_wallet ON grid_sessions(wallet)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// SaveAll replaces the persisted snapshot with the given sessions and
// configs in one transaction.
func (s *SessionStore) SaveAll(sessions map[string]*engine.GridSession, configs map[string]*engine.GridConfig) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM grid_sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM grid_configs`); err != nil {
		return fmt.Errorf("failed to clear configs: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	for item, sess := range sessions {
		state, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", item, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO grid_sessions (item, wallet, state, updated_at) VALUES (?, ?, ?, ?)`,
			item, sess.Wallet, string(state), now,
		); err != nil {
			return fmt.Errorf("failed to save session %s: %w", item, err)
		}
	}
	for item, cfg := range configs {
		blob, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config %s: %w", item, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO grid_configs (item, config, updated_at) VALUES (?, ?, ?)`,
			item, string(blob), now,
		); err != nil {
			return fmt.Errorf("failed to save config %s: %w", item, err)
		}
	}

	return tx.Commit()
}

// LoadAll restores every persisted session and config
func (s *SessionStore) LoadAll() (map[string]*engine.GridSession, map[string]*engine.GridConfig, error) {
	sessions := make(map[string]*engine.GridSession)
	configs := make(map[string]*engine.GridConfig)

	rows, err := s.db.Query(`SELECT item, state FROM grid_sessions`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item, state string
		if err := rows.Scan(&item, &state); err != nil {
			return nil, nil, fmt.Errorf("failed to scan session: %w", err)
		}
		var sess engine.GridSession
		if err := json.Unmarshal([]byte(state), &sess); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal session %s: %w", item, err)
		}
		sessions[item] = &sess
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	crows, err := s.db.Query(`SELECT item, config FROM grid_configs`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var item, blob string
		if err := crows.Scan(&item, &blob); err != nil {
			return nil, nil, fmt.Errorf("failed to scan config: %w", err)
		}
		var cfg engine.GridConfig
		if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal config %s: %w", item, err)
		}
		configs[item] = &cfg
	}
	if err := crows.Err(); err != nil {
		return nil, nil, err
	}

	return sessions, configs, nil
}

// DeleteItem removes the persisted rows for one item
func (s *SessionStore) DeleteItem(item string) error {
	if _, err := s.db.Exec(`DELETE FROM grid_sessions WHERE item = ?`, item); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", item, err)
	}
	if _, err := s.db.Exec(`DELETE FROM grid_configs WHERE item = ?`, item); err != nil {
		return fmt.Errorf("failed to delete config %s: %w", item, err)
	}
	return nil
}
