// Package store provides the unified database storage layer.
// All database operations should go through this package.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"gridsim/logger"
)

// Store is the unified data storage entry point
type Store struct {
	db *sql.DB

	// Sub-stores (lazy initialization)
	session *SessionStore
	profit  *ProfitStore

	mu sync.Mutex
}

// New opens (or creates) the SQLite database at dbPath and initializes all
// tables.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite: a single writer avoids SQLITE_BUSY under concurrent sessions
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized (%s)", dbPath)
	return s, nil
}

// initTables initializes all database tables in dependency order
func (s *Store) initTables() error {
	if err := s.Session().initTables(); err != nil {
		return fmt.Errorf("failed to initialize session tables: %w", err)
	}
	if err := s.Profit().initTables(); err != nil {
		return fmt.Errorf("failed to initialize profit tables: %w", err)
	}
	return nil
}

// Session gets the session snapshot storage
func (s *Store) Session() *SessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		s.session = &SessionStore{db: s.db}
	}
	return s.session
}

// Profit gets the profit ledger storage
func (s *Store) Profit() *ProfitStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profit == nil {
		s.profit = &ProfitStore{db: s.db}
	}
	return s.profit
}

// Transaction executes fn inside a transaction
func (s *Store) Transaction(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
