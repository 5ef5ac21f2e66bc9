package engine

import "errors"

var (
	// ErrSessionNotFound is returned for operations on an unknown item
	ErrSessionNotFound = errors.New("session not found")
	// ErrOrderNotFound is returned for operations on an unknown order id
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder is returned when a manual order fails validation
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInsufficientBudget is returned when a manual BUY exceeds available funds
	ErrInsufficientBudget = errors.New("insufficient available budget")
	// ErrSessionStopped is returned when mutating a stopped session
	ErrSessionStopped = errors.New("session is stopped")
	// ErrSessionExists is returned when starting a session that is already running
	ErrSessionExists = errors.New("session already exists")
)
