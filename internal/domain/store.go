package domain

import (
	"context"
	"time"
)

// TickStore persists the append-only trade tape.
type TickStore interface {
	// InsertBatch appends a batch of ticks in a single transaction. Either the
	// whole batch lands or none of it does, so a failed batch can be requeued
	// without duplicates.
	InsertBatch(ctx context.Context, ticks []Tick) error
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]Tick, error)
	ListBefore(ctx context.Context, before time.Time) ([]Tick, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists positions. The terminal transition is a single
// conditional update guarded on status, which makes duplicate close attempts
// observable (ErrAlreadyClosed) instead of silently double-applied.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context, accountID string) ([]Position, error)
	ListOpenBySymbol(ctx context.Context, accountID, symbol string) ([]Position, error)
	List(ctx context.Context, accountID string, status PositionStatus, limit int) ([]Position, error)
	// CloseIfOpen transitions the position out of open, writing the terminal
	// fields atomically. Returns ErrAlreadyClosed when the position is not
	// open and ErrNotFound when it does not exist.
	CloseIfOpen(ctx context.Context, id string, close PositionClose) error
}

// AccountStore persists the demo account ledger.
type AccountStore interface {
	Get(ctx context.Context, id string) (Account, error)
	// Ensure creates the account with the starting balance if it does not
	// exist yet; an existing account is left untouched.
	Ensure(ctx context.Context, id string, startingBalance float64) error
	// AdjustBalance applies a realized PnL delta and returns the new balance.
	// The balance is floored at zero inside the store so no observable state
	// ever goes negative.
	AdjustBalance(ctx context.Context, id string, delta float64) (float64, error)
}
