package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xness/riskcore/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, balance, created_at, updated_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// Ensure creates the account with the starting balance if it does not exist.
// An existing account is left untouched.
func (s *AccountStore) Ensure(ctx context.Context, id string, startingBalance float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`, id, startingBalance)
	if err != nil {
		return fmt.Errorf("postgres: ensure account %s: %w", id, err)
	}
	return nil
}

// AdjustBalance applies a realized PnL delta and returns the new balance.
// The floor at zero is applied inside the statement so the stored balance
// can never go negative, regardless of the delta.
func (s *AccountStore) AdjustBalance(ctx context.Context, id string, delta float64) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET
			balance    = GREATEST(0, balance + $2),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING balance`, id, delta,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: adjust balance %s: %w", id, err)
	}
	return balance, nil
}

var _ domain.AccountStore = (*AccountStore)(nil)
