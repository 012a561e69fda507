package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xness/riskcore/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, account_id, symbol, side, units, entry_price,
	leverage, posted_margin, take_profit, stop_loss, status,
	close_price, closed_at, realized_pnl, closed_by, opened_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var closedBy *string

	err := row.Scan(
		&p.ID, &p.AccountID, &p.Symbol, &side,
		&p.Units, &p.EntryPrice, &p.Leverage, &p.PostedMargin,
		&p.TakeProfit, &p.StopLoss, &status,
		&p.ClosePrice, &p.ClosedAt, &p.RealizedPnL, &closedBy,
		&p.OpenedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if closedBy != nil {
		p.ClosedBy = domain.CloseReason(*closedBy)
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new open position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, account_id, symbol, side, units, entry_price,
			leverage, posted_margin, take_profit, stop_loss, status,
			opened_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.AccountID, p.Symbol, string(p.Side),
		p.Units, p.EntryPrice, p.Leverage, p.PostedMargin,
		p.TakeProfit, p.StopLoss, string(p.Status),
		p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns all open positions for the given account.
func (s *PositionStore) ListOpen(ctx context.Context, accountID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account_id = $1 AND status = 'open'
		 ORDER BY opened_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListOpenBySymbol returns open positions for the given account and symbol.
func (s *PositionStore) ListOpenBySymbol(ctx context.Context, accountID, symbol string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account_id = $1 AND symbol = $2 AND status = 'open'
		 ORDER BY opened_at DESC`, accountID, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for %s: %w", symbol, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions for %s: %w", symbol, err)
	}
	return positions, nil
}

// List returns positions for the account, optionally filtered by status,
// newest first.
func (s *PositionStore) List(ctx context.Context, accountID string, status domain.PositionStatus, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE account_id = $1`
	args := []any{accountID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY opened_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// CloseIfOpen transitions a position out of open in one conditional update.
// A position that exists but is no longer open yields ErrAlreadyClosed,
// which lets every close path treat a lost race as a no-op.
func (s *PositionStore) CloseIfOpen(ctx context.Context, id string, close domain.PositionClose) error {
	status := domain.PositionStatusClosed
	if close.Reason == domain.CloseReasonLiquidation {
		status = domain.PositionStatusLiquidated
	}

	const query = `
		UPDATE positions SET
			status       = $2,
			close_price  = $3,
			closed_at    = $4,
			realized_pnl = $5,
			closed_by    = $6,
			updated_at   = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		id, string(status), close.Price, close.ClosedAt, close.RealizedPnL, string(close.Reason),
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing position from one already in a terminal state.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check position %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyClosed
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
