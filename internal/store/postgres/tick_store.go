package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xness/riskcore/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a new TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// InsertBatch appends a batch of ticks in a single transaction. A failure
// rolls back the whole batch so the caller can requeue it without gaps or
// duplicates.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tick batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, t := range ticks {
		batch.Queue(
			`INSERT INTO ticks (symbol, price, quantity, trade_time) VALUES ($1, $2, $3, $4)`,
			t.Symbol, t.Price, t.Quantity, t.Time,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range ticks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: insert tick batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close tick batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tick batch: %w", err)
	}
	return nil
}

// ListBySymbol returns the most recent ticks for a symbol, newest first.
func (s *TickStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.Tick, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, price, quantity, trade_time FROM ticks
		 WHERE symbol = $1
		 ORDER BY trade_time DESC
		 LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanTickRows(rows)
}

// ListBefore returns all ticks with trade_time strictly before the cutoff,
// oldest first. The archiver drains these into object storage.
func (s *TickStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Tick, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, price, quantity, trade_time FROM ticks
		 WHERE trade_time < $1
		 ORDER BY trade_time ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanTickRows(rows)
}

// DeleteBefore removes all ticks older than the cutoff and reports how many
// rows were deleted.
func (s *TickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ticks WHERE trade_time < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanTickRows(rows pgx.Rows) ([]domain.Tick, error) {
	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		if err := rows.Scan(&t.Symbol, &t.Price, &t.Quantity, &t.Time); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

var _ domain.TickStore = (*TickStore)(nil)
